package media

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		contentType string
		want        Kind
	}{
		{"image/png", KindImage},
		{"image/jpeg", KindImage},
		{"IMAGE/GIF", KindImage},
		{"image/x-unknown", KindImage},
		{"application/pdf", KindDocument},
		{"application/pdf; name=a.pdf", KindDocument},
		{"video/mp4", KindUnsupported},
		{"text/plain; charset=utf-8", KindUnsupported},
		{"", KindUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			if got := Classify(tt.contentType); got != tt.want {
				t.Errorf("Classify(%q) = %s, want %s", tt.contentType, got, tt.want)
			}
		})
	}
}

func TestExtension(t *testing.T) {
	tests := map[string]string{
		"image/png":                 ".png",
		"application/pdf":           ".pdf",
		"text/plain; charset=utf-8": ".txt",
		"application/x-nothing":     "",
	}
	for ct, want := range tests {
		if got := Extension(ct); got != want {
			t.Errorf("Extension(%q) = %q, want %q", ct, got, want)
		}
	}
}
