package notify

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

type recordingNav struct {
	mu    sync.Mutex
	calls []ChatParams
	err   error
}

func (n *recordingNav) Navigate(screen string, params ChatParams) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if screen != ScreenChat {
		return errors.New("unexpected screen " + screen)
	}
	n.calls = append(n.calls, params)
	return n.err
}

func (n *recordingNav) Calls() []ChatParams {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]ChatParams(nil), n.calls...)
}

type recordingDisplay struct {
	mu    sync.Mutex
	shown []Notification
}

func (d *recordingDisplay) Display(n Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shown = append(d.shown, n)
	return nil
}

func runRouter(t *testing.T, r *Router) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
		ok   bool
		want Target
	}{
		{
			name: "missing sid",
			data: map[string]any{"isGroup": "true"},
		},
		{
			name: "blank sid",
			data: map[string]any{"conversationSid": "  "},
		},
		{
			name: "group with encoded participants",
			data: map[string]any{"conversationSid": "CH1", "isGroup": "true", "groupName": "Trip", "participants": `["a","b"]`},
			ok:   true,
			want: Target{ConversationSID: "CH1", IsGroup: true, GroupName: "Trip", Participants: []string{"a", "b"}, RecipientAvatar: AvatarURL("")},
		},
		{
			name: "boolean flag and decoded list",
			data: map[string]any{"conversationSid": "CH2", "isGroup": true, "participants": []any{"x"}},
			ok:   true,
			want: Target{ConversationSID: "CH2", IsGroup: true, Participants: []string{"x"}, RecipientAvatar: AvatarURL("")},
		},
		{
			name: "invalid participants",
			data: map[string]any{"conversationSid": "CH3", "isGroup": "false", "participants": "not json", "recipientUsername": "bob"},
			ok:   true,
			want: Target{ConversationSID: "CH3", Participants: []string{}, RecipientUsername: "bob", RecipientAvatar: AvatarURL("bob")},
		},
		{
			name: "explicit avatar kept",
			data: map[string]any{"conversationSid": "CH4", "isGroup": "TRUE", "recipientUsername": "bob", "recipientAvatar": "https://a/b.png"},
			ok:   true,
			want: Target{ConversationSID: "CH4", Participants: []string{}, RecipientUsername: "bob", RecipientAvatar: "https://a/b.png"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Normalize(tt.data)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Normalize() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestAvatarURL(t *testing.T) {
	got := AvatarURL("Ana Maria&co")
	want := "https://ui-avatars.com/api/?name=Ana%20Maria%26co&background=808080&color=fff"
	if got != want {
		t.Errorf("AvatarURL = %q, want %q", got, want)
	}
}

func TestParams(t *testing.T) {
	direct := Target{ConversationSID: "CH1", RecipientUsername: "bob"}.Params()
	if direct.IsGroup || direct.RecipientAvatar != AvatarURL("bob") || direct.Participants != nil {
		t.Errorf("direct params = %+v", direct)
	}
	group := Target{ConversationSID: "CH2", IsGroup: true, GroupName: "G", RecipientUsername: "ignored"}.Params()
	if !group.IsGroup || group.RecipientUsername != "" || group.Participants == nil {
		t.Errorf("group params = %+v", group)
	}
}

func TestColdStartDeliversOnceAfterReady(t *testing.T) {
	nav := &recordingNav{}
	r := NewRouter(nav, nil, nil)
	runRouter(t, r)

	ok := r.Initial(map[string]any{
		"conversationSid": "CH1",
		"isGroup":         "true",
		"groupName":       "Trip",
		"participants":    `["a","b"]`,
	})
	if !ok {
		t.Fatal("payload rejected")
	}
	time.Sleep(20 * time.Millisecond)
	if len(nav.Calls()) != 0 {
		t.Fatal("navigated before readiness")
	}
	if _, pending := r.Pending(); !pending {
		t.Fatal("target should be pending before readiness")
	}

	r.MarkReady()
	eventually(t, func() bool { return len(nav.Calls()) == 1 })

	want := ChatParams{ConversationSID: "CH1", IsGroup: true, GroupName: "Trip", Participants: []string{"a", "b"}}
	if got := nav.Calls()[0]; !reflect.DeepEqual(got, want) {
		t.Errorf("params = %+v, want %+v", got, want)
	}
	if _, pending := r.Pending(); pending {
		t.Error("pending target not cleared after delivery")
	}

	r.MarkReady()
	time.Sleep(20 * time.Millisecond)
	if n := len(nav.Calls()); n != 1 {
		t.Errorf("navigations after second ready = %d, want 1", n)
	}
}

func TestReadyWithoutPendingIsNoop(t *testing.T) {
	nav := &recordingNav{}
	r := NewRouter(nav, nil, nil)
	runRouter(t, r)

	r.MarkReady()
	time.Sleep(20 * time.Millisecond)
	if len(nav.Calls()) != 0 {
		t.Error("readiness alone must not navigate")
	}
}

func TestWarmTapRoutesImmediately(t *testing.T) {
	nav := &recordingNav{}
	r := NewRouter(nav, nil, nil)
	r.MarkReady()
	runRouter(t, r)

	r.Tap(map[string]any{"conversationSid": "CH9", "recipientUsername": "bob"})
	eventually(t, func() bool { return len(nav.Calls()) == 1 })

	got := nav.Calls()[0]
	if got.ConversationSID != "CH9" || got.RecipientUsername != "bob" || got.IsGroup {
		t.Errorf("params = %+v", got)
	}
}

func TestMalformedPayloadIsDropped(t *testing.T) {
	nav := &recordingNav{}
	r := NewRouter(nav, nil, nil)
	r.MarkReady()
	runRouter(t, r)

	if r.Tap(map[string]any{"groupName": "x"}) {
		t.Error("payload without sid should be rejected")
	}
	time.Sleep(20 * time.Millisecond)
	if len(nav.Calls()) != 0 {
		t.Error("malformed payload navigated")
	}
}

func TestForegroundDisplaysWithoutNavigating(t *testing.T) {
	nav := &recordingNav{}
	display := &recordingDisplay{}
	r := NewRouter(nav, display, nil)
	r.MarkReady()
	runRouter(t, r)

	r.Foreground(Notification{Title: "bob", Body: "hi", Data: map[string]any{"conversationSid": "CH1"}})
	time.Sleep(20 * time.Millisecond)
	if len(display.shown) != 1 {
		t.Errorf("displayed = %d, want 1", len(display.shown))
	}
	if len(nav.Calls()) != 0 {
		t.Error("foreground notification navigated")
	}
}

func TestNavigationFailureClearsTarget(t *testing.T) {
	nav := &recordingNav{err: errors.New("not mounted")}
	r := NewRouter(nav, nil, nil)
	r.MarkReady()
	runRouter(t, r)

	r.Tap(map[string]any{"conversationSid": "CH1"})
	eventually(t, func() bool { return len(nav.Calls()) == 1 })
	if _, pending := r.Pending(); pending {
		t.Error("target should be consumed even when navigation fails")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	r := NewRouter(&recordingNav{}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run err = %v, want context.Canceled", err)
	}
}

func TestListenFeedsRouter(t *testing.T) {
	nav := &recordingNav{}
	display := &recordingDisplay{}
	r := NewRouter(nav, display, nil)
	runRouter(t, r)

	src := NewChannelSource(4)
	src.SetInitial(Notification{Data: map[string]any{"conversationSid": "CH1"}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Listen(ctx, src) }()

	eventually(t, func() bool { _, ok := r.Pending(); return ok })
	r.MarkReady()
	eventually(t, func() bool { return len(nav.Calls()) == 1 })

	if !src.PushTap(Notification{Data: map[string]any{"conversationSid": "CH2"}}) {
		t.Fatal("tap queue full")
	}
	src.PushForeground(Notification{Title: "x"})
	eventually(t, func() bool { return len(nav.Calls()) == 2 })
	eventually(t, func() bool {
		display.mu.Lock()
		defer display.mu.Unlock()
		return len(display.shown) == 1
	})
	if got := nav.Calls()[1].ConversationSID; got != "CH2" {
		t.Errorf("second navigation = %q, want CH2", got)
	}
}
