package session

import (
	"fmt"
	"regexp"

	"github.com/matheus3301/chatsync/internal/config"
)

const DefaultProfile = "main"

var nameRegexp = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// ValidateName checks that name conforms to profile naming rules.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("invalid profile name %q: must match ^[a-z0-9_-]{1,64}$", name)
	}
	return nil
}

// ResolveProfile determines the active profile name using precedence:
// 1. flagOverride (--profile flag)
// 2. config default_profile (file or CHATSYNC_PROFILE)
// 3. "main"
func ResolveProfile(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	cfg, err := config.Resolve(ConfigPath())
	if err == nil && cfg.DefaultProfile != "" {
		return cfg.DefaultProfile
	}
	return DefaultProfile
}
