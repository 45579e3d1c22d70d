package inference

import "strings"

var placeholderKeys = map[string]bool{
	"demo_key":     true,
	"trial_key":    true,
	"gsk_demo_key": true,
}

var placeholderPrefixes = []string{"your_", "demo_"}

// ValidCredential reports whether key looks like a usable API key: present,
// non-empty, and not one of the placeholder values shipped in sample
// configuration files.
func ValidCredential(key string) bool {
	key = strings.TrimSpace(key)
	if key == "" || placeholderKeys[key] {
		return false
	}
	for _, p := range placeholderPrefixes {
		if strings.HasPrefix(key, p) {
			return false
		}
	}
	return true
}
