// Package labels maps container label sets to the repositories they depend on.
package labels

import "strings"

// DefaultKeys are the recognized restart-trigger label keys, highest
// priority first. "restart-after" is canonical; the other spellings are
// legacy aliases still present on older container configurations.
var DefaultKeys = []string{"restart-after", "repo", "restart-after-pull"}

// Resolver decides whether a container's labels declare a dependency on a
// repository. It is pure: no I/O, no runtime calls.
type Resolver struct {
	keys []string
}

// NewResolver creates a resolver consulting the given keys in order. An
// empty list falls back to DefaultKeys.
func NewResolver(keys []string) *Resolver {
	if len(keys) == 0 {
		keys = DefaultKeys
	}
	cleaned := make([]string, 0, len(keys))
	for _, key := range keys {
		if trimmed := strings.TrimSpace(key); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return &Resolver{keys: cleaned}
}

// Keys returns the recognized label keys in priority order.
func (r *Resolver) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Matches reports whether the label set declares a dependency on
// repositoryName. The first present recognized key wins; its value is a
// comma-separated list whose entries are trimmed and compared byte-for-byte.
func (r *Resolver) Matches(containerLabels map[string]string, repositoryName string) bool {
	repositoryName = strings.TrimSpace(repositoryName)
	if repositoryName == "" {
		return false
	}
	for _, name := range r.names(containerLabels) {
		if name == repositoryName {
			return true
		}
	}
	return false
}

// MatchedNames returns the repository names the label set declares, in label
// order. Nil when no recognized key is present or the value is empty.
func (r *Resolver) MatchedNames(containerLabels map[string]string) []string {
	return r.names(containerLabels)
}

func (r *Resolver) names(containerLabels map[string]string) []string {
	if len(containerLabels) == 0 {
		return nil
	}
	for _, key := range r.keys {
		value, present := containerLabels[key]
		if !present {
			continue
		}
		// First present key wins, even with an empty value; keys are
		// never merged.
		var names []string
		for _, entry := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(entry); trimmed != "" {
				names = append(names, trimmed)
			}
		}
		return names
	}
	return nil
}
