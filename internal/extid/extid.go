// Package extid encodes and decodes namespaced external identifiers of the
// form "prefix:id" and merges per-provider identifier sets. Identifier
// overlap is the sole signal for cross-platform duplicate detection; text
// similarity never participates in that decision.
package extid

import (
	"fmt"
	"strings"
)

// Provider names accepted by the codec.
const (
	ProviderYouTube        = "youtube"
	ProviderSoundCloud     = "soundcloud"
	Provider1001Tracklists = "1001tracklists"
)

// prefixes maps provider name to the namespace prefix used on the wire.
var prefixes = map[string]string{
	ProviderYouTube:        "yt",
	ProviderSoundCloud:     "sc",
	Provider1001Tracklists: "tl",
}

// providersByPrefix is the inverse of prefixes, built once at init.
var providersByPrefix = func() map[string]string {
	m := make(map[string]string, len(prefixes))
	for provider, prefix := range prefixes {
		m[prefix] = provider
	}
	return m
}()

// sourcePriority ranks providers for merge conflicts. Higher wins.
var sourcePriority = map[string]int{
	Provider1001Tracklists: 3,
	ProviderSoundCloud:     2,
	ProviderYouTube:        1,
}

// UnsupportedProviderError indicates a provider missing from the prefix
// table. This is a configuration bug and fails fast.
type UnsupportedProviderError struct {
	Provider string
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("extid: unsupported provider %q", e.Provider)
}

// Ref is a decoded external identifier.
type Ref struct {
	Provider string
	ID       string
}

// Encode produces the namespaced form "prefix:id" for a provider-native
// identifier.
func Encode(provider, id string) (string, error) {
	prefix, ok := prefixes[provider]
	if !ok {
		return "", &UnsupportedProviderError{Provider: provider}
	}
	return prefix + ":" + id, nil
}

// Decode is the strict inverse of Encode. It returns nil on malformed or
// unknown input; callers must treat nil as "no signal", not an error.
func Decode(external string) *Ref {
	prefix, id, ok := strings.Cut(external, ":")
	if !ok || id == "" {
		return nil
	}
	provider, ok := providersByPrefix[prefix]
	if !ok {
		return nil
	}
	return &Ref{Provider: provider, ID: id}
}

// Merge returns the right-biased union of two identifier sets: every key in
// b overwrites a, keys only in a survive. Neither input is mutated.
func Merge(a, b map[string]string) map[string]string {
	out := make(map[string]string, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

// HasOverlap reports whether any provider key holds an identical identifier
// in both sets.
func HasOverlap(a, b map[string]string) bool {
	for k, v := range a {
		if other, ok := b[k]; ok && other == v {
			return true
		}
	}
	return false
}

// Priority returns the merge priority for a provider; unknown providers
// rank lowest.
func Priority(provider string) int {
	return sourcePriority[provider]
}

// Providers lists the providers the codec understands.
func Providers() []string {
	out := make([]string, 0, len(prefixes))
	for p := range prefixes {
		out = append(out, p)
	}
	return out
}
