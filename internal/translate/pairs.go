// Package translate machine-translates transcript text between the supported
// language pairs, keeping a small cache of loaded models.
package translate

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var languageCode = regexp.MustCompile(`^[a-z]{2,5}$`)

// ValidLanguage reports whether code looks like a language code we accept.
func ValidLanguage(code string) bool {
	return languageCode.MatchString(code)
}

// Pair identifies a translation direction.
type Pair struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Key renders the pair as "src-dst".
func (p Pair) Key() string {
	return p.Source + "-" + p.Target
}

func (p Pair) String() string {
	return p.Key()
}

// ParsePair parses a "src-dst" key.
func ParsePair(key string) (Pair, error) {
	src, dst, ok := strings.Cut(key, "-")
	if !ok || !ValidLanguage(src) || !ValidLanguage(dst) {
		return Pair{}, fmt.Errorf("invalid language pair %q", key)
	}
	return Pair{Source: src, Target: dst}, nil
}

// SupportedPairs are the directions with a published opus-mt model.
var SupportedPairs = []Pair{
	{Source: "en", Target: "es"},
	{Source: "es", Target: "en"},
	{Source: "en", Target: "fr"},
	{Source: "fr", Target: "en"},
	{Source: "ja", Target: "en"},
	{Source: "ru", Target: "en"},
	{Source: "ru", Target: "es"},
	{Source: "ja", Target: "es"},
}

// Registry maps pairs to model names.
type Registry map[Pair]string

// DefaultRegistry returns the Helsinki-NLP opus-mt model for every supported
// pair.
func DefaultRegistry() Registry {
	r := make(Registry, len(SupportedPairs))
	for _, p := range SupportedPairs {
		r[p] = "Helsinki-NLP/opus-mt-" + p.Key()
	}
	return r
}

// Model returns the model name for p.
func (r Registry) Model(p Pair) (string, bool) {
	name, ok := r[p]
	return name, ok
}

// Pairs lists the registered pairs sorted by key.
func (r Registry) Pairs() []Pair {
	out := make([]Pair, 0, len(r))
	for p := range r {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// IsSupported reports whether src-dst is one of SupportedPairs.
func IsSupported(src, dst string) bool {
	for _, p := range SupportedPairs {
		if p.Source == src && p.Target == dst {
			return true
		}
	}
	return false
}

var languageNames = map[string]string{
	"en": "English",
	"es": "Spanish",
	"fr": "French",
	"ja": "Japanese",
	"ru": "Russian",
}

// LanguageName returns the English name of code, or code itself.
func LanguageName(code string) string {
	if name, ok := languageNames[code]; ok {
		return name
	}
	return code
}
