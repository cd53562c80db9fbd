// Package casing holds the registry of identifier case converters used to
// translate names between the application and the database.
package casing

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Kind names a case convention.
type Kind string

const (
	None      Kind = "none"
	CamelCase Kind = "camelcase"
	SnakeCase Kind = "snakecase"
)

// ErrUnknownKind is returned when a case kind is not in the registry.
var ErrUnknownKind = errors.New("unknown case kind")

// Converter maps an identifier to its converted form. Converters never fail.
type Converter func(string) string

// kinds keeps the registry order stable for validation messages.
var kinds = []Kind{None, CamelCase, SnakeCase}

var converters = map[Kind]Converter{
	None:      func(s string) string { return s },
	CamelCase: memoize(ToCamel),
	SnakeCase: memoize(ToSnake),
}

// Types returns the registered case kinds in declaration order.
func Types() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

// Valid reports whether k is a registered kind.
func (k Kind) Valid() bool {
	_, ok := converters[k]
	return ok
}

func (k Kind) String() string {
	return string(k)
}

// ParseKind resolves a configured kind name. Matching ignores surrounding
// whitespace and letter case.
func ParseKind(raw string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(raw)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q (valid: %s)", ErrUnknownKind, raw, joinKinds(kinds))
	}
	return k, nil
}

// Lookup returns the converter registered for k.
func Lookup(k Kind) (Converter, bool) {
	fn, ok := converters[k]
	return fn, ok
}

// MustLookup returns the converter registered for k and panics when k is not
// registered. Callers are expected to validate configuration first.
func MustLookup(k Kind) Converter {
	fn, ok := converters[k]
	if !ok {
		panic(fmt.Sprintf("casing: %v: %q", ErrUnknownKind, string(k)))
	}
	return fn
}

// ToCamel converts s to camelCase. The first word is lower-cased and every
// following word is title-cased.
// Example: "TestSecondKey" -> "testSecondKey", "test-key" -> "testKey"
func ToCamel(s string) string {
	words := Words(s)
	if len(words) == 0 {
		return ""
	}
	lower := cases.Lower(language.Und)
	title := cases.Title(language.Und)

	var b strings.Builder
	b.Grow(len(s))
	for i, w := range words {
		if i == 0 {
			b.WriteString(lower.String(w))
			continue
		}
		b.WriteString(title.String(w))
	}
	return b.String()
}

// ToSnake converts s to snake_case.
// Example: "TestSecondKey" -> "test_second_key", "TEST" -> "test"
func ToSnake(s string) string {
	words := Words(s)
	if len(words) == 0 {
		return ""
	}
	lower := cases.Lower(language.Und)
	for i, w := range words {
		words[i] = lower.String(w)
	}
	return strings.Join(words, "_")
}

type runeClass int

const (
	classSeparator runeClass = iota
	classLower
	classUpper
	classDigit
)

func classify(r rune) runeClass {
	switch {
	case unicode.IsUpper(r):
		return classUpper
	case unicode.IsLetter(r):
		return classLower
	case unicode.IsDigit(r):
		return classDigit
	default:
		return classSeparator
	}
}

// Words splits s into words. Boundaries are separators (anything that is not
// a letter or digit), lower-to-upper transitions, letter/digit transitions,
// and the last capital of an acronym that starts a capitalized word
// ("XMLHttp" -> "XML", "Http"). Apostrophes are dropped without splitting.
// Combining marks stay attached to the letter before them.
func Words(s string) []string {
	var (
		words []string
		cur   []rune
		prev  = classSeparator
		// lastUpper is the index in cur where the latest capital starts.
		lastUpper int
	)
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}

	for _, r := range s {
		if r == '\'' || r == '’' {
			continue
		}
		if unicode.Is(unicode.Mark, r) {
			if len(cur) > 0 {
				cur = append(cur, r)
			}
			continue
		}
		c := classify(r)
		switch c {
		case classSeparator:
			flush()
		case classDigit:
			if prev != classDigit {
				flush()
			}
			cur = append(cur, r)
		case classUpper:
			if prev == classLower || prev == classDigit {
				flush()
			}
			lastUpper = len(cur)
			cur = append(cur, r)
		case classLower:
			switch {
			case prev == classDigit:
				flush()
			case prev == classUpper && lastUpper > 0:
				tail := append([]rune(nil), cur[lastUpper:]...)
				cur = cur[:lastUpper]
				flush()
				cur = append(cur, tail...)
			}
			cur = append(cur, r)
		}
		prev = c
	}
	flush()
	return words
}

// memoize caches fn results per input string. Concurrent first calls for the
// same input may both compute, but only one result is stored.
func memoize(fn Converter) Converter {
	var cache sync.Map
	return func(s string) string {
		if v, ok := cache.Load(s); ok {
			return v.(string)
		}
		v, _ := cache.LoadOrStore(s, fn(s))
		return v.(string)
	}
}

func joinKinds(ks []Kind) string {
	names := make([]string, len(ks))
	for i, k := range ks {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}
