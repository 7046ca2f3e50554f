package reqcoord

import "strings"

// Pattern selects cache keys for ClearByPattern. *regexp.Regexp satisfies it.
type Pattern interface {
	MatchString(key string) bool
}

// Prefix matches keys starting with the given string.
type Prefix string

// MatchString implements Pattern.
func (p Prefix) MatchString(key string) bool {
	return strings.HasPrefix(key, string(p))
}

// Substring matches keys containing the given string anywhere.
type Substring string

// MatchString implements Pattern.
func (p Substring) MatchString(key string) bool {
	return strings.Contains(key, string(p))
}

// PatternFunc adapts a plain function to Pattern.
type PatternFunc func(key string) bool

// MatchString implements Pattern.
func (f PatternFunc) MatchString(key string) bool {
	return f(key)
}
