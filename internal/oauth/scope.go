package oauth

import (
	"strings"

	"github.com/arlofn/provider/internal/common/errorx"
)

// Scope is a bitmask of access rights carried by grants and tokens.
// Combined values are unions: ReadWrite implies both Read and Write.
type Scope int

const (
	ScopeRead      Scope = 2
	ScopeWrite     Scope = 4
	ScopeReadWrite Scope = ScopeRead | ScopeWrite
)

// Has reports whether every bit of required is present in s.
func (s Scope) Has(required Scope) bool {
	return s&required == required
}

func (s Scope) String() string {
	var names []string
	if s.Has(ScopeRead) {
		names = append(names, "read")
	}
	if s.Has(ScopeWrite) {
		names = append(names, "write")
	}
	return strings.Join(names, " ")
}

// ParseScope parses a scope string with space or plus separated names.
// An empty string is a valid empty scope; unknown names fail with
// invalid_scope.
func ParseScope(raw string) (Scope, error) {
	var s Scope
	for _, name := range strings.Fields(strings.ReplaceAll(raw, "+", " ")) {
		switch name {
		case "read":
			s |= ScopeRead
		case "write":
			s |= ScopeWrite
		default:
			return 0, errorx.ErrInvalidScope
		}
	}
	return s, nil
}
