package oauth

import (
	"crypto/rand"
	"encoding/base64"
	"time"
)

const (
	// shortTokenBytes sizes client identifiers.
	shortTokenBytes = 8
	// longTokenBytes sizes client secrets, authorization codes, access
	// tokens and refresh tokens.
	longTokenBytes = 32
)

// Generator mints opaque random tokens and authorization-code deadlines.
// Tokens are URL-safe base64 without padding, so they can travel in query
// strings and Authorization headers unescaped.
type Generator struct {
	clock   Clock
	codeTTL time.Duration
}

func NewGenerator(clock Clock, codeTTL time.Duration) *Generator {
	return &Generator{clock: clock, codeTTL: codeTTL}
}

// ShortToken returns a 64-bit random token.
func (g *Generator) ShortToken() string {
	return randomToken(shortTokenBytes)
}

// LongToken returns a 256-bit random token.
func (g *Generator) LongToken() string {
	return randomToken(longTokenBytes)
}

// CodeExpiry returns the deadline for an authorization code issued now.
func (g *Generator) CodeExpiry() time.Time {
	return g.clock.Now().Add(g.codeTTL)
}

func randomToken(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
