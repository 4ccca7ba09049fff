// Package token issues the capability tokens applicants use to check the
// status of an enrollment request without logging in.
package token

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const (
	alphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	groups      = 3
	groupSize   = 4
	length      = groups * groupSize
	separator   = "-"
	maxUnbiased = 252 // largest multiple of len(alphabet) below 256
)

// DefaultMaxAttempts bounds collision retries when no limit is configured.
const DefaultMaxAttempts = 5

// ErrExhausted is returned when every attempt collided with an existing token.
var ErrExhausted = errors.New("token generation exhausted")

var pattern = regexp.MustCompile(`^[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`)

// ExistsFunc reports whether a token is already taken.
type ExistsFunc func(ctx context.Context, token string) (bool, error)

// Generator produces XXXX-XXXX-XXXX tokens from a random source.
type Generator struct {
	random      io.Reader
	maxAttempts int
}

// NewGenerator builds a generator reading from crypto/rand.
func NewGenerator(maxAttempts int) *Generator {
	return NewGeneratorWithSource(rand.Reader, maxAttempts)
}

// NewGeneratorWithSource lets tests supply a deterministic source.
func NewGeneratorWithSource(random io.Reader, maxAttempts int) *Generator {
	if random == nil {
		random = rand.Reader
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Generator{random: random, maxAttempts: maxAttempts}
}

// MaxAttempts returns the configured retry bound.
func (g *Generator) MaxAttempts() int {
	return g.maxAttempts
}

// New returns a single random token without any collision check.
func (g *Generator) New() (string, error) {
	out := make([]byte, 0, length)
	for len(out) < length {
		buf := make([]byte, length-len(out))
		if _, err := io.ReadFull(g.random, buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= maxUnbiased {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
		}
	}

	parts := make([]string, groups)
	for i := range parts {
		parts[i] = string(out[i*groupSize : (i+1)*groupSize])
	}
	return strings.Join(parts, separator), nil
}

// ErrTaken is returned by a ClaimFunc when the candidate was taken after the
// existence check, e.g. by a concurrent insert. It costs one attempt.
var ErrTaken = errors.New("token taken")

// ClaimFunc stores a free candidate token.
type ClaimFunc func(ctx context.Context, token string) error

// Unique draws tokens until exists reports one free, giving up after the
// configured number of attempts.
func (g *Generator) Unique(ctx context.Context, exists ExistsFunc) (string, error) {
	return g.Claim(ctx, exists, nil)
}

// Claim draws tokens until one is both free and claimed. Existence hits and
// ErrTaken from claim are drawn from the same attempt budget.
func (g *Generator) Claim(ctx context.Context, exists ExistsFunc, claim ClaimFunc) (string, error) {
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		candidate, err := g.New()
		if err != nil {
			return "", err
		}
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check token: %w", err)
		}
		if taken {
			continue
		}
		if claim == nil {
			return candidate, nil
		}
		err = claim(ctx, candidate)
		if errors.Is(err, ErrTaken) {
			continue
		}
		if err != nil {
			return "", err
		}
		return candidate, nil
	}
	return "", ErrExhausted
}

// Valid reports whether s is shaped like a request token. Lookups normalise
// case first so applicants may type it in lowercase.
func Valid(s string) bool {
	return pattern.MatchString(Normalize(s))
}

// Normalize trims and upper-cases a user-supplied token.
func Normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
