package token

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratorNewFormat(t *testing.T) {
	g := NewGenerator(0)
	for i := 0; i < 50; i++ {
		tok, err := g.New()
		require.NoError(t, err)
		assert.Regexp(t, `^[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`, tok)
		assert.True(t, Valid(tok))
	}
	assert.Equal(t, DefaultMaxAttempts, g.MaxAttempts())
}

func TestGeneratorSkipsBiasedBytes(t *testing.T) {
	// 255 is rejected; the remaining bytes map to A, B, C, ... in order.
	src := append([]byte{255, 255}, []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13}...)
	g := NewGeneratorWithSource(bytes.NewReader(src), 1)

	tok, err := g.New()
	require.NoError(t, err)
	assert.Equal(t, "ABCD-EFGH-IJKL", tok)
}

func TestGeneratorUniqueRetriesOnCollision(t *testing.T) {
	g := NewGenerator(3)
	calls := 0
	tok, err := g.Unique(context.Background(), func(ctx context.Context, candidate string) (bool, error) {
		calls++
		return calls < 3, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, Valid(tok))
}

func TestGeneratorUniqueExhausted(t *testing.T) {
	g := NewGenerator(4)
	calls := 0
	_, err := g.Unique(context.Background(), func(ctx context.Context, candidate string) (bool, error) {
		calls++
		return true, nil
	})
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 4, calls)
}

func TestGeneratorUniquePropagatesLookupError(t *testing.T) {
	g := NewGenerator(4)
	lookupErr := errors.New("db down")
	_, err := g.Unique(context.Background(), func(ctx context.Context, candidate string) (bool, error) {
		return false, lookupErr
	})
	assert.ErrorIs(t, err, lookupErr)
	assert.NotErrorIs(t, err, ErrExhausted)
}

func TestGeneratorClaimSharesAttemptBudget(t *testing.T) {
	g := NewGenerator(4)
	lookups, claims := 0, 0
	_, err := g.Claim(context.Background(),
		func(ctx context.Context, candidate string) (bool, error) {
			lookups++
			return lookups <= 2, nil
		},
		func(ctx context.Context, candidate string) error {
			claims++
			return ErrTaken
		})
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 4, lookups)
	assert.Equal(t, 2, claims)
}

func TestGeneratorClaimReturnsClaimedToken(t *testing.T) {
	g := NewGenerator(3)
	var stored string
	tok, err := g.Claim(context.Background(),
		func(ctx context.Context, candidate string) (bool, error) { return false, nil },
		func(ctx context.Context, candidate string) error {
			stored = candidate
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, stored, tok)
}

func TestGeneratorClaimPropagatesStoreError(t *testing.T) {
	g := NewGenerator(3)
	storeErr := errors.New("insert failed")
	_, err := g.Claim(context.Background(),
		func(ctx context.Context, candidate string) (bool, error) { return false, nil },
		func(ctx context.Context, candidate string) error { return storeErr })
	assert.ErrorIs(t, err, storeErr)
}

func TestValidNormalizes(t *testing.T) {
	assert.True(t, Valid(" abcd-1234-wxyz "))
	assert.False(t, Valid("ABCD-1234"))
	assert.False(t, Valid("ABCD_1234_WXYZ"))
	assert.Equal(t, "ABCD-1234-WXYZ", Normalize(" abcd-1234-wxyz "))
}
