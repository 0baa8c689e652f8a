package tx

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()

	_, ok := From(ctx)
	assert.False(t, ok, "fresh context carries no transaction")

	assert.Equal(t, ctx, WithTx(ctx, nil), "nil transaction is not stored")
}

func TestPassthroughRunsWithoutTransaction(t *testing.T) {
	var ran bool
	err := Passthrough{}.RunInTx(context.Background(), func(ctx context.Context) error {
		ran = true
		_, ok := From(ctx)
		assert.False(t, ok, "passthrough must not inject a transaction")
		return nil
	})
	assert.NoError(t, err)
	assert.True(t, ran)
}

func TestPassthroughPropagatesError(t *testing.T) {
	want := errors.New("commit refused")
	err := Passthrough{}.RunInTx(context.Background(), func(context.Context) error {
		return want
	})
	assert.ErrorIs(t, err, want)
}
