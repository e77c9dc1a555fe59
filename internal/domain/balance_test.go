package domain_test

import (
	"testing"

	"github.com/alejandrodnm/gridbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalance_ReserveReleaseConsume(t *testing.T) {
	b := domain.Balance{Asset: "USDT", Free: 1000}

	require.NoError(t, b.Reserve(400))
	assert.InDelta(t, 600, b.Free, 1e-9)
	assert.InDelta(t, 400, b.Locked, 1e-9)
	assert.InDelta(t, 1000, b.Total(), 1e-9)

	b.Release(150)
	assert.InDelta(t, 750, b.Free, 1e-9)
	assert.InDelta(t, 250, b.Locked, 1e-9)
	assert.InDelta(t, 1000, b.Total(), 1e-9)

	b.Consume(250, true)
	assert.InDelta(t, 750, b.Free, 1e-9)
	assert.InDelta(t, 0, b.Locked, 1e-9)
	assert.InDelta(t, 750, b.Total(), 1e-9)
}

func TestBalance_ReserveInsufficient(t *testing.T) {
	b := domain.Balance{Asset: "BTC", Free: 0.1}

	err := b.Reserve(0.2)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	// No mutation on failure
	assert.InDelta(t, 0.1, b.Free, 1e-12)
	assert.InDelta(t, 0, b.Locked, 1e-12)
}

func TestBalance_ConsumeUnreserved(t *testing.T) {
	b := domain.Balance{Asset: "USDT", Free: 500}

	// Unreserved fills settle straight from free
	b.Consume(200, false)
	assert.InDelta(t, 300, b.Free, 1e-9)
	assert.InDelta(t, 0, b.Locked, 1e-9)
}

func TestBalance_DepositAfterFill(t *testing.T) {
	b := domain.Balance{Asset: "BTC"}
	b.Deposit(0.25)
	assert.InDelta(t, 0.25, b.Free, 1e-12)
	assert.InDelta(t, 0.25, b.Total(), 1e-12)
}
