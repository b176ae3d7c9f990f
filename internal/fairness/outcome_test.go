package fairness_test

import (
	"fmt"
	"testing"

	"casino_ledger/internal/apperr"
	"casino_ledger/internal/fairness"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueFromBits(t *testing.T) {
	tests := []struct {
		name string
		r    uint64
		edge float64
		want string
	}{
		{"half range", 1<<51 - 1, 0.03, "1.94"},
		{"quarter range", 1<<50 - 1, 0.03, "3.88"},
		{"quarter range no edge", 1<<50 - 1, 0, "4"},
		{"max bits clamps to floor", 1<<52 - 1, 0.03, "1"},
		{"zero bits clamps to ceiling", 0, 0.03, "100"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fairness.ValueFromBits(tt.r, tt.edge)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s, want %s", got, tt.want)
		})
	}
}

func TestRoundOutcome(t *testing.T) {
	tests := []struct {
		raw  float64
		want string
	}{
		{2.675, "2.67"},
		{2.665, "2.67"},
		{1.125, "1.12"},
		{1.375, "1.38"},
		{1.005, "1"},
		{1.015, "1.01"},
		{99.995, "100"},
		{1.94, "1.94"},
	}
	for _, tt := range tests {
		got := fairness.RoundOutcome(tt.raw)
		assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "%v: got %s, want %s", tt.raw, got, tt.want)
	}
}

func TestOutcomeRangeAndPrecision(t *testing.T) {
	lo := decimal.NewFromFloat(fairness.MinOutcome)
	hi := decimal.NewFromFloat(fairness.MaxOutcome)

	for i := 0; i < 500; i++ {
		secret, err := fairness.NewServerSecret()
		require.NoError(t, err)

		res := fairness.Outcome(secret, fmt.Sprintf("seed-%d", i), int64(i), 0.03)
		assert.True(t, res.Value.GreaterThanOrEqual(lo), "value %s below floor", res.Value)
		assert.True(t, res.Value.LessThanOrEqual(hi), "value %s above ceiling", res.Value)
		assert.True(t, res.Value.Equal(res.Value.Round(2)), "value %s has more than 2 decimals", res.Value)
	}
}

func TestOutcomeIsDeterministic(t *testing.T) {
	secret, err := fairness.NewServerSecret()
	require.NoError(t, err)

	first := fairness.Outcome(secret, "player-seed", 42, 0.03)
	for i := 0; i < 10; i++ {
		again := fairness.Outcome(secret, "player-seed", 42, 0.03)
		assert.True(t, first.Value.Equal(again.Value))
		assert.Equal(t, first.Commitment, again.Commitment)
	}

	verified, err := fairness.Verify(fairness.VerifyRequest{
		ServerSecret: secret,
		ClientSeed:   "player-seed",
		Sequence:     42,
		HouseEdge:    0.03,
	})
	require.NoError(t, err)
	assert.True(t, first.Value.Equal(verified.OutcomeValue))
	assert.Equal(t, first.Commitment, verified.Commitment)
}

func TestCommitment(t *testing.T) {
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", fairness.Commitment("abc"))
}

func TestValidateHouseEdge(t *testing.T) {
	for _, edge := range []float64{0, 0.03, 0.999} {
		assert.NoError(t, fairness.ValidateHouseEdge(edge), "edge %v", edge)
	}
	for _, edge := range []float64{-0.01, 1, 1.5} {
		assert.ErrorIs(t, fairness.ValidateHouseEdge(edge), apperr.ErrConfiguration, "edge %v", edge)
	}
}

func TestVerifyRejectsBadInput(t *testing.T) {
	_, err := fairness.Verify(fairness.VerifyRequest{ServerSecret: "s", HouseEdge: 1})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = fairness.Verify(fairness.VerifyRequest{HouseEdge: 0.03})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = fairness.Verify(fairness.VerifyRequest{ServerSecret: "s", Sequence: -1})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestNewSequenceBounds(t *testing.T) {
	for i := 0; i < 50; i++ {
		seq, err := fairness.NewSequence()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, seq, int64(0))
		assert.Less(t, seq, int64(1_000_000_000))
	}
}
