// Package fairness generates crash outcomes that players can recompute once
// the server secret is revealed.
package fairness

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"math/big"
	"strconv"

	"casino_ledger/internal/apperr"

	"github.com/shopspring/decimal"
)

const (
	MinOutcome = 1.00
	MaxOutcome = 100.00

	// Only the first 13 hex characters (52 bits) of the digest are used.
	digestPrefixLen = 13
	sequenceBound   = 1_000_000_000
)

var twoPow52 = float64(uint64(1) << 52)

type Result struct {
	Value      decimal.Decimal
	Commitment string
}

// NewServerSecret returns 32 random bytes, hex encoded.
func NewServerSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate server secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// NewSequence picks a sequence number in [0, 1e9) for callers that did not supply one.
func NewSequence() (int64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(sequenceBound))
	if err != nil {
		return 0, fmt.Errorf("failed to generate sequence: %w", err)
	}
	return n.Int64(), nil
}

// Commitment is the hex SHA-256 of the secret, published before the secret is used.
func Commitment(serverSecret string) string {
	sum := sha256.Sum256([]byte(serverSecret))
	return hex.EncodeToString(sum[:])
}

// Outcome is a pure function of its inputs. houseEdge must already be validated.
func Outcome(serverSecret, clientSeed string, sequence int64, houseEdge float64) Result {
	mac := hmac.New(sha256.New, []byte(serverSecret))
	mac.Write([]byte(clientSeed + ":" + strconv.FormatInt(sequence, 10)))
	digest := hex.EncodeToString(mac.Sum(nil))

	r, _ := strconv.ParseUint(digest[:digestPrefixLen], 16, 64)
	return Result{
		Value:      valueFromBits(r, houseEdge),
		Commitment: Commitment(serverSecret),
	}
}

func valueFromBits(r uint64, houseEdge float64) decimal.Decimal {
	raw := (1 - houseEdge) * (twoPow52 / float64(r+1))
	raw = math.Max(MinOutcome, math.Min(raw, MaxOutcome))
	return roundOutcome(raw)
}

// roundOutcome rounds the exact binary value of raw to cents. Exact ties go to
// the even cent, so 2.675 (stored just below) is 2.67 and 1.125 is 1.12.
func roundOutcome(raw float64) decimal.Decimal {
	return decimal.RequireFromString(strconv.FormatFloat(raw, 'f', 2, 64))
}

func ValidateHouseEdge(houseEdge float64) error {
	if math.IsNaN(houseEdge) || houseEdge < 0 || houseEdge >= 1 {
		return apperr.Configuration("house edge %v outside [0, 1)", houseEdge)
	}
	return nil
}

// VerifyRequest carries everything revealed after settlement.
type VerifyRequest struct {
	ServerSecret string  `json:"server_secret" binding:"required"`
	ClientSeed   string  `json:"client_seed"`
	Sequence     int64   `json:"sequence"`
	HouseEdge    float64 `json:"house_edge"`
}

type VerifyResponse struct {
	Commitment   string          `json:"commitment_hash"`
	OutcomeValue decimal.Decimal `json:"outcome_value"`
}

// Verify recomputes an outcome. Bad input is a validation error here, since the
// values come from the public rather than from configuration.
func Verify(req VerifyRequest) (*VerifyResponse, error) {
	if req.ServerSecret == "" {
		return nil, apperr.Validation("server secret is required")
	}
	if req.Sequence < 0 {
		return nil, apperr.Validation("sequence %d is negative", req.Sequence)
	}
	if err := ValidateHouseEdge(req.HouseEdge); err != nil {
		return nil, apperr.Validation("house edge %v outside [0, 1)", req.HouseEdge)
	}
	res := Outcome(req.ServerSecret, req.ClientSeed, req.Sequence, req.HouseEdge)
	return &VerifyResponse{Commitment: res.Commitment, OutcomeValue: res.Value}, nil
}
