package wagering

import (
	"context"
	"time"

	"casino_ledger/internal/apperr"
	"casino_ledger/internal/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Tracker owns the lifecycle of wagering records. Callers hold the account
// row lock in tx, which serializes progress per account.
type Tracker struct {
	repo Repository
	now  func() time.Time
}

func NewTracker(repo Repository) *Tracker {
	return &Tracker{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// Create stores a new active requirement with target = round(principal * multiplier, 2).
func (t *Tracker) Create(ctx context.Context, tx *gorm.DB, in NewRecord) (*Record, error) {
	if _, err := ParseSource(string(in.Source)); err != nil {
		return nil, err
	}
	if !in.Principal.IsPositive() {
		return nil, apperr.Validation("wagering principal %s must be positive", in.Principal)
	}
	if in.Multiplier.IsNegative() {
		return nil, apperr.Validation("wagering multiplier %s is negative", in.Multiplier)
	}

	now := t.now()
	rec := &Record{
		AccountID:  in.AccountID,
		Source:     in.Source,
		SourceID:   in.SourceID,
		Principal:  in.Principal,
		Multiplier: in.Multiplier,
		Target:     in.Principal.Mul(in.Multiplier).Round(2),
		Wagered:    decimal.Zero,
		Status:     StatusActive,
		Priority:   in.Priority,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	// a zero target is satisfied on creation
	if !rec.Target.IsPositive() {
		rec.Status = StatusCompleted
		rec.CompletedAt = &now
	}
	if err := t.repo.Create(ctx, tx, rec); err != nil {
		return nil, err
	}

	logger.InfoCtx(ctx, "wagering requirement created",
		zap.String("account_id", rec.AccountID),
		zap.String("source", string(rec.Source)),
		zap.String("source_id", rec.SourceID),
		zap.String("target", rec.Target.StringFixed(2)),
		zap.Int("priority", rec.Priority))
	return rec, nil
}

// ApplyProgress consumes stake greedily across active records, lowest priority
// number first and oldest first within a priority.
func (t *Tracker) ApplyProgress(ctx context.Context, tx *gorm.DB, accountID string, stake decimal.Decimal) (*ApplyResult, error) {
	result := &ApplyResult{Applied: decimal.Zero}
	if !stake.IsPositive() {
		status, err := t.StatusTx(ctx, tx, accountID)
		if err != nil {
			return nil, err
		}
		result.Status = status
		return result, nil
	}

	active, err := t.repo.ListActiveForUpdate(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}

	left := stake
	for i := range active {
		if !left.IsPositive() {
			break
		}
		rec := &active[i]
		remaining := rec.Remaining()
		if !remaining.IsPositive() {
			continue
		}

		consumed := decimal.Min(left, remaining)
		wagered := rec.Wagered.Add(consumed)
		status := StatusActive
		var completedAt *time.Time
		if wagered.GreaterThanOrEqual(rec.Target) {
			now := t.now()
			status = StatusCompleted
			completedAt = &now
		}
		if err := t.repo.UpdateProgress(ctx, tx, rec.RecordID, wagered, status, completedAt); err != nil {
			return nil, err
		}

		rec.Wagered = wagered
		rec.Status = status
		rec.CompletedAt = completedAt
		left = left.Sub(consumed)
		result.Applied = result.Applied.Add(consumed)
		result.Progress = append(result.Progress, Progress{
			RecordID:  rec.RecordID,
			Source:    rec.Source,
			Consumed:  consumed,
			Completed: status == StatusCompleted,
		})
		if status == StatusCompleted {
			result.Completed = append(result.Completed, *rec)
			logger.InfoCtx(ctx, "wagering requirement completed",
				zap.String("account_id", accountID),
				zap.Uint64("record_id", rec.RecordID),
				zap.String("source", string(rec.Source)))
		}
	}

	result.Status = aggregate(filterActive(active))
	return result, nil
}

// Status reads the aggregate outside of any transaction.
func (t *Tracker) Status(ctx context.Context, accountID string) (*AggregateStatus, error) {
	return t.StatusTx(ctx, nil, accountID)
}

func (t *Tracker) StatusTx(ctx context.Context, tx *gorm.DB, accountID string) (*AggregateStatus, error) {
	active, err := t.repo.ListByAccount(ctx, tx, accountID, StatusActive)
	if err != nil {
		return nil, err
	}
	return aggregate(active), nil
}

// Records lists every requirement for the account, completed ones included.
func (t *Tracker) Records(ctx context.Context, accountID string) ([]Record, error) {
	return t.repo.ListByAccount(ctx, nil, accountID, "")
}

func filterActive(records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if r.Status == StatusActive {
			out = append(out, r)
		}
	}
	return out
}

func aggregate(active []Record) *AggregateStatus {
	status := &AggregateStatus{
		HasActiveWagering: len(active) > 0,
		TotalTarget:       decimal.Zero,
		TotalWagered:      decimal.Zero,
		Records:           active,
	}
	for _, r := range active {
		status.TotalTarget = status.TotalTarget.Add(r.Target)
		status.TotalWagered = status.TotalWagered.Add(r.Wagered)
	}
	status.Remaining = decimal.Max(decimal.Zero, status.TotalTarget.Sub(status.TotalWagered))
	status.CanWithdraw = !status.Remaining.IsPositive()
	return status
}
