package settlement

import (
	"context"
	"errors"
	"time"

	"casino_ledger/internal/apperr"
	"casino_ledger/internal/fairness"
	"casino_ledger/internal/logger"
	"casino_ledger/internal/metrics"
	"casino_ledger/internal/notify"
	"casino_ledger/internal/wagering"
	"casino_ledger/internal/wallet"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	dailyWindow = 24 * time.Hour
	VerifyRef   = "/api/fairness/verify"
)

var errDailyLimit = errors.New("daily bet limit exceeded")

// ViolationRecorder is told about every daily limit breach.
type ViolationRecorder interface {
	RecordViolation(ctx context.Context, accountID string, detail map[string]interface{}) (bool, error)
}

type Engine struct {
	db         *gorm.DB
	ledger     *wallet.Ledger
	tracker    *wagering.Tracker
	bets       Repository
	violations ViolationRecorder
	publisher  notify.Publisher
	settings   Settings
	now        func() time.Time
	secrets    func() (string, error)
}

func NewEngine(db *gorm.DB, ledger *wallet.Ledger, tracker *wagering.Tracker, bets Repository,
	violations ViolationRecorder, publisher notify.Publisher, settings Settings) (*Engine, error) {
	if err := fairness.ValidateHouseEdge(settings.HouseEdge); err != nil {
		return nil, err
	}
	if publisher == nil {
		publisher = notify.Discard{}
	}
	return &Engine{
		db:         db,
		ledger:     ledger,
		tracker:    tracker,
		bets:       bets,
		violations: violations,
		publisher:  publisher,
		settings:   settings,
		now:        func() time.Time { return time.Now().UTC() },
		secrets:    fairness.NewServerSecret,
	}, nil
}

func (e *Engine) Settings() Settings { return e.settings }

// Settle runs one crash bet to completion. The debit, wagering progress, the
// payout and the bet record commit together or not at all.
func (e *Engine) Settle(ctx context.Context, req SettleRequest) (*SettleResult, error) {
	started := time.Now()
	res, err := e.settle(ctx, req)
	switch {
	case err != nil:
		metrics.RecordBet("rejected", started)
	case res.Won:
		metrics.RecordBet(string(BetWon), started)
		metrics.RecordPayout(res.Payout)
	default:
		metrics.RecordBet(string(BetLost), started)
	}
	return res, err
}

func (e *Engine) settle(ctx context.Context, req SettleRequest) (*SettleResult, error) {
	if !e.settings.Enabled {
		return nil, apperr.Validation("crash game is disabled")
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	clientSeed := req.ClientSeed
	if clientSeed == "" {
		clientSeed = req.AccountID
	}
	var sequence int64
	if req.Sequence != nil {
		sequence = *req.Sequence
	} else {
		seq, err := fairness.NewSequence()
		if err != nil {
			return nil, err
		}
		sequence = seq
	}

	secret, err := e.secrets()
	if err != nil {
		return nil, err
	}
	commitment := fairness.Commitment(secret)

	var (
		result    *SettleResult
		completed []wagering.Record
	)
	err = wallet.RunInTx(ctx, e.db, func(tx *gorm.DB) error {
		acc, err := e.ledger.Lock(ctx, tx, req.AccountID)
		if err != nil {
			return err
		}
		if err := e.checkPreconditions(ctx, tx, acc, req.Stake); err != nil {
			return err
		}

		betID := uuid.New().String()
		now := e.now()
		if _, err := e.ledger.Debit(ctx, tx, acc, req.Stake, wallet.Movement{
			Kind:        wallet.KindBet,
			ReferenceID: betID,
			Metadata:    map[string]interface{}{"bet_id": betID, "game_id": GameCrash},
		}); err != nil {
			return err
		}

		outcome := fairness.Outcome(secret, clientSeed, sequence, e.settings.HouseEdge)
		won := req.CashoutTarget.LessThanOrEqual(outcome.Value)
		payout := decimal.Zero
		multiplier := decimal.Zero
		status := BetLost
		if won {
			payout = req.Stake.Mul(req.CashoutTarget).Round(2)
			multiplier = req.CashoutTarget
			status = BetWon
		}

		progress, err := e.tracker.ApplyProgress(ctx, tx, acc.AccountID, req.Stake)
		if err != nil {
			return err
		}
		for _, rec := range progress.Completed {
			if !rec.Source.HeldInBonus() {
				continue
			}
			if _, err := e.ledger.ReleaseBonus(ctx, tx, acc, rec.Principal, wallet.Movement{
				Kind:        wallet.KindBonus,
				ReferenceID: rec.SourceID,
				Metadata:    map[string]interface{}{"reason": "wagering complete", "record_id": rec.RecordID, "bet_id": betID},
			}); err != nil {
				return err
			}
		}

		if won {
			if _, err := e.ledger.Credit(ctx, tx, acc, payout, wallet.Movement{
				Kind:        wallet.KindWin,
				ReferenceID: betID,
				Metadata:    map[string]interface{}{"bet_id": betID, "multiplier": req.CashoutTarget.StringFixed(2)},
			}); err != nil {
				return err
			}
		}

		bet := &Bet{
			BetID:      betID,
			AccountID:  acc.AccountID,
			GameID:     GameCrash,
			Stake:      req.Stake,
			Multiplier: multiplier,
			Outcome:    outcome.Value,
			Payout:     payout,
			Status:     status,
			Params: map[string]interface{}{
				"cashout_target":  req.CashoutTarget.StringFixed(2),
				"client_seed":     clientSeed,
				"sequence":        sequence,
				"commitment_hash": commitment,
			},
			Result: map[string]interface{}{
				"outcome_value":   outcome.Value.StringFixed(2),
				"server_secret":   secret,
				"commitment_hash": commitment,
				"house_edge":      e.settings.HouseEdge,
			},
			CreatedAt: now,
			SettledAt: now,
		}
		if err := e.bets.Create(ctx, tx, bet); err != nil {
			return err
		}

		completed = progress.Completed
		result = &SettleResult{
			BetID:          betID,
			Won:            won,
			Stake:          req.Stake,
			CashoutTarget:  req.CashoutTarget,
			Payout:         payout,
			OutcomeValue:   outcome.Value,
			CommitmentHash: commitment,
			RevealedSecret: secret,
			ClientSeed:     clientSeed,
			Sequence:       sequence,
			HouseEdge:      e.settings.HouseEdge,
			VerifyRef:      VerifyRef,
			Balances:       Balances{Available: acc.Available, Locked: acc.Locked},
			Wagering:       progress.Status,
		}
		return nil
	})
	if errors.Is(err, errDailyLimit) {
		e.recordViolation(ctx, req)
		return nil, apperr.Validation("daily betting limit reached")
	}
	if err != nil {
		return nil, err
	}

	logger.InfoCtx(ctx, "bet settled",
		zap.String("bet_id", result.BetID),
		zap.String("account_id", req.AccountID),
		zap.String("stake", req.Stake.StringFixed(2)),
		zap.String("target", req.CashoutTarget.StringFixed(2)),
		zap.String("outcome", result.OutcomeValue.StringFixed(2)),
		zap.Bool("won", result.Won),
		zap.String("payout", result.Payout.StringFixed(2)))

	notify.Send(e.publisher, req.AccountID, notify.EventBetSettled, map[string]interface{}{
		"bet_id": result.BetID,
		"won":    result.Won,
		"payout": result.Payout.StringFixed(2),
	}, notify.ChannelInApp)
	for _, rec := range completed {
		metrics.RecordWageringCompleted(string(rec.Source))
		notify.Send(e.publisher, req.AccountID, notify.EventWageringCompleted, map[string]interface{}{
			"record_id": rec.RecordID,
			"source":    string(rec.Source),
		}, notify.ChannelInApp, notify.ChannelPush)
	}
	return result, nil
}

func validateRequest(req SettleRequest) error {
	if req.AccountID == "" {
		return apperr.Validation("account id is required")
	}
	if !req.Stake.IsPositive() || !req.Stake.Equal(req.Stake.Round(2)) {
		return apperr.Validation("stake %s must be positive with at most 2 decimals", req.Stake)
	}
	if req.CashoutTarget.LessThan(MinCashoutTarget) || req.CashoutTarget.GreaterThan(MaxCashoutTarget) {
		return apperr.Validation("cashout target %s outside [%s, %s]", req.CashoutTarget, MinCashoutTarget, MaxCashoutTarget.StringFixed(2))
	}
	if !req.CashoutTarget.Equal(req.CashoutTarget.Round(2)) {
		return apperr.Validation("cashout target %s has more than 2 decimals", req.CashoutTarget)
	}
	if req.Sequence != nil && *req.Sequence < 0 {
		return apperr.Validation("sequence %d is negative", *req.Sequence)
	}
	return nil
}

// checkPreconditions runs before any mutation, in the documented order.
func (e *Engine) checkPreconditions(ctx context.Context, tx *gorm.DB, acc *wallet.Account, stake decimal.Decimal) error {
	if err := wallet.CheckActive(acc); err != nil {
		return err
	}
	if stake.LessThan(e.settings.MinBet) || stake.GreaterThan(e.settings.MaxBet) {
		return apperr.Validation("stake %s outside [%s, %s]", stake.StringFixed(2), e.settings.MinBet.StringFixed(2), e.settings.MaxBet.StringFixed(2))
	}
	if acc.Available.LessThan(stake) {
		return apperr.InsufficientFunds("available %s is less than stake %s", acc.Available.StringFixed(2), stake.StringFixed(2))
	}
	staked, err := e.bets.StakeSince(ctx, tx, acc.AccountID, e.now().Add(-dailyWindow))
	if err != nil {
		return err
	}
	if staked.Add(stake).GreaterThan(e.settings.DailyLimit) {
		return errDailyLimit
	}
	return nil
}

func (e *Engine) recordViolation(ctx context.Context, req SettleRequest) {
	if e.violations == nil {
		return
	}
	frozen, err := e.violations.RecordViolation(ctx, req.AccountID, map[string]interface{}{
		"stake":       req.Stake.StringFixed(2),
		"daily_limit": e.settings.DailyLimit.StringFixed(2),
	})
	if err != nil {
		logger.ErrorCtx(ctx, "failed to record bet limit violation", zap.String("account_id", req.AccountID), zap.Error(err))
		return
	}
	if frozen {
		logger.WarnCtx(ctx, "account auto-frozen", zap.String("account_id", req.AccountID))
	}
}

func (e *Engine) History(ctx context.Context, accountID string, limit int) ([]Bet, error) {
	return e.bets.ListByAccount(ctx, accountID, limit)
}
