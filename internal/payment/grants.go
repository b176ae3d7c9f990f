package payment

import (
	"context"
	"errors"
	"strings"

	"casino_ledger/internal/apperr"
	"casino_ledger/internal/logger"
	"casino_ledger/internal/notify"
	"casino_ledger/internal/wagering"
	"casino_ledger/internal/wallet"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GrantBonus credits referral or rebate funds into the bonus bucket and
// attaches a wagering requirement consumed after deposit and bonus ones. The
// funds move to available when that requirement completes.
func (w *Workflow) GrantBonus(ctx context.Context, in GrantInput) (*wagering.Record, error) {
	source, err := wagering.ParseSource(in.Kind)
	if err != nil {
		return nil, err
	}
	var (
		kind       wallet.EntryKind
		multiplier decimal.Decimal
	)
	switch source {
	case wagering.SourceReferral:
		kind, multiplier = wallet.KindReferral, w.limits.ReferralMultiplier
	case wagering.SourceRebate:
		kind, multiplier = wallet.KindRebate, w.limits.RebateMultiplier
	default:
		return nil, apperr.Validation("grant kind must be referral or rebate, got %q", in.Kind)
	}
	if !in.Amount.IsPositive() || !in.Amount.Equal(in.Amount.Round(2)) {
		return nil, apperr.Validation("grant amount %s must be positive with at most 2 decimals", in.Amount)
	}

	grantID := uuid.New().String()
	reference := in.Reference
	if reference == "" {
		reference = grantID
	}

	var rec *wagering.Record
	err = wallet.RunInTx(ctx, w.db, func(tx *gorm.DB) error {
		acc, err := w.ledger.Lock(ctx, tx, in.AccountID)
		if err != nil {
			return err
		}
		if !acc.IsActive {
			return apperr.AccountState("account is inactive")
		}
		if _, err := w.ledger.CreditBonus(ctx, tx, acc, in.Amount, wallet.Movement{
			Kind:        kind,
			ReferenceID: reference,
			Metadata:    map[string]interface{}{"grant_id": grantID, "admin_id": in.AdminID},
		}); err != nil {
			return err
		}
		rec, err = w.tracker.Create(ctx, tx, wagering.NewRecord{
			AccountID:  acc.AccountID,
			Source:     source,
			SourceID:   reference,
			Principal:  in.Amount,
			Multiplier: multiplier,
			Priority:   wagering.PriorityGrant,
		})
		if err != nil {
			return err
		}
		if rec.Status == wagering.StatusCompleted {
			_, err = w.ledger.ReleaseBonus(ctx, tx, acc, in.Amount, wallet.Movement{
				Kind:        kind,
				ReferenceID: reference,
				Metadata:    map[string]interface{}{"reason": "no wagering required", "grant_id": grantID},
			})
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.InfoCtx(ctx, "bonus granted",
		zap.String("account_id", in.AccountID),
		zap.String("kind", string(source)),
		zap.String("amount", in.Amount.StringFixed(2)),
		zap.String("admin_id", in.AdminID))
	notify.Send(w.publisher, in.AccountID, notify.EventBonusGranted,
		map[string]interface{}{"kind": string(source), "amount": in.Amount.StringFixed(2)},
		notify.ChannelInApp)
	return rec, nil
}

// ClaimDownloadBonus grants a small random bonus once per account, phone,
// device and install. Failed checks all look the same to the caller.
func (w *Workflow) ClaimDownloadBonus(ctx context.Context, in DownloadClaimInput) (*DownloadClaimResult, error) {
	in.Phone = strings.TrimSpace(in.Phone)
	in.DeviceID = strings.TrimSpace(in.DeviceID)
	in.InstallID = strings.TrimSpace(in.InstallID)
	if in.AccountID == "" || in.Phone == "" || in.DeviceID == "" || in.InstallID == "" {
		return &DownloadClaimResult{}, nil
	}

	amount := decimal.NewFromInt(w.promos.Calculator().IntBetween(w.limits.DownloadBonusMin, w.limits.DownloadBonusMax))
	err := wallet.RunInTx(ctx, w.db, func(tx *gorm.DB) error {
		acc, err := w.ledger.Lock(ctx, tx, in.AccountID)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return errNotGranted
			}
			return err
		}
		if wallet.CheckActive(acc) != nil {
			return errNotGranted
		}
		claimed, err := w.repo.ClaimExists(ctx, tx, in)
		if err != nil {
			return err
		}
		if claimed {
			return errNotGranted
		}

		claimID := uuid.New().String()
		if _, err := w.ledger.Credit(ctx, tx, acc, amount, wallet.Movement{
			Kind:        wallet.KindBonus,
			ReferenceID: claimID,
			Metadata:    map[string]interface{}{"source": "app_download"},
		}); err != nil {
			return err
		}
		err = w.repo.CreateClaim(ctx, tx, &DownloadClaim{
			ClaimID:   claimID,
			AccountID: acc.AccountID,
			Phone:     in.Phone,
			DeviceID:  in.DeviceID,
			InstallID: in.InstallID,
			Amount:    amount,
			CreatedAt: w.now(),
		})
		if errors.Is(err, ErrClaimExists) {
			// a concurrent claim won the unique index after our lookup
			return errNotGranted
		}
		return err
	})
	if errors.Is(err, errNotGranted) {
		logger.DebugCtx(ctx, "download bonus not granted", zap.String("account_id", in.AccountID))
		return &DownloadClaimResult{}, nil
	}
	if err != nil {
		return nil, err
	}

	logger.InfoCtx(ctx, "download bonus granted",
		zap.String("account_id", in.AccountID), zap.String("amount", amount.StringFixed(2)))
	notify.Send(w.publisher, in.AccountID, notify.EventBonusGranted,
		map[string]interface{}{"kind": "app_download", "amount": amount.StringFixed(2)},
		notify.ChannelInApp)
	return &DownloadClaimResult{Granted: true, Amount: &amount}, nil
}
