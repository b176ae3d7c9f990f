// Package app wires the ledger services together for the serve and migrate
// commands.
package app

import (
	"context"
	"fmt"

	"casino_ledger/internal/config"
	"casino_ledger/internal/database"
	"casino_ledger/internal/logger"
	"casino_ledger/internal/notify"
	"casino_ledger/internal/payment"
	"casino_ledger/internal/promotion"
	"casino_ledger/internal/risk"
	"casino_ledger/internal/settlement"
	"casino_ledger/internal/wagering"
	"casino_ledger/internal/wallet"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config     *config.Config
	DB         *gorm.DB
	Redis      *redis.Client
	Accounts   *wallet.Service
	Tracker    *wagering.Tracker
	Promotions *promotion.Service
	Engine     *settlement.Engine
	Workflow   *payment.Workflow
	Policy     *risk.Policy
	Hub        *notify.Hub
	Dispatcher *notify.Dispatcher
}

// Models lists every table the service owns.
func Models() []any {
	return []any{
		&wallet.Account{},
		&wallet.Entry{},
		&wagering.Record{},
		&settlement.Bet{},
		&payment.Request{},
		&payment.DownloadClaim{},
		&promotion.Config{},
		&risk.SecurityEvent{},
	}
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

// Open connects postgres and, when configured, redis, then builds the App.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := database.Open(cfg.DBConnStr, database.DefaultOptions())
	if err != nil {
		return nil, err
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			_ = database.Close(db)
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
	}

	a, err := New(cfg, db, rdb)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// New builds the services on an open database. rdb may be nil, in which case
// violations are counted from the security event table.
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client) (*App, error) {
	a := &App{Config: cfg, DB: db, Redis: rdb}

	loc, err := promotion.LoadLocation(cfg.Timezone)
	if err != nil {
		return a, fmt.Errorf("failed to load business timezone: %w", err)
	}

	a.Hub = notify.NewHub()
	a.Dispatcher = notify.NewDispatcher(cfg.Notify.Workers, cfg.Notify.Queue, a.Hub, notify.LogSink{})

	walletRepo := wallet.NewRepository(db)
	ledger := wallet.NewLedger(walletRepo)
	a.Accounts = wallet.NewService(db, walletRepo, cfg.Currency)
	a.Tracker = wagering.NewTracker(wagering.NewRepository(db))
	a.Promotions = promotion.NewService(promotion.NewRepository(db), promotion.NewCalculator(nil), loc, cfg.PromotionDefaults())

	var window risk.Window = risk.NewDBWindow(db, cfg.Risk.ViolationWindow)
	if rdb != nil {
		window = risk.NewRedisWindow(rdb, cfg.Risk.ViolationWindow)
	}
	a.Policy = risk.NewPolicy(db, window, a.Accounts, a.Dispatcher, cfg.Risk.ViolationThreshold)

	a.Engine, err = settlement.NewEngine(db, ledger, a.Tracker, settlement.NewRepository(db), a.Policy, a.Dispatcher, settlement.Settings{
		Enabled:    cfg.Crash.Enabled,
		HouseEdge:  cfg.Crash.HouseEdge,
		MinBet:     cfg.Crash.MinBet,
		MaxBet:     cfg.Crash.MaxBet,
		DailyLimit: cfg.Crash.DailyLimit,
	})
	if err != nil {
		return a, err
	}

	p := cfg.Payments
	a.Workflow = payment.NewWorkflow(db, payment.NewRepository(db), ledger, a.Accounts, a.Tracker, a.Promotions, a.Dispatcher, payment.Limits{
		DepositMin:         p.DepositMin,
		DepositMax:         p.DepositMax,
		WithdrawMin:        p.WithdrawMin,
		WithdrawMax:        p.WithdrawMax,
		MultiplierMin:      p.MultiplierMin,
		MultiplierMax:      p.MultiplierMax,
		BonusMultiplier:    p.BonusMultiplier,
		ReferralMultiplier: p.ReferralMultiplier,
		RebateMultiplier:   p.RebateMultiplier,
		DownloadBonusMin:   p.DownloadBonusMin,
		DownloadBonusMax:   p.DownloadBonusMax,
	})

	logger.Info("services ready",
		zap.Bool("crash_enabled", cfg.Crash.Enabled),
		zap.Float64("house_edge", cfg.Crash.HouseEdge),
		zap.Bool("redis_window", rdb != nil))
	return a, nil
}

// Close stops the dispatcher and releases connections.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Dispatcher != nil {
		a.Dispatcher.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if a.DB != nil {
		if err := database.Close(a.DB); err != nil {
			logger.Warn("failed to close database", zap.Error(err))
		}
	}
}
