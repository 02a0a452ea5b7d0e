package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/josh-kwaku/spendguard/internal/config"
	"github.com/josh-kwaku/spendguard/internal/logging"
	"github.com/josh-kwaku/spendguard/internal/metrics"
	"github.com/josh-kwaku/spendguard/internal/repository"
	"github.com/josh-kwaku/spendguard/internal/service"
	"github.com/josh-kwaku/spendguard/internal/service/budget"
	"github.com/josh-kwaku/spendguard/internal/service/enforcement"
	"github.com/josh-kwaku/spendguard/internal/service/ledger"
)

const (
	serviceName     = "spendguard"
	dbWaitAttempts  = 30
	dbWaitDelay     = time.Second
	shutdownTimeout = 30 * time.Second
)

type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           serviceName,
		Short:         "Spend ledger and hierarchical budget enforcement for autonomous agents",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logging.Init(serviceName, cfg.LogLevel, cfg.AppEnv)
			return nil
		},
	}

	root.AddCommand(newServeCmd(a), newMigrateCmd(a), newSweepCmd(a))
	return root
}

func (a *app) openDB(ctx context.Context) (*sql.DB, error) {
	pool := repository.PoolConfig{
		MaxOpenConns:     a.cfg.DBMaxOpenConns,
		MaxIdleConns:     a.cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: a.cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: a.cfg.DBConnMaxIdleTimeS,
	}
	db, err := repository.WaitForPostgres(ctx, a.cfg.DatabaseURL, pool, dbWaitAttempts, dbWaitDelay)
	if err != nil {
		return nil, fmt.Errorf("openDB: %w", err)
	}
	return db, nil
}

// engine is the composed set of components the process serves. The
// commands here read budgets and sweeper; accounts, ledger and enforcer are
// the entry points an embedding API layer calls.
type engine struct {
	accounts *service.AccountService
	ledger   *ledger.Recorder
	budgets  *budget.Store
	enforcer *enforcement.Enforcer
	sweeper  *service.ReservationSweeper
}

func (a *app) wire(db *sql.DB, reg prometheus.Registerer) *engine {
	m := metrics.New(reg)
	tx := repository.NewDB(db)
	accountRepo := repository.NewAccountRepository(db)

	store := budget.NewStore(
		repository.NewBudgetRepository(db),
		repository.NewReservationRepository(db),
		tx,
		a.cfg.Engine(),
		m,
	)

	return &engine{
		accounts: service.NewAccountService(accountRepo),
		ledger:   ledger.NewRecorder(accountRepo, repository.NewLedgerRepository(db), tx, m),
		budgets:  store,
		enforcer: enforcement.NewEnforcer(store, a.cfg.Engine(), m),
		sweeper:  service.NewReservationSweeper(store, a.logger, a.cfg.SweepInterval()),
	}
}
