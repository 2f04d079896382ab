// Package app wires configuration, storage, transports and services into
// the components shared by the server and the CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/CaioWing/Tether/internal/config"
	"github.com/CaioWing/Tether/internal/diagnostics"
	"github.com/CaioWing/Tether/internal/domain"
	"github.com/CaioWing/Tether/internal/lifecycle"
	"github.com/CaioWing/Tether/internal/metrics"
	"github.com/CaioWing/Tether/internal/repository/postgres"
	"github.com/CaioWing/Tether/internal/repository/sqlite"
	"github.com/CaioWing/Tether/internal/service"
	"github.com/CaioWing/Tether/internal/storage/local"
	"github.com/CaioWing/Tether/internal/transport"
)

type Repositories struct {
	Devices     domain.DeviceRepository
	Payloads    domain.PayloadRepository
	Deployments domain.DeploymentRepository
	Audit       domain.AuditRepository
}

type App struct {
	Repos   Repositories
	Store   *local.LocalStore
	Metrics *metrics.Metrics
	Probe   transport.CapabilityProbe

	Devices      *service.DeviceService
	Payloads     *service.PayloadService
	Deployments  *service.DeploymentService
	Audit        *service.AuditService
	Cleanup      *service.CleanupService
	Diagnostics  *diagnostics.Engine
	Orchestrator *service.Orchestrator

	closers []func()
}

// New opens the configured database (running migrations) and builds every
// service. Close releases the database.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	a := &App{Metrics: metrics.New(), Probe: transport.RuntimeProbe{}}

	if err := a.openRepositories(ctx, cfg.DB, log); err != nil {
		return nil, err
	}

	store, err := local.New(cfg.Storage.Path)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	a.Store = store
	log.Info("storage initialized", "path", cfg.Storage.Path)

	engine, err := diagnostics.NewEngine(a.Probe)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load diagnostics checklist: %w", err)
	}
	a.Diagnostics = engine

	opener := transport.NewOpener(a.Probe, a.Repos.Devices, log).
		Register(domain.ConnectionNetwork, &transport.NetworkDialer{Port: cfg.Deploy.DevicePort}).
		Register(domain.ConnectionUSB, &transport.SerialDialer{BaudRate: cfg.Deploy.SerialBaud})

	a.Audit = service.NewAuditService(a.Repos.Audit, log)
	a.Devices = service.NewDeviceService(a.Repos.Devices, log)
	a.Payloads = service.NewPayloadService(a.Repos.Payloads, store, log)
	a.Deployments = service.NewDeploymentService(a.Repos.Deployments, a.Repos.Devices, a.Repos.Payloads, log)
	a.Cleanup = service.NewCleanupService(a.Repos.Payloads, store, log)

	machine := lifecycle.NewMachine(a.Repos.Deployments, a.Audit.TransitionObserver(), a.Metrics.TransitionObserver())
	a.Orchestrator = service.NewOrchestrator(service.OrchestratorDeps{
		Deployments: a.Repos.Deployments,
		Devices:     a.Repos.Devices,
		Payloads:    a.Repos.Payloads,
		Store:       store,
		Opener:      opener,
		Machine:     machine,
		Recorder:    a.Metrics,
	}, service.OrchestratorConfig{
		OpenTimeout:   cfg.Deploy.OpenTimeout,
		AckTimeout:    cfg.Deploy.AckTimeout,
		ResultTimeout: cfg.Deploy.ResultTimeout,
	}, log)

	return a, nil
}

func (a *App) openRepositories(ctx context.Context, db config.DBConfig, log *slog.Logger) error {
	switch db.Driver {
	case config.DriverPostgres:
		log.Info("running database migrations")
		if err := postgres.RunMigrations(db.DSN()); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		pool, err := pgxpool.New(ctx, db.DSN())
		if err != nil {
			return fmt.Errorf("connect db: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return fmt.Errorf("ping db: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		a.Repos = Repositories{
			Devices:     postgres.NewDeviceRepo(pool),
			Payloads:    postgres.NewPayloadRepo(pool),
			Deployments: postgres.NewDeploymentRepo(pool),
			Audit:       postgres.NewAuditRepo(pool),
		}
		log.Info("database connected", "driver", db.Driver, "host", db.Host)

	case config.DriverSQLite:
		conn, err := sqlite.Open(db.SQLitePath)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { conn.Close() })
		a.Repos = Repositories{
			Devices:     sqlite.NewDeviceRepo(conn),
			Payloads:    sqlite.NewPayloadRepo(conn),
			Deployments: sqlite.NewDeploymentRepo(conn),
			Audit:       sqlite.NewAuditRepo(conn),
		}
		log.Info("database opened", "driver", db.Driver, "path", db.SQLitePath)

	default:
		return fmt.Errorf("unsupported database driver %q", db.Driver)
	}
	return nil
}

// Close releases the database. Call it after the orchestrator has stopped.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
