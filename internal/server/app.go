// Package server wires the storage backends, the record core and the
// transports together and runs them until a termination signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/patterm/internal/logging"
	"github.com/dmitrijs2005/patterm/internal/retry"
	"github.com/dmitrijs2005/patterm/internal/server/access"
	"github.com/dmitrijs2005/patterm/internal/server/audit"
	"github.com/dmitrijs2005/patterm/internal/server/config"
	"github.com/dmitrijs2005/patterm/internal/server/consent"
	"github.com/dmitrijs2005/patterm/internal/server/httpapi"
	"github.com/dmitrijs2005/patterm/internal/server/keys"
	"github.com/dmitrijs2005/patterm/internal/server/sessions"
	"github.com/dmitrijs2005/patterm/internal/server/vault"
	"github.com/dmitrijs2005/patterm/internal/timex"

	gs "github.com/dmitrijs2005/patterm/internal/server/grpc"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	closers  []Closer
	audit    *audit.Service
	sessions *sessions.Manager
	gate     *access.Gate
}

func NewApp(ctx context.Context, c *config.Config) (_ *App, err error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)
	app := &App{config: c, logger: logger}
	defer func() {
		if err != nil {
			app.close(ctx)
		}
	}()

	rm, db, err := OpenStore(ctx, c)
	if err != nil {
		return nil, err
	}
	app.db = db
	if db != nil {
		app.closers = append(app.closers, db.Close)
	}

	ar, closeAudit, err := OpenAuditRepo(c, rm, db)
	if err != nil {
		return nil, fmt.Errorf("audit store: %w", err)
	}
	app.addCloser(closeAudit)

	cr, closeConsent, err := openConsentRepo(ctx, c, rm, db)
	if err != nil {
		return nil, fmt.Errorf("consent store: %w", err)
	}
	app.addCloser(closeConsent)

	kr, wrapper, closeKeys, err := openKeyStore(c)
	if err != nil {
		return nil, fmt.Errorf("key store: %w", err)
	}
	app.addCloser(closeKeys)

	br, err := openBlobStore(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("blob store: %w", err)
	}

	clock := timex.SystemClock{}

	app.audit, err = audit.NewService(ctx, ar, clock, logger, []byte(c.SecretKey))
	if err != nil {
		return nil, fmt.Errorf("audit log: %w", err)
	}

	ci := consent.NewIndex(cr, clock, logger)
	km := keys.NewManager(kr, wrapper, clock, logger)
	v := vault.New(br, km, app.audit, ci, clock, logger, c.LockTimeout)

	app.sessions = sessions.NewManager(db, rm, clock, c.SessionTTL, c.KDF, logger)
	app.gate = access.NewGate(app.sessions, ci, v, app.audit, logger)

	return app, nil
}

func (app *App) addCloser(c Closer) {
	if c != nil {
		app.closers = append(app.closers, c)
	}
}

// close stops the audit writer, then releases the stores in reverse order.
func (app *App) close(ctx context.Context) {
	if app.audit != nil {
		app.audit.Close()
	}
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			app.logger.Error(ctx, "close error", "error", err)
		}
	}
	app.closers = nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) retryPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	if app.config.RetryAttempts > 0 {
		p.MaxAttempts = app.config.RetryAttempts
	}
	return p
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.gate, app.sessions, app.retryPolicy())
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.NewServer(app.config.EndpointAddrHTTP, app.config.AllowedOrigins, app.logger, app.gate, app.sessions, app.retryPolicy())
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves gRPC and HTTP until ctx is done, a signal arrives or one of the
// servers fails. The stores are closed before Run returns.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.close(context.WithoutCancel(ctx))
	app.logger.Info(ctx, "App stopped")
}
