package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/secmon-lab/orthrus/pkg/cli/config"
	httpctrl "github.com/secmon-lab/orthrus/pkg/controller/http"
	"github.com/secmon-lab/orthrus/pkg/service/backend"
	"github.com/secmon-lab/orthrus/pkg/service/broker"
	"github.com/secmon-lab/orthrus/pkg/service/worker"
	"github.com/secmon-lab/orthrus/pkg/usecase"
	"github.com/secmon-lab/orthrus/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdServe() *cli.Command {
	var addr string
	var backendURL string
	var backendTimeout time.Duration
	var repoCfg config.Repository
	var slackCfg config.Slack
	var exchangeCfg config.Exchange
	var syncCfg config.Sync
	var accountsCfg config.Accounts
	var auditCfg config.Audit
	var sentryCfg config.Sentry

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("ORTHRUS_ADDR"),
			Destination: &addr,
		},
		&cli.StringFlag{
			Name:        "backend-api-url",
			Usage:       "Remote backend API base URL (required for reconciliation polling)",
			Sources:     cli.EnvVars("ORTHRUS_BACKEND_API_URL"),
			Destination: &backendURL,
		},
		&cli.DurationFlag{
			Name:        "backend-timeout",
			Usage:       "HTTP timeout for backend API calls",
			Value:       backend.DefaultAPITimeout,
			Sources:     cli.EnvVars("ORTHRUS_BACKEND_TIMEOUT"),
			Destination: &backendTimeout,
		},
	}

	// Add shared config flags
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, slackCfg.Flags()...)
	flags = append(flags, exchangeCfg.Flags()...)
	flags = append(flags, syncCfg.Flags()...)
	flags = append(flags, accountsCfg.Flags()...)
	flags = append(flags, auditCfg.Flags()...)
	flags = append(flags, sentryCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start the synchronization engine (HTTP ingest + workers)",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := syncCfg.Validate(); err != nil {
				return goerr.Wrap(err, "invalid sync configuration")
			}

			logging.Default().Info("Serve configuration",
				"addr", addr,
				"backend_api_url", backendURL,
				"sync", syncCfg,
				"exchange", exchangeCfg,
				"slack", slackCfg,
				"accounts", accountsCfg,
				"audit", auditCfg,
				"sentry", sentryCfg,
			)

			sentryFlush, err := sentryCfg.Configure(c.Root().Version)
			if err != nil {
				return goerr.Wrap(err, "failed to configure sentry")
			}
			defer sentryFlush()

			// Load the account roster
			accounts, err := accountsCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "failed to load accounts")
			}

			// Initialize repository based on backend type
			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer func() {
				if err := repo.Close(); err != nil {
					logging.Default().Error("failed to close repository", "error", err.Error())
				}
			}()

			// Outbound notifier
			slackSvc, err := slackCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "failed to configure slack service")
			}

			ucOpts := []usecase.Option{
				usecase.WithDedupWindow(syncCfg.DedupWindow()),
			}
			if slackSvc != nil {
				ucOpts = append(ucOpts, usecase.WithNotifier(slackSvc))
				logging.Default().Info("Slack notifier enabled")
			} else {
				logging.Default().Info("Slack Bot Token not configured, outbound notifications disabled")
			}

			uc := usecase.New(repo, ucOpts...)

			// Poll path: identity exchange, credential broker and backend reader.
			// Missing pieces disable reconciliation; push ingest still works.
			exchangeSvc, err := exchangeCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "failed to configure identity exchange")
			}

			var brk *broker.Broker
			var reader backend.Service
			pollEnabled := exchangeSvc != nil && backendURL != "" && accounts.Len() > 0
			if pollEnabled {
				brk = broker.New(exchangeSvc, accounts,
					broker.WithSafetyMargin(syncCfg.SafetyMargin()))
				reader, err = backend.New(backendURL,
					backend.WithAPITimeout(backendTimeout))
				if err != nil {
					return goerr.Wrap(err, "failed to initialize backend reader")
				}
				logging.Default().Info("Reconciliation enabled", "accounts", accounts.Len())
			} else {
				logging.Default().Warn("Reconciliation disabled: requires exchange credentials, backend-api-url and a non-empty accounts file",
					"exchange_configured", exchangeSvc != nil,
					"backend_api_url", backendURL != "",
					"accounts", accounts.Len(),
				)
			}

			// Background workers
			var poller *worker.Poller
			var scheduler *worker.Scheduler
			if pollEnabled {
				poller = worker.NewPoller(repo, uc.Sync, brk, reader, accounts,
					worker.WithPollInterval(syncCfg.PollInterval()),
					worker.WithPollFanout(syncCfg.PollFanout()),
				)
				if err := poller.Start(ctx); err != nil {
					return goerr.Wrap(err, "failed to start reconciliation poller")
				}

				scheduler = worker.NewScheduler(repo, uc.Sync, brk, reader, slackSvc,
					worker.WithScanInterval(syncCfg.ScanInterval()),
					worker.WithGracePeriod(syncCfg.GracePeriod()),
					worker.WithWarningLeadTime(syncCfg.WarningLeadTime()),
				)
				if err := scheduler.Start(ctx); err != nil {
					poller.Stop()
					return goerr.Wrap(err, "failed to start lifecycle scheduler")
				}
			}

			auditSvc, err := auditCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to configure audit sink")
			}
			if auditSvc != nil {
				logging.Default().Info("Transition audit export enabled")
			}

			retention := worker.NewRetention(repo, auditSvc,
				worker.WithRetentionWindow(syncCfg.RetentionWindow()),
			)
			if err := retention.Start(ctx); err != nil {
				if scheduler != nil {
					scheduler.Stop()
				}
				if poller != nil {
					poller.Stop()
				}
				return goerr.Wrap(err, "failed to start retention worker")
			}

			stopWorkers := func() {
				if poller != nil {
					poller.Stop()
				}
				if scheduler != nil {
					scheduler.Stop()
				}
				retention.Stop()
			}

			// HTTP server
			var httpOpts []httpctrl.Options
			if slackCfg.IsWebhookConfigured() {
				webhookHandler := httpctrl.NewWebhookHandler(uc.Sync)
				httpOpts = append(httpOpts, httpctrl.WithWebhook(webhookHandler, slackCfg.SigningSecret()))
				logging.Default().Info("Event ingest endpoint enabled")
			} else {
				logging.Default().Warn("Signing secret not configured, event ingest endpoint disabled")
			}

			server := &http.Server{
				Addr:              addr,
				Handler:           httpctrl.New(uc, httpOpts...),
				ReadHeaderTimeout: 30 * time.Second,
			}

			// Setup signal handling for graceful shutdown
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			// Start server in goroutine
			errCh := make(chan error, 1)
			go func() {
				logging.Default().Info("Starting HTTP server", "addr", addr, "ingest", slackCfg.IsWebhookConfigured())
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- goerr.Wrap(err, "failed to start server")
				}
			}()

			// Wait for shutdown signal or server error
			select {
			case err := <-errCh:
				stopWorkers()
				return err
			case sig := <-sigCh:
				logging.Default().Info("Received shutdown signal", "signal", sig)

				// Create shutdown context with timeout
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				// Drain the listener first so no new events arrive while the
				// workers finish their in-flight cycles.
				if err := server.Shutdown(shutdownCtx); err != nil {
					stopWorkers()
					return goerr.Wrap(err, "failed to shutdown server gracefully")
				}

				stopWorkers()

				logging.Default().Info("Server shutdown completed")
				return nil
			}
		},
	}
}
