// Command meterd runs the metering service: payment webhooks, Prometheus
// metrics, health probes and the scheduled archival and trial sweep.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/meterkit/pkg/archive"
	"github.com/dmitrymomot/meterkit/pkg/billing"
	"github.com/dmitrymomot/meterkit/pkg/config"
	"github.com/dmitrymomot/meterkit/pkg/environment"
	"github.com/dmitrymomot/meterkit/pkg/httpserver"
	"github.com/dmitrymomot/meterkit/pkg/logger"
	"github.com/dmitrymomot/meterkit/pkg/notifications"
	"github.com/dmitrymomot/meterkit/pkg/pg"
	"github.com/dmitrymomot/meterkit/pkg/pgstore"
	"github.com/dmitrymomot/meterkit/pkg/redis"
	"github.com/dmitrymomot/meterkit/pkg/scheduler"
	"github.com/dmitrymomot/meterkit/pkg/usage"
	"github.com/dmitrymomot/meterkit/svc/metering"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("meterd stopped", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var (
		appCfg    appConfig
		pgCfg     pg.Config
		redisCfg  redis.Config
		s3Cfg     archive.S3Config
		httpCfg   httpserver.Config
		paddleCfg billing.PaddleConfig
		stripeCfg billing.StripeConfig
	)
	if err := errors.Join(
		config.Load(&appCfg),
		config.Load(&pgCfg),
		config.Load(&redisCfg),
		config.Load(&s3Cfg),
		config.Load(&httpCfg),
		config.Load(&paddleCfg),
		config.Load(&stripeCfg),
	); err != nil {
		return err
	}

	env, err := environment.Parse(appCfg.Env)
	if err != nil {
		return err
	}
	log := logger.New(
		logger.WithEnvironment(env.String(), appCfg.Name),
		logger.WithLevelName(appCfg.LogLevel),
		logger.WithContextExtractors(requestIDExtractor),
	)
	logger.SetAsDefault(log)
	ctx = environment.WithContext(ctx, env)

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, pgCfg, pgstore.Migrations(), log); err != nil {
		return err
	}

	plans, err := billing.LoadYAMLFile(appCfg.PlansFile)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	checks := []httpserver.Check{{Name: "postgres", Fn: pg.Healthcheck(pool)}}
	var (
		deduper notifications.Deduper = notifications.NewMemoryDeduper()
		locker  scheduler.Locker      = scheduler.NewMemoryLocker()
	)
	if redisCfg.Enabled() {
		client, err := redis.Connect(ctx, redisCfg)
		if err != nil {
			return err
		}
		defer client.Close()

		deduper = notifications.NewRedisDeduper(client, redisCfg.KeyPrefix+"notified:")
		locker = redis.NewLocker(client, redisCfg.KeyPrefix)
		checks = append(checks, httpserver.Check{Name: "redis", Fn: redis.Healthcheck(client)})
	} else {
		log.WarnContext(ctx, "REDIS_URL not set, warning de-duplication and job locks are local to this process")
	}

	notices := pgstore.NewNotificationStore(pool)
	alerts := notifications.NewAlerts(
		notifications.NewManager(notices, notifications.NewLogDeliverer(log),
			notifications.WithDeduper(deduper),
			notifications.WithManagerLogger(log),
		),
		appCfg.BillingURL,
	)

	opts := []metering.Option{
		metering.WithLogger(log),
		metering.WithMetrics(reg),
		metering.WithAlerts(alerts),
		metering.WithDefaultCurrency(appCfg.DefaultCurrency),
		metering.WithMaxPaymentFailures(appCfg.MaxPaymentFailures),
		metering.WithArchiveConcurrency(appCfg.ArchiveConcurrency),
	}
	sink, err := archiveSink(ctx, s3Cfg, appCfg.ArchiveDir)
	if err != nil {
		return err
	}
	if sink != nil {
		opts = append(opts, metering.WithArchiveSink(sink))
	}
	if appCfg.PurgeCounters {
		opts = append(opts, metering.WithCounterPurge())
	}

	svc, err := metering.New(pgstore.NewUsageStore(pool), pgstore.NewBillingStore(pool), plans, opts...)
	if err != nil {
		return err
	}

	webhooks, err := webhookParsers(paddleCfg, stripeCfg)
	if err != nil {
		return err
	}
	if len(webhooks) == 0 {
		log.WarnContext(ctx, "no payment gateway configured, webhooks are disabled")
	}

	handler := newRouter(routerDeps{
		svc:       svc,
		gatherer:  reg,
		log:       log,
		env:       env,
		webhooks:  webhooks,
		checks:    checks,
		readiness: appCfg.ReadinessTimeout,
	})
	srv := httpserver.NewFromConfig(httpCfg, httpserver.WithLogger(log))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx, handler)
	})

	if appCfg.SchedulerEnabled {
		schedMetrics, err := scheduler.NewMetrics(reg)
		if err != nil {
			return err
		}
		sched := scheduler.New(
			scheduler.WithLocker(locker),
			scheduler.WithMetrics(schedMetrics),
			scheduler.WithLogger(log),
			scheduler.WithCheckInterval(appCfg.SchedulerInterval),
		)
		if err := registerJobs(sched, svc, notices, log); err != nil {
			return err
		}
		g.Go(func() error {
			if err := sched.Start(ctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	log.InfoContext(ctx, "meterd started", slog.Int("webhooks", len(webhooks)), slog.Bool("scheduler", appCfg.SchedulerEnabled))
	runErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), httpCfg.ShutdownTimeout)
	defer cancel()
	if err := svc.Shutdown(shutdownCtx); err != nil {
		log.WarnContext(shutdownCtx, "background work not finished before shutdown", logger.Error(err))
	}
	return runErr
}

// archiveSink prefers S3 and falls back to a local directory. Neither being
// configured disables CSV uploads; snapshots are still stored.
func archiveSink(ctx context.Context, s3Cfg archive.S3Config, dir string) (usage.ArchiveSink, error) {
	switch {
	case s3Cfg.Enabled():
		return archive.NewS3Sink(ctx, s3Cfg)
	case dir != "":
		return archive.NewLocalSink(dir)
	default:
		return nil, nil
	}
}

func webhookParsers(paddleCfg billing.PaddleConfig, stripeCfg billing.StripeConfig) (map[string]billing.WebhookParser, error) {
	parsers := make(map[string]billing.WebhookParser)
	if paddleCfg.WebhookSecret != "" {
		p, err := billing.NewPaddleWebhooks(paddleCfg)
		if err != nil {
			return nil, err
		}
		parsers["paddle"] = p
	}
	if stripeCfg.WebhookSecret != "" {
		p, err := billing.NewStripeWebhooks(stripeCfg)
		if err != nil {
			return nil, err
		}
		parsers["stripe"] = p
	}
	return parsers, nil
}
