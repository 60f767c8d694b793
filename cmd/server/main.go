package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"enroll/internal/account"
	httpapi "enroll/internal/http"
	"enroll/internal/platform/config"
	"enroll/internal/platform/httpserver"
	"enroll/internal/platform/logger"
	"enroll/internal/platform/postgres"
	platformredis "enroll/internal/platform/redis"
	"enroll/internal/provider"
	"enroll/internal/registration/channel"
	"enroll/internal/registration/channelstate"
	"enroll/internal/registration/cooldown"
	"enroll/internal/registration/draft"
	"enroll/internal/registration/flow"
	"enroll/internal/registration/guard"
	"enroll/internal/registration/handler"
	regmetrics "enroll/internal/registration/metrics"
	"enroll/internal/registration/otp"
	"enroll/internal/registration/provision"
	"enroll/internal/registration/stage"
	"enroll/internal/session"
	"enroll/pkg/platform/audit"
	"enroll/pkg/platform/audit/publisher"
	auditkafka "enroll/pkg/platform/audit/store/kafka"
	auditmem "enroll/pkg/platform/audit/store/memory"
	"enroll/pkg/platform/circuit"
)

// main wires every dependency once and keeps the server lifecycle small.
// Business logic lives in internal packages; everything here is assembly.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Flow-state stores: Redis when configured, in-memory otherwise. The
	// in-memory fallback only suits dev since flow state must survive
	// restarts in production.
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	var (
		drafts   draft.Store
		states   channelstate.Store
		stages   stage.Store
		otpCodes otp.Store
	)
	if redisClient != nil {
		defer redisClient.Close()
		drafts = draft.NewRedisStore(redisClient.Client, cfg.Registration.DraftTTL)
		states = channelstate.NewRedisStore(redisClient.Client, cfg.Registration.DraftTTL)
		stages = stage.NewRedisStore(redisClient.Client, cfg.Registration.DraftTTL)
		otpCodes = otp.NewRedisStore(redisClient.Client, cfg.Registration.OTPCodeTTL)
		log.Info("flow state in redis")
	} else {
		drafts = draft.NewInMemoryStore()
		states = channelstate.NewInMemoryStore()
		stages = stage.NewInMemoryStore()
		otpCodes = otp.NewInMemoryStore(cfg.Registration.OTPCodeTTL)
		log.Warn("redis not configured, flow state is in-memory")
	}

	db, err := postgres.Open(cfg.Postgres)
	if err != nil {
		return err
	}
	var accounts account.Store
	if db != nil {
		defer db.Close()
		accounts = account.NewPostgres(db)
		log.Info("accounts in postgres")
	} else {
		accounts = account.NewInMemoryStore()
		log.Warn("postgres not configured, accounts are in-memory")
	}

	var auditStore audit.Store
	if len(cfg.Kafka.Brokers) > 0 {
		ks, err := auditkafka.New(ctx, cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
		if err != nil {
			return err
		}
		defer ks.Close()
		auditStore = ks
		log.Info("audit events to kafka", "brokers", cfg.Kafka.Brokers)
	} else {
		auditStore = auditmem.NewInMemoryStore()
		log.Warn("kafka not configured, audit events are in-memory")
	}
	auditPub := publisher.NewPublisher(auditStore, publisher.WithAsyncBuffer(256))
	defer auditPub.Close()

	m := regmetrics.New()
	g := guard.New(accounts, log)
	gate := cooldown.NewGate(cfg.Registration.SendCooldown)
	providerClient := provider.NewGuarded(
		provider.NewClient(cfg.Provider.BaseURL, cfg.Provider.APIKey, cfg.Provider.Timeout),
		circuit.New("provider", circuit.WithFailureThreshold(5), circuit.WithSuccessThreshold(1)),
		log,
	)

	emailCh := channel.NewEmailLink(providerClient, states, g, gate, m, auditPub, log)
	phoneCh := channel.NewPhoneCode(providerClient, states, g, gate, m, auditPub, log)
	controller := flow.New(stages, drafts, states, emailCh, phoneCh, gate, log)

	sessions := session.NewService(cfg.Session.SigningKey, cfg.Session.TTL)
	provisioner := provision.New(accounts, drafts, states, controller, sessions, auditPub, m, log)
	otpSvc := otp.New(otpCodes, states, g, gate, otp.LogSender{Logger: log}, auditPub, log, cfg.Registration.OTPMaxAttempts)

	router := httpapi.NewRouter(httpapi.RouterConfig{
		Registration:   handler.New(controller, provisioner, otpSvc, log),
		Sessions:       sessions,
		Logger:         log,
		FlowTTL:        cfg.Registration.DraftTTL,
		RequestTimeout: cfg.Provider.Timeout * 2,
	})
	srv := httpserver.New(cfg.Server.Addr, router)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		log.Info("starting enroll server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
