package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/techservice/notifier/internal/application/blacklist"
	"github.com/techservice/notifier/internal/application/notification"
	"github.com/techservice/notifier/internal/application/stats"
	"github.com/techservice/notifier/internal/application/template"
	"github.com/techservice/notifier/internal/application/tracking"
	"github.com/techservice/notifier/internal/application/verification"
	"github.com/techservice/notifier/internal/config"
	"github.com/techservice/notifier/internal/infrastructure/dynamo"
	"github.com/techservice/notifier/internal/infrastructure/filesource"
	jwtinfra "github.com/techservice/notifier/internal/infrastructure/jwt"
	"github.com/techservice/notifier/internal/infrastructure/memory"
	s3infra "github.com/techservice/notifier/internal/infrastructure/s3"
	"github.com/techservice/notifier/internal/infrastructure/smtp"
	"github.com/techservice/notifier/internal/infrastructure/sns"
	"github.com/techservice/notifier/internal/pkg/clock"
	transporthttp "github.com/techservice/notifier/internal/transport/http"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	codeStore, tracker, err := newStores(ctx, cfg)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	// S3 client is created only when a source lives in S3.
	var s3Client *s3.Client
	if cfg.TemplateSource == "s3" || cfg.BlacklistSource == "s3" {
		if s3Client, err = s3infra.NewClient(ctx, cfg); err != nil {
			log.Fatalf("s3 client: %v", err)
		}
	}

	var templateSource template.Source = filesource.NewTemplateSource(cfg.TemplateDir)
	if cfg.TemplateSource == "s3" {
		templateSource = s3infra.NewTemplateSource(s3Client, cfg.S3BucketName, cfg.S3TemplatePrefix)
	}
	templates := template.NewRegistry(templateSource)
	if _, err := templates.Load(ctx); err != nil {
		log.Fatalf("templates: %v", err)
	}

	var blacklistSource blacklist.Source = filesource.NewBlacklistSource(cfg.BlacklistPath)
	if cfg.BlacklistSource == "s3" {
		blacklistSource = s3infra.NewBlacklistSource(s3Client, cfg.S3BucketName, cfg.S3BlacklistKey)
	}
	filter := blacklist.NewFilter()
	if _, err := filter.Load(ctx, blacklistSource); err != nil {
		log.Fatalf("blacklist: %v", err)
	}

	transport, err := newTransport(ctx, cfg)
	if err != nil {
		log.Fatalf("mail transport: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	queue := notification.NewQueue()
	aggregator, err := stats.NewAggregator(reg, queue.Len)
	if err != nil {
		log.Fatalf("metrics: %v", err)
	}

	notifications := notification.NewService(notification.Deps{
		Queue:             queue,
		Templates:         templates,
		Blacklist:         filter,
		Transport:         transport,
		Tracker:           tracker,
		Stats:             aggregator,
		Clock:             clock.Real(),
		DefaultMaxRetries: cfg.NotifyMaxRetries,
		RetryBaseDelay:    cfg.NotifyRetryBaseDelay,
		RetryMaxDelay:     cfg.NotifyRetryMaxDelay,
	})
	codes := verification.NewService(verification.Deps{
		Store:             codeStore,
		Clock:             clock.Real(),
		DefaultExpiry:     cfg.CodeExpiry,
		DefaultMaxRetries: cfg.CodeMaxRetries,
	})

	// JWT verifier; staff routes are open without it.
	deps := &transporthttp.Deps{Codes: codes, Notifications: notifications, Gatherer: reg}
	if v, err := jwtinfra.NewVerifier(cfg); err == nil {
		deps.Verifier = v
	} else {
		log.Printf("WARN: JWT verifier not available, staff routes are unauthenticated: %v", err)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      transporthttp.NewRouter(ctx, cfg, deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return notification.NewWorker(notifications, cfg.WorkerInterval).Start(gctx)
	})
	g.Go(func() error {
		log.Printf("Server starting on :%s (env=%s, transport=%s)", cfg.AppPort, cfg.AppEnv, cfg.MailTransport)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	if n := queue.Len(); n > 0 {
		log.Printf("WARN: %d notifications still queued at exit", n)
	}
	log.Println("Server stopped")
}

// newStores builds the code store and the delivery tracker. DynamoDB is
// bootstrapped once for whichever of them needs it.
func newStores(ctx context.Context, cfg *config.Config) (verification.CodeStore, *tracking.Tracker, error) {
	tracker := tracking.NewTracker()
	useDynamo := cfg.CodeStore == "dynamo" || cfg.DeliveryArchive == "dynamo"

	var client *dynamodb.Client
	if useDynamo {
		var err error
		if client, err = dynamo.NewClient(ctx, cfg); err != nil {
			return nil, nil, err
		}
		var tables dynamo.Tables
		if cfg.CodeStore == "dynamo" {
			tables.VerificationCodes = cfg.VerificationCodesTable
		}
		if cfg.DeliveryArchive == "dynamo" {
			tables.DeliveryResults = cfg.DeliveryResultsTable
		}
		// Creates the tables if they don't exist.
		dynamo.Bootstrap(ctx, client, tables)
	}

	switch cfg.DeliveryArchive {
	case "none":
	case "dynamo":
		tracker.WithArchive(dynamo.NewDeliveryRepo(client, cfg.DeliveryResultsTable, cfg.DeliveryRetention))
	default:
		return nil, nil, fmt.Errorf("unknown DELIVERY_ARCHIVE %q", cfg.DeliveryArchive)
	}

	switch cfg.CodeStore {
	case "memory":
		return memory.NewCodeRepo(), tracker, nil
	case "dynamo":
		return dynamo.NewCodeRepo(client, cfg.VerificationCodesTable), tracker, nil
	default:
		return nil, nil, fmt.Errorf("unknown CODE_STORE %q", cfg.CodeStore)
	}
}

func newTransport(ctx context.Context, cfg *config.Config) (notification.Transport, error) {
	switch cfg.MailTransport {
	case "smtp":
		return smtp.NewTransport(cfg), nil
	case "sns":
		return sns.NewPublisher(ctx, cfg)
	case "mock":
		return smtp.LogTransport{}, nil
	default:
		return nil, fmt.Errorf("unknown MAIL_TRANSPORT %q", cfg.MailTransport)
	}
}
