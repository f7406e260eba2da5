package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"booking-gate/backend/internal/config"
	"booking-gate/backend/internal/customer"
	customerrepo "booking-gate/backend/internal/customer/repository"
	"booking-gate/backend/internal/db"
	"booking-gate/backend/internal/dispatch"
	"booking-gate/backend/internal/dispatch/stats"
	healthhandler "booking-gate/backend/internal/health/handler"
	"booking-gate/backend/internal/notify"
	"booking-gate/backend/internal/notify/email"
	"booking-gate/backend/internal/notify/sms"
	"booking-gate/backend/internal/otp"
	otpdomain "booking-gate/backend/internal/otp/domain"
	"booking-gate/backend/internal/policy/engine"
	"booking-gate/backend/internal/server"
	"booking-gate/backend/internal/server/middleware"
	sessiondomain "booking-gate/backend/internal/session/domain"
	sessionservice "booking-gate/backend/internal/session/service"
	"booking-gate/backend/internal/telemetry"
	telemetryotel "booking-gate/backend/internal/telemetry/otel"
	"booking-gate/backend/internal/telemetry/producer"
	"booking-gate/backend/internal/ttlstore"
	"booking-gate/backend/internal/verification/service"
)

const (
	serviceName     = "booking-gate"
	shutdownTimeout = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTelEndpoint, serviceName, cfg.Env, cfg.OTelInsecure)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()

	emitters := []telemetry.EventEmitter{telemetryotel.NewEventEmitter(providers.LoggerProvider)}
	kafkaProducer := producer.NewKafkaProducer(cfg.TelemetryKafkaBrokersList(), cfg.TelemetryKafkaTopic)
	if kafkaProducer != nil {
		emitters = append(emitters, kafkaProducer)
		log.Printf("telemetry: writing events to Kafka topic %s", cfg.TelemetryKafkaTopic)
	}
	emitter := telemetry.Multi(emitters...)

	var recorder stats.Recorder = stats.NewMemoryStore()
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		recorder = stats.NewRedisStore(rdb)
		log.Printf("dispatch: recording lane stats in Redis at %s", cfg.RedisAddr)
	}
	queue := dispatch.New(dispatch.WithStats(recorder))

	delivery := notify.NewDispatcher(queue, map[otpdomain.Method]notify.Route{
		otpdomain.MethodPhone: {Sender: smsSender(cfg), Lane: notify.LaneSMS, RPS: cfg.DispatchSMSRPS},
		otpdomain.MethodEmail: {Sender: emailSender(cfg), Lane: notify.LaneEmail, RPS: cfg.DispatchEmailRPS},
	})

	var database *sql.DB
	var resolver service.IdentityResolver
	if cfg.DatabaseURL != "" {
		database, err = db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db: %v", err)
		}
		resolver = customer.NewResolver(customerrepo.NewPostgresRepository(database), queue, cfg.DispatchCRMRPS)
	} else {
		log.Println("db: DATABASE_URL not set, sessions mint without identity")
	}

	policy, err := engine.NewOPAEvaluatorFromFile(ctx, cfg.PolicyFile)
	if err != nil {
		log.Fatalf("policy: %v", err)
	}

	otpStore := ttlstore.New[otpdomain.Entry](ttlstore.WithSweepInterval(cfg.StoreSweepInterval))
	otpSvc := otp.NewService(otpStore,
		otp.WithTTL(cfg.OTPTTL),
		otp.WithRateWindow(cfg.OTPRateWindow),
		otp.WithMaxAttempts(cfg.OTPMaxAttempts),
	)
	sessions := sessionservice.NewRegistry(map[sessiondomain.Context]time.Duration{
		sessiondomain.ContextBooking:   cfg.SessionTTLBooking,
		sessiondomain.ContextPortal:    cfg.SessionTTLPortal,
		sessiondomain.ContextAssistant: cfg.SessionTTLAssistant,
	}, sessionservice.WithSweepInterval(cfg.StoreSweepInterval))

	verification := service.NewService(otpSvc, sessions, delivery, resolver, policy, emitter)

	limiter := middleware.NewIPLimiter(cfg.HTTPRateRPS, cfg.HTTPRateBurst)
	health := healthhandler.NewServer(&db.Checker{DB: database}, policy)

	bg, cancelBG := context.WithCancel(context.Background())
	go otpStore.Run(bg)
	go sessions.Run(bg)
	go limiter.Run(bg)
	go health.Run(bg)

	httpSrv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: server.NewRouter(server.HTTPDeps{
			Verification: verification,
			Limiter:      limiter,
			Emitter:      emitter,
			CookieSecure: cfg.CookieSecure,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http serve: %v", err)
		}
	}()

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	grpcSrv := server.NewGRPCServer(server.GRPCDeps{Health: health})
	go func() {
		log.Printf("gRPC server listening on %s", cfg.GRPCAddr)
		if err := grpcSrv.Serve(lis); err != nil {
			log.Fatalf("grpc serve: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down...")
	health.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	grpcSrv.GracefulStop()
	queue.Close()
	cancelBG()

	// Let in-flight async emits finish before closing their sinks.
	time.Sleep(telemetry.ShutdownDrainDuration)
	if err := kafkaProducer.Close(); err != nil {
		log.Printf("telemetry: kafka close: %v", err)
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("telemetry: shutdown: %v", err)
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if database != nil {
		_ = database.Close()
	}
	log.Println("server stopped")
}

func smsSender(cfg *config.Config) notify.Sender {
	if cfg.SMSLocalAPIKey == "" {
		return notify.LogSender{Channel: "sms"}
	}
	return sms.NewSMSLocalClient(cfg.SMSLocalAPIKey, cfg.SMSLocalBaseURL, cfg.SMSLocalSender)
}

func emailSender(cfg *config.Config) notify.Sender {
	if cfg.SMTPHost == "" {
		return notify.LogSender{Channel: "email"}
	}
	return email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
}
