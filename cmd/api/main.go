package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"siteops.kr/internal/access"
	"siteops.kr/internal/assignment"
	"siteops.kr/internal/auth"
	"siteops.kr/internal/config"
	"siteops.kr/internal/httpapi"
	"siteops.kr/internal/labor"
	"siteops.kr/internal/notify"
	"siteops.kr/internal/obs"
	"siteops.kr/internal/report"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	var db *sql.DB
	if cfg.DatabaseDSN != "" {
		db, err = sql.Open("pgx", cfg.DatabaseDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	// Stores: PostgreSQL when a DSN is configured, in-memory otherwise.
	var (
		users           auth.UserStore
		assignmentStore assignment.Store
		reportStore     report.Store
		laborStore      labor.Store
	)
	if db != nil {
		users = auth.NewPGUserStore(db)
		assignmentStore = assignment.NewPGStore(db)
		reportStore = report.NewPGStore(db)
		laborStore = labor.NewPGStore(db)
	} else {
		log.Println("no SITEOPS_DB_DSN set, using in-memory stores")
		users = auth.NewMemoryUserStore()
		assignmentStore = assignment.NewMemory()
		reportStore = report.NewMemory()
		laborStore = labor.NewMemory()
	}

	registry, err := assignment.NewRegistry(assignmentStore)
	if err != nil {
		log.Fatalf("assignment registry: %v", err)
	}
	resolver, err := access.NewResolver(registry, registry)
	if err != nil {
		log.Fatalf("access resolver: %v", err)
	}
	aggregator, err := labor.NewAggregator(laborStore, registry, resolver)
	if err != nil {
		log.Fatalf("labor aggregator: %v", err)
	}

	// Event fan-out: always the in-process stream for SSE, plus AMQP when a
	// broker is configured.
	eventStream := notify.NewStream()
	dispatcher := notify.Multi{eventStream}
	var amqpPub *notify.AMQPPublisher
	if cfg.AMQPURL != "" {
		amqpPub, err = notify.NewAMQPPublisher(cfg.AMQPURL, cfg.EventQueue)
		if err != nil {
			log.Fatalf("amqp: %v", err)
		}
		dispatcher = append(dispatcher, amqpPub)
	}

	workflow, err := report.NewWorkflow(reportStore, resolver,
		report.WithDispatcher(dispatcher),
		report.WithHoursReader(aggregator),
	)
	if err != nil {
		log.Fatalf("report workflow: %v", err)
	}

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, httpapi.Deps{
		Users:      users,
		Registry:   registry,
		Resolver:   resolver,
		Workflow:   workflow,
		Aggregator: aggregator,
		Stream:     eventStream,
		TokenTTL:   cfg.TokenTTL,
	})

	handler := httpapi.RateLimit(api.Handler(), cfg.RateLimitBurst, int(cfg.RateLimitRPS))
	handler = httpapi.MaxBodyBytes(handler, cfg.MaxBodyBytes)
	handler = httpapi.CORS(handler)
	handler = httpapi.SecurityHeaders(handler)
	handler = httpapi.LoggingJSON(handler)
	handler = httpapi.RequestID(handler)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	log.Printf("Starting siteops-api %s on %s", version, srv.Addr)
	obs.SetReady(true)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	obs.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if amqpPub != nil {
		_ = amqpPub.Close()
	}
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
