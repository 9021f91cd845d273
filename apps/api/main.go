package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	echoapi "github.com/trezcool/wazazi/apps/api/echo"
	"github.com/trezcool/wazazi/core"
	"github.com/trezcool/wazazi/core/push"
	"github.com/trezcool/wazazi/core/readtrack"
	"github.com/trezcool/wazazi/core/user"
	emailsvc "github.com/trezcool/wazazi/services/email"
	logsvc "github.com/trezcool/wazazi/services/logger"
	metricsvc "github.com/trezcool/wazazi/services/metrics"
	pushsvc "github.com/trezcool/wazazi/services/push"
	"github.com/trezcool/wazazi/storage/database"
	"github.com/trezcool/wazazi/storage/docrepos"
	"github.com/trezcool/wazazi/storage/revocation"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	defer logger.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// set up DB
	store, closeStore, err := database.OpenStore(ctx, conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = closeStore(); err != nil {
			logger.Error("closing database", err)
		}
	}()

	// set up token revocation
	var revoker user.Revoker
	if conf.Redis.Addr != "" {
		rdb, err := revocation.OpenRedis(ctx, conf.Redis)
		if err != nil {
			logger.Fatal(fmt.Sprintf("connecting to redis: %v", err), err)
		}
		defer func() { _ = rdb.Close() }()
		revoker = revocation.NewRedisRevoker(rdb)
	} else {
		revoker = revocation.NewMemRevoker()
	}

	// set up metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metricsvc.NewRecorder(registry)

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger, log.New(os.Stdout, "EMAIL : ", log.LstdFlags))
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	usrSvc := user.NewService(docrepos.NewUserRepository(store), mailSvc, conf)

	policy := readtrack.ReceiptsDefaultUnread
	if conf.ReadTracking.StrictReceipts {
		policy = readtrack.ReceiptsFailClosed
	}
	agg := readtrack.NewAggregator(docrepos.NewSchoolRepository(store), logger, readtrack.Options{
		Policy:      policy,
		Concurrency: conf.ReadTracking.ReceiptConcurrency,
		Recorder:    recorder,
	})
	sessions := readtrack.NewRegistry(agg, logger)
	pushSvc := push.NewService(usrSvc, sessions, logger)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start Push Consumer

	if conf.Kafka.Brokers != "" {
		consumer := pushsvc.NewConsumer(conf.Kafka, pushSvc.HandleMessage, logger)
		go func() {
			if err := consumer.Run(ctx); err != nil {
				logger.Error("push consumer stopped", err)
			}
		}()
	}

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:       conf,
		Logger:     logger,
		UserSvc:    usrSvc,
		PushSvc:    pushSvc,
		Sessions:   sessions,
		Revoker:    revoker,
		Validate:   validate,
		Translator: translator,
		Metrics:    promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))
		cancel() // stop the push consumer

		// give outstanding requests a deadline for completion
		sctx, scancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer scancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(sctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}
