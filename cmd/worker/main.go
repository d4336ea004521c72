package main

import (
	"time"

	"go.uber.org/zap"

	mqcontracts "intellinbox/contracts/mq"
	"intellinbox/internal/fetcher"
	"intellinbox/internal/inference"
	"intellinbox/internal/mqhandler"
	"intellinbox/internal/repository"
	"intellinbox/internal/service"
	"intellinbox/pkg/circuitbreaker"
	"intellinbox/pkg/config"
	"intellinbox/pkg/crypto"
	"intellinbox/pkg/db"
	"intellinbox/pkg/logger"
	"intellinbox/pkg/mq"
	redisclient "intellinbox/pkg/redis"
	"intellinbox/pkg/util"
)

func main() {
	log := logger.NewLogger()
	defer log.Sync()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatal("Config load failed", zap.Error(err))
	}

	log.Info("Starting worker...")

	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	rdb := redisclient.NewRedisClient(cfg.Redis)
	defer rdb.Close()

	deduper := util.NewDeduper(rdb, time.Hour, log)
	retryCounter := util.NewRetryCounter(rdb, 24*time.Hour)

	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init publisher", zap.Error(err))
	}
	defer publisher.Close()

	cipher, err := crypto.NewCipher(cfg.Crypto.Key)
	if err != nil {
		log.Fatal("Failed to init credential cipher", zap.Error(err))
	}

	inboxRepo := repository.NewInboxRepository(dbConn)
	emailRepo := repository.NewEmailRepository(dbConn)
	analysisRepo := repository.NewAnalysisRepository(dbConn)

	// Inference engine is expensive to set up; it is built once per
	// worker process and shared by every analysis job. The breaker makes
	// a dead model service fail fast instead of stalling every consumer
	// on call timeouts.
	engine := inference.NewBreakerEngine(
		inference.NewOpenAIEngine(cfg.Inference),
		circuitbreaker.New(circuitbreaker.DefaultConfig()),
	)
	mailFetcher := fetcher.New(log)

	analyzeSvc := service.NewAnalyzeService(emailRepo, analysisRepo, engine, log)
	syncSvc := service.NewSyncService(inboxRepo, emailRepo, mailFetcher, publisher, cipher, log)

	analyzeHandler := mqhandler.NewAnalyzeEmailHandler(analyzeSvc, emailRepo, retryCounter, publisher, log)
	syncHandler := mqhandler.NewSyncInboxHandler(syncSvc, deduper, retryCounter, publisher, log)
	setupHandler := mqhandler.NewSetupInboxHandler(syncSvc, deduper, retryCounter, publisher, log)

	consumers := []struct {
		queue      string
		routingKey string
		handler    mq.MessageHandler
	}{
		{"email.analyze.q", mqcontracts.RouteAnalyzeEmail, analyzeHandler.Handle},
		{"inbox.sync.q", mqcontracts.RouteSyncInbox, syncHandler.Handle},
		{"inbox.setup.q", mqcontracts.RouteSetupInbox, setupHandler.Handle},
	}

	for _, c := range consumers {
		consumer, err := mq.NewConsumer(cfg.MQ.URL, c.queue, c.routingKey, log)
		if err != nil {
			log.Fatal("Failed to init consumer",
				zap.String("queue", c.queue),
				zap.Error(err),
			)
		}
		consumer.SetHandler(c.handler)
		defer consumer.Close()

		go func(queue string, consumer *mq.Consumer) {
			log.Info("Starting consumer", zap.String("queue", queue))
			if err := consumer.StartConsuming(); err != nil {
				log.Fatal("Consumer failed",
					zap.String("queue", queue),
					zap.Error(err),
				)
			}
		}(c.queue, consumer)
	}

	log.Info("All consumers started, worker is ready")
	select {}
}
