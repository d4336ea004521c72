package main

import (
	"go.uber.org/zap"

	"intellinbox/internal/handler"
	"intellinbox/internal/httpserver"
	"intellinbox/internal/repository"
	"intellinbox/pkg/config"
	"intellinbox/pkg/crypto"
	"intellinbox/pkg/db"
	"intellinbox/pkg/logger"
	"intellinbox/pkg/mq"
)

func main() {
	log := logger.NewLogger()
	defer log.Sync()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatal("Config load failed", zap.Error(err))
	}

	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

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

	inboxHandler := handler.NewInboxHandler(
		inboxRepo, emailRepo, publisher, cipher, cfg.Sync.DefaultDays, log,
	)
	emailHandler := handler.NewEmailHandler(emailRepo, analysisRepo, publisher, log)

	router := httpserver.NewRouter(inboxHandler, emailHandler, dbConn)

	log.Info("Starting API server", zap.String("port", cfg.Server.Port))
	if err := router.Run(cfg.Server.Port); err != nil {
		log.Fatal("Server start failed", zap.Error(err))
	}
}
