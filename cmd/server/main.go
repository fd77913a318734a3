package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"brickvest/internal/config"
	"brickvest/internal/handler"
	"brickvest/internal/infrastructure/cache"
	"brickvest/internal/infrastructure/database"
	"brickvest/internal/infrastructure/mq"
	"brickvest/internal/job"
	"brickvest/internal/processor"
	"brickvest/internal/repository"
	"brickvest/internal/service"
	"brickvest/pkg/idgen"
)

func main() {
	cfg := config.LoadConfig("config/config.yaml")

	idgen.Init(1)

	db := database.InitMySQL(&cfg.MySQL)

	redisClient := cache.InitRedis(&cfg.Redis)

	mq.InitKafka(&cfg.Kafka)
	defer mq.CloseKafka()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Shared service graph for the consumer and the background jobs. The
	// HTTP layer builds its own identical graph inside the handler.
	referralRepo := repository.NewReferralRepository(db)
	notifier := service.NewOutboxNotifier(db, cfg.Kafka.Topic.Notifications)
	ledgerService := service.NewLedgerService(db, redisClient)
	rewardService := service.NewRewardService(referralRepo, ledgerService, notifier)
	reinvestService := service.NewReinvestService(
		db,
		repository.NewReinvestPlanRepository(db),
		repository.NewPayoutRepository(db),
		repository.NewAllocationRepository(db),
		ledgerService,
		notifier,
		service.NewRedisPlanLocker(redisClient),
		config.MustDecimal(cfg.Business.MinReinvestAmount),
	)
	dispatcher := service.NewEventDispatcher(rewardService, reinvestService)

	consumer, err := mq.NewEventConsumer(&cfg.Kafka, dispatcher)
	if err != nil {
		log.Fatalf("create event consumer: %v", err)
	}
	defer consumer.Close()
	go consumer.Start(ctx)

	outboxSender := job.NewOutboxSender(db, cfg)
	go outboxSender.Start(ctx)

	submitter := job.NewAllocationSubmitter(db, ledgerService, notifier, processor.NewClient(&cfg.Processor), cfg)
	go submitter.Start(ctx)

	reconciler := job.NewReconciler(db, ledgerService, cfg)
	go reconciler.Start(ctx)

	router := handler.SetupRouter(db, redisClient, cfg)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("server listening on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server start failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}

	log.Println("server stopped")
}
