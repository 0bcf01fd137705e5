// cmd/worker/main.go
package main

import (
	"context"
	"errors"
	"log"

	"github.com/grassrootshq/outreach-backend/internal/audience"
	"github.com/grassrootshq/outreach-backend/internal/config"
	"github.com/grassrootshq/outreach-backend/internal/db"
	appErrors "github.com/grassrootshq/outreach-backend/internal/errors"
	"github.com/grassrootshq/outreach-backend/internal/queue"
	"github.com/grassrootshq/outreach-backend/internal/repository"
	"github.com/grassrootshq/outreach-backend/internal/sender"
	"github.com/grassrootshq/outreach-backend/internal/service"
)

// The worker consumes campaign dispatch triggers from RabbitMQ and runs
// delivery cycles, so sends can scale separately from the API server.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config:", err)
	}
	if cfg.AMQPURL == "" {
		log.Fatal("AMQP_URL is required for the worker")
	}

	conn, err := db.Open(cfg.DSN())
	if err != nil {
		log.Fatal("failed to connect to DB:", err)
	}

	clock, err := service.NewCivicClock(cfg.CallingHoursTZ)
	if err != nil {
		log.Fatal("invalid calling-hours timezone:", err)
	}

	campaignRepo := &repository.CampaignRepository{DB: conn}
	deliveryRepo := &repository.DeliveryRepository{DB: conn}
	voterRepo := &repository.VoterRepository{DB: conn}
	optOutRepo := &repository.OptOutRepository{DB: conn}

	resolver := &audience.Resolver{
		Voters:     voterRepo,
		OptOuts:    optOutRepo,
		Deliveries: deliveryRepo,
	}

	dispatcher := &service.Dispatcher{
		Campaigns:   campaignRepo,
		Deliveries:  deliveryRepo,
		OptOuts:     optOutRepo,
		Resolver:    resolver,
		Senders:     sender.MockRegistry(0.1), // swap for real provider adapters
		Clock:       clock,
		Concurrency: cfg.DispatchConcurrency,
		SendTimeout: cfg.SendTimeout,
	}

	amqpQueue, err := queue.DialAMQP(cfg.AMQPURL)
	if err != nil {
		log.Fatal("failed to connect to RabbitMQ:", err)
	}
	defer amqpQueue.Close()

	err = amqpQueue.Subscribe(queue.DispatchTopic, func(campaignID int) error {
		err := dispatcher.StartCycle(context.Background(), campaignID)
		if errors.Is(err, appErrors.ErrCycleRunning) {
			// Another trigger beat us to it; nothing to do.
			return nil
		}
		return err
	})
	if err != nil {
		log.Fatal("failed to register consumer:", err)
	}

	log.Println("Worker running, waiting for dispatch triggers...")
	select {}
}
