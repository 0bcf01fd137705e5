// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/grassrootshq/outreach-backend/internal/audience"
	"github.com/grassrootshq/outreach-backend/internal/auth"
	"github.com/grassrootshq/outreach-backend/internal/config"
	"github.com/grassrootshq/outreach-backend/internal/controller"
	"github.com/grassrootshq/outreach-backend/internal/db"
	appErrors "github.com/grassrootshq/outreach-backend/internal/errors"
	"github.com/grassrootshq/outreach-backend/internal/handler"
	"github.com/grassrootshq/outreach-backend/internal/queue"
	"github.com/grassrootshq/outreach-backend/internal/repository"
	"github.com/grassrootshq/outreach-backend/internal/sender"
	"github.com/grassrootshq/outreach-backend/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config:", err)
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
	recordingRepo := &repository.VoiceRecordingRepository{DB: conn}

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

	// With AMQP configured, cmd/worker consumes dispatch triggers in its
	// own process; otherwise sends run in-process on the memory queue.
	var q queue.Queue
	var activeCycle func(int) bool
	if cfg.AMQPURL != "" {
		amqpQueue, err := queue.DialAMQP(cfg.AMQPURL)
		if err != nil {
			log.Fatal("failed to connect to RabbitMQ:", err)
		}
		defer amqpQueue.Close()
		q = amqpQueue
	} else {
		memQueue := queue.NewInMemoryQueue()
		memQueue.Subscribe(queue.DispatchTopic, func(campaignID int) error {
			err := dispatcher.StartCycle(context.Background(), campaignID)
			if errors.Is(err, appErrors.ErrCycleRunning) {
				return nil
			}
			return err
		})
		q = memQueue
		activeCycle = dispatcher.Active
	}

	scheduler := &service.Scheduler{
		Campaigns:    campaignRepo,
		Resolver:     resolver,
		Queue:        q,
		Clock:        clock,
		PollInterval: cfg.SchedulerPoll,
		ActiveCycle:  activeCycle,
	}
	go scheduler.Run(context.Background())

	campaignService := &service.CampaignService{
		CampaignRepo:  campaignRepo,
		DeliveryRepo:  deliveryRepo,
		OptOutRepo:    optOutRepo,
		RecordingRepo: recordingRepo,
		Resolver:      resolver,
		Dispatcher:    dispatcher,
		Queue:         q,
		Clock:         clock,
	}

	campaignController := &controller.CampaignController{
		CampaignService: campaignService,
		Scheduler:       scheduler,
	}
	optOutHandler := &handler.OptOutHandler{Repo: optOutRepo}

	r := chi.NewRouter()
	r.Use(auth.Middleware)

	// Campaign routes
	r.Post("/campaigns", campaignController.CreateCampaign)
	r.Get("/campaigns", campaignController.ListCampaigns)
	r.Get("/campaigns/recipient-count", campaignController.RecipientCount)
	r.Post("/campaigns/check-stuck", campaignController.CheckStuck)
	r.Get("/campaigns/{id}", campaignController.GetCampaign)
	r.Put("/campaigns/{id}", campaignController.UpdateCampaign)
	r.Delete("/campaigns/{id}", campaignController.DeleteCampaign)
	r.Post("/campaigns/{id}/send", campaignController.SendCampaign)
	r.Post("/campaigns/{id}/schedule", campaignController.ScheduleCampaign)
	r.Post("/campaigns/{id}/cancel", campaignController.CancelCampaign)
	r.Post("/campaigns/{id}/force-stop", campaignController.ForceStopCampaign)
	r.Post("/campaigns/{id}/retry-failed", campaignController.RetryFailedCampaign)
	r.Post("/campaigns/{id}/duplicate", campaignController.DuplicateCampaign)

	// Opt-out registry routes
	r.Get("/opt-out", optOutHandler.List)
	r.Post("/opt-out", optOutHandler.Create)
	r.Delete("/opt-out/{id}", optOutHandler.Delete)
	r.Get("/opt-out/stats", optOutHandler.Stats)
	r.Get("/opt-out/export", optOutHandler.Export)

	log.Println("🚀 Server running on", cfg.HTTPAddr)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}
