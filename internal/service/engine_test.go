package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/grassrootshq/outreach-backend/internal/audience"
	appErrors "github.com/grassrootshq/outreach-backend/internal/errors"
	"github.com/grassrootshq/outreach-backend/internal/model"
	"github.com/grassrootshq/outreach-backend/internal/sender"
	"github.com/grassrootshq/outreach-backend/internal/service"
)

// Monday 10:00 and Saturday 10:00 in the civic timezone, for gate tests.
var (
	mondayMorning   = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	saturdayMorning = time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC)
)

type engine struct {
	campaigns  *memCampaignRepo
	deliveries *memDeliveryRepo
	voters     *memVoterRepo
	optOuts    *memOptOutRepo
	recordings *memRecordingRepo
	sender     *stubSender
	clock      *fixedClock
	queue      *syncQueue
	dispatcher *service.Dispatcher
	scheduler  *service.Scheduler
	svc        *service.CampaignService
}

func newEngine() *engine {
	campaigns := newMemCampaignRepo()
	deliveries := newMemDeliveryRepo(campaigns)
	voters := &memVoterRepo{tags: map[int64][]int{}}
	optOuts := &memOptOutRepo{}
	recordings := &memRecordingRepo{ids: map[int]bool{}}
	stub := &stubSender{failFor: map[string]bool{}}
	clock := &fixedClock{t: mondayMorning}
	q := &syncQueue{}

	resolver := &audience.Resolver{
		Voters:     voters,
		OptOuts:    optOuts,
		Deliveries: deliveries,
	}
	dispatcher := &service.Dispatcher{
		Campaigns:   campaigns,
		Deliveries:  deliveries,
		OptOuts:     optOuts,
		Resolver:    resolver,
		Senders:     sender.Registry{SMS: stub, Voice: stub, Email: stub},
		Clock:       clock,
		Concurrency: 4,
		SendTimeout: time.Second,
	}
	q.Subscribe("campaign_dispatch", func(campaignID int) error {
		err := dispatcher.StartCycle(context.Background(), campaignID)
		if errors.Is(err, appErrors.ErrCycleRunning) {
			return nil
		}
		return err
	})
	scheduler := &service.Scheduler{
		Campaigns:    campaigns,
		Resolver:     resolver,
		Queue:        q,
		Clock:        clock,
		PollInterval: time.Minute,
		ActiveCycle:  dispatcher.Active,
	}
	svc := &service.CampaignService{
		CampaignRepo:  campaigns,
		DeliveryRepo:  deliveries,
		OptOutRepo:    optOuts,
		RecordingRepo: recordings,
		Resolver:      resolver,
		Dispatcher:    dispatcher,
		Queue:         q,
		Clock:         clock,
	}

	return &engine{
		campaigns:  campaigns,
		deliveries: deliveries,
		voters:     voters,
		optOuts:    optOuts,
		recordings: recordings,
		sender:     stub,
		clock:      clock,
		queue:      q,
		dispatcher: dispatcher,
		scheduler:  scheduler,
		svc:        svc,
	}
}

// addVoters seeds n voters with phones and emails in the given zip,
// returning their phone numbers in order.
func (e *engine) addVoters(n int, zip string) []string {
	phones := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id := len(e.voters.voters) + 1
		phone := fmt.Sprintf("+1205555%04d", id)
		e.voters.voters = append(e.voters.voters, model.Voter{
			ID:    id,
			Phone: phone,
			Email: fmt.Sprintf("voter%d@example.com", id),
			Zip:   zip,
		})
		phones = append(phones, phone)
	}
	return phones
}

func superadmin() model.Actor { return model.Actor{ID: 1, Role: model.RoleSuperAdmin} }
func admin(id int) model.Actor {
	return model.Actor{ID: id, Role: model.RoleAdmin}
}

func smsInput(name, message, zip string) *service.CampaignInput {
	return &service.CampaignInput{
		Name:     name,
		Message:  message,
		Channel:  string(model.ChannelSMS),
		ZipCodes: []string{zip},
	}
}

func (e *engine) mustCreate(t *testing.T, in *service.CampaignInput) *model.Campaign {
	t.Helper()
	c, err := e.svc.CreateCampaign(superadmin(), in)
	if err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	return c
}

func (e *engine) campaign(t *testing.T, id int) *model.Campaign {
	t.Helper()
	c, err := e.campaigns.GetByID(id)
	if err != nil {
		t.Fatalf("get campaign %d: %v", id, err)
	}
	return c
}

func checkInvariant(t *testing.T, c *model.Campaign) {
	t.Helper()
	if c.TotalRecipients != c.SuccessfulDeliveries+c.FailedDeliveries+c.PendingDeliveries {
		t.Errorf("counter invariant broken: total=%d sent=%d failed=%d pending=%d",
			c.TotalRecipients, c.SuccessfulDeliveries, c.FailedDeliveries, c.PendingDeliveries)
	}
	if c.PendingDeliveries < 0 {
		t.Errorf("negative pending deliveries: %d", c.PendingDeliveries)
	}
}
