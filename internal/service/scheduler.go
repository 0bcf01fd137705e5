// internal/service/scheduler.go
package service

import (
	"context"
	"log"
	"time"

	"github.com/grassrootshq/outreach-backend/internal/audience"
	"github.com/grassrootshq/outreach-backend/internal/model"
	"github.com/grassrootshq/outreach-backend/internal/queue"
	"github.com/grassrootshq/outreach-backend/internal/repository"
)

// CallingHoursOpen reports whether the campaign may place calls right now.
// Only robocall campaigns with enforcement on are gated; SMS and email
// ignore calling hours entirely.
func CallingHoursOpen(c *model.Campaign, now time.Time) bool {
	if c.Channel != model.ChannelRoboCall || !c.EnforceCallingHours {
		return true
	}
	if !c.IncludeWeekends {
		wd := now.Weekday()
		if wd == time.Saturday || wd == time.Sunday {
			return false
		}
	}
	h := now.Hour()
	return h >= c.StartHour && h < c.EndHour
}

// Scheduler is the single timer-driven decision maker: it fires scheduled
// campaigns whose time has arrived and re-triggers stuck sending campaigns
// whose gate has reopened. All triggers go through the dispatch queue; the
// dispatcher's per-campaign lease makes duplicate triggers harmless.
type Scheduler struct {
	Campaigns    repository.CampaignRepositoryInterface
	Resolver     *audience.Resolver
	Queue        queue.Queue
	Clock        Clock
	PollInterval time.Duration

	// ActiveCycle probes whether a dispatcher cycle currently holds the
	// campaign's lease. Nil when the worker runs out of process; the
	// lease check then happens on the consuming side.
	ActiveCycle func(campaignID int) bool
}

// Run loops until the context is done.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.PollInterval)
	defer ticker.Stop()

	log.Println("⏰ Scheduler running, poll interval:", s.PollInterval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick runs one scheduling pass.
func (s *Scheduler) Tick() {
	if err := s.fireDue(); err != nil {
		log.Println("scheduler: firing due campaigns:", err)
	}
	if _, err := s.CheckStuck(); err != nil {
		log.Println("scheduler: stuck sweep:", err)
	}
}

func (s *Scheduler) fireDue() error {
	due, err := s.Campaigns.DueScheduled(s.Clock.Now())
	if err != nil {
		return err
	}
	for _, c := range due {
		// Same guard Send applies to immediate campaigns: the audience may
		// have drained to zero between scheduling and firing.
		count, err := s.Resolver.PreviewCount(audience.FilterFor(c))
		if err != nil {
			log.Println("scheduler: failed to resolve audience for campaign:", c.ID, err)
			continue
		}
		if count == 0 {
			log.Println("⏭ Scheduled campaign has an empty audience, leaving it scheduled:", c.ID)
			continue
		}
		if err := s.Campaigns.UpdateStatus(c.ID, model.StatusSending); err != nil {
			log.Println("scheduler: failed to mark campaign sending:", c.ID, err)
			continue
		}
		if err := s.Queue.Publish(queue.DispatchTopic, c.ID); err != nil {
			log.Println("scheduler: failed to publish dispatch for campaign:", c.ID, err)
			continue
		}
		log.Println("📅 Scheduled campaign fired:", c.ID, c.Name)
	}
	return nil
}

// CheckStuck re-triggers sending campaigns that have pending work, an open
// calling-hours gate and no active cycle. Running it with no eligible
// campaigns changes nothing, so the sweep is safe to repeat.
func (s *Scheduler) CheckStuck() (int, error) {
	sending, err := s.Campaigns.ListByStatus(model.StatusSending)
	if err != nil {
		return 0, err
	}

	now := s.Clock.Now()
	restarted := 0
	for _, c := range sending {
		if c.PendingDeliveries == 0 {
			continue
		}
		if !CallingHoursOpen(c, now) {
			continue
		}
		if s.ActiveCycle != nil && s.ActiveCycle(c.ID) {
			continue
		}
		if err := s.Queue.Publish(queue.DispatchTopic, c.ID); err != nil {
			log.Println("scheduler: failed to re-trigger campaign:", c.ID, err)
			continue
		}
		restarted++
		log.Println("🔁 Re-triggered stuck campaign:", c.ID, c.Name)
	}
	return restarted, nil
}
