package service_test

import (
	"reflect"
	"testing"
	"time"

	"github.com/grassrootshq/outreach-backend/internal/model"
	"github.com/grassrootshq/outreach-backend/internal/service"
)

func TestCallingHoursOpen(t *testing.T) {
	robo := &model.Campaign{
		Channel:             model.ChannelRoboCall,
		EnforceCallingHours: true,
		StartHour:           9,
		EndHour:             20,
	}

	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"monday mid-morning", mondayMorning, true},
		{"saturday mid-morning", saturdayMorning, false},
		{"monday before window", time.Date(2026, 3, 2, 8, 59, 0, 0, time.UTC), false},
		{"monday at start", time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), true},
		{"monday at end", time.Date(2026, 3, 2, 20, 0, 0, 0, time.UTC), false},
		{"sunday", time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC), false},
	}
	for _, tc := range cases {
		if got := service.CallingHoursOpen(robo, tc.at); got != tc.want {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}

	robo.IncludeWeekends = true
	if !service.CallingHoursOpen(robo, saturdayMorning) {
		t.Errorf("weekends included: saturday should be open")
	}

	// SMS and email never consult the gate, even outside the window.
	sms := &model.Campaign{Channel: model.ChannelSMS, EnforceCallingHours: true, StartHour: 9, EndHour: 20}
	if !service.CallingHoursOpen(sms, saturdayMorning) {
		t.Errorf("sms must ignore calling hours")
	}
	email := &model.Campaign{Channel: model.ChannelEmail, EnforceCallingHours: true, StartHour: 9, EndHour: 20}
	if !service.CallingHoursOpen(email, time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)) {
		t.Errorf("email must ignore calling hours")
	}
}

func TestSchedulerFiresDueCampaign(t *testing.T) {
	e := newEngine()
	e.addVoters(2, "35201")
	c := e.mustCreate(t, smsInput("GOTV", "Vote Tuesday!", "35201"))

	at := e.clock.Now().Add(time.Hour)
	if _, err := e.svc.Schedule(superadmin(), c.ID, at); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	// Before the scheduled time nothing fires.
	e.scheduler.Tick()
	if got := e.campaign(t, c.ID); got.Status != model.StatusScheduled {
		t.Fatalf("expected still scheduled, got %s", got.Status)
	}

	e.clock.Set(at.Add(time.Minute))
	e.scheduler.Tick()

	got := e.campaign(t, c.ID)
	if got.Status != model.StatusSealed {
		t.Errorf("expected campaign to run to sealed after firing, got %s", got.Status)
	}
	if got.TotalRecipients != 2 {
		t.Errorf("expected 2 recipients, got %d", got.TotalRecipients)
	}
}

// A scheduled campaign whose audience drained to zero before its time must
// not fire; it stays scheduled until the audience is non-empty again.
func TestSchedulerLeavesEmptyAudienceScheduled(t *testing.T) {
	e := newEngine()
	c := e.mustCreate(t, smsInput("GOTV", "Vote Tuesday!", "99999"))

	at := e.clock.Now().Add(time.Hour)
	if _, err := e.svc.Schedule(superadmin(), c.ID, at); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	e.clock.Set(at.Add(time.Minute))
	e.scheduler.Tick()

	got := e.campaign(t, c.ID)
	if got.Status != model.StatusScheduled {
		t.Fatalf("empty-audience campaign fired, got %s", got.Status)
	}
	if got.TotalRecipients != 0 {
		t.Errorf("no records should materialize, got %d", got.TotalRecipients)
	}
	if e.queue.publishedCount() != 0 {
		t.Errorf("no dispatch trigger expected, got %d", e.queue.publishedCount())
	}

	// Once voters exist in the target ZIP, the next tick fires normally.
	e.addVoters(2, "99999")
	e.scheduler.Tick()
	if got := e.campaign(t, c.ID); got.Status != model.StatusSealed {
		t.Errorf("expected sealed after audience appears, got %s", got.Status)
	}
}

func TestCheckStuckRestartsIdleSendingCampaign(t *testing.T) {
	e := newEngine()
	c := e.mustCreate(t, smsInput("GOTV", "Vote Tuesday!", "35201"))
	e.campaigns.UpdateStatus(c.ID, model.StatusSending)
	e.deliveries.BulkCreate(c.ID, []model.Recipient{
		{VoterID: 1, Address: "+12055550001"},
	})
	counts, _ := e.deliveries.Counts(c.ID)
	e.campaigns.SetCounters(c.ID, counts)

	restarted, err := e.scheduler.CheckStuck()
	if err != nil {
		t.Fatalf("check stuck: %v", err)
	}
	if restarted != 1 {
		t.Errorf("expected 1 restart, got %d", restarted)
	}
	if got := e.campaign(t, c.ID); got.Status != model.StatusSealed {
		t.Errorf("expected stuck campaign to finish, got %s", got.Status)
	}
}

// Two consecutive sweeps with nothing eligible change no state.
func TestCheckStuckIsIdempotent(t *testing.T) {
	e := newEngine()
	e.addVoters(2, "35201")
	c := e.mustCreate(t, smsInput("GOTV", "Vote Tuesday!", "35201"))
	if _, err := e.svc.Send(superadmin(), c.ID); err != nil {
		t.Fatalf("send: %v", err)
	}
	before := e.campaign(t, c.ID)
	published := e.queue.publishedCount()

	for i := 0; i < 2; i++ {
		restarted, err := e.scheduler.CheckStuck()
		if err != nil {
			t.Fatalf("sweep %d: %v", i, err)
		}
		if restarted != 0 {
			t.Errorf("sweep %d: expected 0 restarts, got %d", i, restarted)
		}
	}

	after := e.campaign(t, c.ID)
	if !reflect.DeepEqual(after, before) {
		t.Errorf("sweep changed campaign state: %+v vs %+v", after, before)
	}
	if e.queue.publishedCount() != published {
		t.Errorf("sweep published triggers with no eligible campaigns")
	}
}

// A robocall campaign paused by the gate stays paused through the sweep
// until the window reopens.
func TestCheckStuckRespectsClosedGate(t *testing.T) {
	e := newEngine()
	c := e.mustCreate(t, &service.CampaignInput{
		Name:                "Robo",
		Message:             "Polls open at seven.",
		Channel:             string(model.ChannelRoboCall),
		ZipCodes:            []string{"35201"},
		EnforceCallingHours: true,
		StartHour:           9,
		EndHour:             20,
	})
	e.campaigns.UpdateStatus(c.ID, model.StatusSending)
	e.deliveries.BulkCreate(c.ID, []model.Recipient{
		{VoterID: 1, Address: "+12055550001"},
	})
	counts, _ := e.deliveries.Counts(c.ID)
	e.campaigns.SetCounters(c.ID, counts)

	e.clock.Set(saturdayMorning)
	restarted, err := e.scheduler.CheckStuck()
	if err != nil {
		t.Fatalf("check stuck: %v", err)
	}
	if restarted != 0 {
		t.Errorf("closed gate: expected no restarts, got %d", restarted)
	}
	if got := e.campaign(t, c.ID); got.Status != model.StatusSending {
		t.Errorf("expected still sending, got %s", got.Status)
	}

	e.clock.Set(mondayMorning)
	restarted, err = e.scheduler.CheckStuck()
	if err != nil {
		t.Fatalf("check stuck: %v", err)
	}
	if restarted != 1 {
		t.Errorf("open gate: expected 1 restart, got %d", restarted)
	}
	if got := e.campaign(t, c.ID); got.Status != model.StatusSealed {
		t.Errorf("expected sealed after reopen, got %s", got.Status)
	}
}
