package service_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	appErrors "github.com/grassrootshq/outreach-backend/internal/errors"
	"github.com/grassrootshq/outreach-backend/internal/model"
)

// ---- clock ----

type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// ---- campaign repository ----

type memCampaignRepo struct {
	mu        sync.Mutex
	nextID    int
	campaigns map[int]*model.Campaign
}

func newMemCampaignRepo() *memCampaignRepo {
	return &memCampaignRepo{campaigns: map[int]*model.Campaign{}}
}

func (r *memCampaignRepo) Create(c *model.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	c.ID = r.nextID
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.StatusDraft
	}
	cp := *c
	r.campaigns[c.ID] = &cp
	return nil
}

func (r *memCampaignRepo) Update(c *model.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.campaigns[c.ID]
	if !ok {
		return appErrors.NewCampaignNotFound(c.ID)
	}
	cp := *c
	cp.Status = stored.Status
	cp.TotalRecipients = stored.TotalRecipients
	cp.SuccessfulDeliveries = stored.SuccessfulDeliveries
	cp.FailedDeliveries = stored.FailedDeliveries
	cp.PendingDeliveries = stored.PendingDeliveries
	r.campaigns[c.ID] = &cp
	return nil
}

func (r *memCampaignRepo) Delete(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.campaigns, id)
	return nil
}

func (r *memCampaignRepo) GetByID(id int) (*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (r *memCampaignRepo) ListCampaigns(offset, limit int, channel, status string) ([]*model.Campaign, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := []*model.Campaign{}
	for _, c := range r.campaigns {
		if channel != "" && string(c.Channel) != channel {
			continue
		}
		if status != "" && string(c.Status) != status {
			continue
		}
		cp := *c
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := len(all)
	if offset >= total {
		return []*model.Campaign{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (r *memCampaignRepo) UpdateStatus(campaignID int, status model.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[campaignID]
	if !ok {
		return appErrors.NewCampaignNotFound(campaignID)
	}
	c.Status = status
	return nil
}

func (r *memCampaignRepo) SetSentAt(campaignID int, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[campaignID]
	if !ok {
		return appErrors.NewCampaignNotFound(campaignID)
	}
	c.SentAt = &at
	return nil
}

func (r *memCampaignRepo) SetCounters(campaignID int, counts model.DeliveryCounts) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[campaignID]
	if !ok {
		return appErrors.NewCampaignNotFound(campaignID)
	}
	c.TotalRecipients = counts.Total
	c.SuccessfulDeliveries = counts.Sent
	c.FailedDeliveries = counts.Failed
	c.PendingDeliveries = counts.Pending
	return nil
}

func (r *memCampaignRepo) DueScheduled(now time.Time) ([]*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	due := []*model.Campaign{}
	for _, c := range r.campaigns {
		if c.Status == model.StatusScheduled && c.ScheduledAt != nil && !c.ScheduledAt.After(now) {
			cp := *c
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	return due, nil
}

func (r *memCampaignRepo) ListByStatus(status model.Status) ([]*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	matched := []*model.Campaign{}
	for _, c := range r.campaigns {
		if c.Status == status {
			cp := *c
			matched = append(matched, &cp)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return matched, nil
}

// ---- delivery repository ----

type memDeliveryRepo struct {
	mu        sync.Mutex
	nextID    int
	records   []*model.DeliveryRecord
	campaigns *memCampaignRepo
}

func newMemDeliveryRepo(campaigns *memCampaignRepo) *memDeliveryRepo {
	return &memDeliveryRepo{campaigns: campaigns}
}

func (r *memDeliveryRepo) BulkCreate(campaignID int, recipients []model.Recipient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for _, rec := range recipients {
		r.nextID++
		r.records = append(r.records, &model.DeliveryRecord{
			ID:         r.nextID,
			CampaignID: campaignID,
			VoterID:    rec.VoterID,
			Address:    rec.Address,
			Status:     model.DeliveryPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	return nil
}

func (r *memDeliveryRepo) ListPending(campaignID, limit int) ([]*model.DeliveryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pending := []*model.DeliveryRecord{}
	for _, rec := range r.records {
		if rec.CampaignID == campaignID && rec.Status == model.DeliveryPending {
			cp := *rec
			pending = append(pending, &cp)
			if len(pending) == limit {
				break
			}
		}
	}
	return pending, nil
}

func (r *memDeliveryRepo) MarkSent(id int) error {
	return r.mark(id, model.DeliverySent, "")
}

func (r *memDeliveryRepo) MarkFailed(id int, lastError string) error {
	return r.mark(id, model.DeliveryFailed, lastError)
}

func (r *memDeliveryRepo) mark(id int, status model.DeliveryStatus, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.ID == id {
			rec.Status = status
			rec.LastError = lastError
			rec.UpdatedAt = time.Now()
			return nil
		}
	}
	return fmt.Errorf("delivery record %d not found", id)
}

func (r *memDeliveryRepo) FailAllPending(campaignID int, reason string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.records {
		if rec.CampaignID == campaignID && rec.Status == model.DeliveryPending {
			rec.Status = model.DeliveryFailed
			rec.LastError = reason
			n++
		}
	}
	return n, nil
}

func (r *memDeliveryRepo) latestByVoter(campaignID int) map[int]*model.DeliveryRecord {
	latest := map[int]*model.DeliveryRecord{}
	for _, rec := range r.records {
		if rec.CampaignID != campaignID {
			continue
		}
		if prev, ok := latest[rec.VoterID]; !ok || rec.ID > prev.ID {
			latest[rec.VoterID] = rec
		}
	}
	return latest
}

func (r *memDeliveryRepo) Counts(campaignID int) (model.DeliveryCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var counts model.DeliveryCounts
	for _, rec := range r.latestByVoter(campaignID) {
		switch rec.Status {
		case model.DeliverySent:
			counts.Sent++
		case model.DeliveryFailed:
			counts.Failed++
		case model.DeliveryPending:
			counts.Pending++
		}
		counts.Total++
	}
	return counts, nil
}

func (r *memDeliveryRepo) FailedRecipients(campaignID int) ([]model.Recipient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	failed := []model.Recipient{}
	for _, rec := range r.latestByVoter(campaignID) {
		if rec.Status == model.DeliveryFailed {
			failed = append(failed, model.Recipient{VoterID: rec.VoterID, Address: rec.Address})
		}
	}
	sort.Slice(failed, func(i, j int) bool { return failed[i].VoterID < failed[j].VoterID })
	return failed, nil
}

func (r *memDeliveryRepo) VotersSentMessage(channel model.Channel, message string) (map[int]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	voters := map[int]bool{}
	for _, rec := range r.records {
		if rec.Status != model.DeliverySent {
			continue
		}
		c, err := r.campaigns.GetByID(rec.CampaignID)
		if err != nil {
			continue
		}
		if c.Channel == channel && c.Message == message {
			voters[rec.VoterID] = true
		}
	}
	return voters, nil
}

func (r *memDeliveryRepo) count(campaignID int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.records {
		if rec.CampaignID == campaignID {
			n++
		}
	}
	return n
}

// ---- voter repository ----

type memVoterRepo struct {
	voters []model.Voter
	tags   map[int64][]int // tag -> voter ids
}

func (r *memVoterRepo) GetByID(id int) (*model.Voter, error) {
	for _, v := range r.voters {
		if v.ID == id {
			cp := v
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memVoterRepo) FindByZip(zip string) ([]model.Voter, error) {
	matched := []model.Voter{}
	for _, v := range r.voters {
		if v.Zip == zip {
			matched = append(matched, v)
		}
	}
	return matched, nil
}

func (r *memVoterRepo) FindByTag(tagID int64) ([]model.Voter, error) {
	matched := []model.Voter{}
	for _, id := range r.tags[tagID] {
		if v, _ := r.GetByID(id); v != nil {
			matched = append(matched, *v)
		}
	}
	return matched, nil
}

func (r *memVoterRepo) TagExists(tagID int64) (bool, error) {
	_, ok := r.tags[tagID]
	return ok, nil
}

// ---- opt-out repository ----

type memOptOutRepo struct {
	mu      sync.Mutex
	nextID  int
	optOuts []model.OptOut
}

func (r *memOptOutRepo) Create(o *model.OptOut) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.optOuts {
		if existing.PhoneNumber == o.PhoneNumber && existing.Type == o.Type {
			o.ID = existing.ID
			r.optOuts[i] = *o
			return nil
		}
	}
	r.nextID++
	o.ID = r.nextID
	r.optOuts = append(r.optOuts, *o)
	return nil
}

func (r *memOptOutRepo) Delete(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, o := range r.optOuts {
		if o.ID == id {
			r.optOuts = append(r.optOuts[:i], r.optOuts[i+1:]...)
			return nil
		}
	}
	return appErrors.NewOptOutNotFound(id)
}

func (r *memOptOutRepo) List(offset, limit int) ([]model.OptOut, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := len(r.optOuts)
	if offset >= total {
		return []model.OptOut{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return append([]model.OptOut{}, r.optOuts[offset:end]...), total, nil
}

func (r *memOptOutRepo) All() ([]model.OptOut, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.OptOut{}, r.optOuts...), nil
}

func (r *memOptOutRepo) Stats() (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := map[string]int{"total": 0}
	for _, o := range r.optOuts {
		stats[string(o.Type)]++
		stats["total"]++
	}
	return stats, nil
}

func (r *memOptOutRepo) ActivePhones(channel model.Channel) (map[string]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	phones := map[string]bool{}
	for _, o := range r.optOuts {
		if o.Type.Covers(channel) {
			phones[o.PhoneNumber] = true
		}
	}
	return phones, nil
}

// ---- recording repository ----

type memRecordingRepo struct {
	ids map[int]bool
}

func (r *memRecordingRepo) Exists(id int) (bool, error) {
	return r.ids[id], nil
}

// ---- queue ----

// syncQueue runs the handler inline on Publish, so tests see the cycle's
// effects without sleeping.
type syncQueue struct {
	mu        sync.Mutex
	published []int
	handler   func(campaignID int) error
}

func (q *syncQueue) Publish(topic string, campaignID int) error {
	q.mu.Lock()
	q.published = append(q.published, campaignID)
	handler := q.handler
	q.mu.Unlock()
	if handler != nil {
		return handler(campaignID)
	}
	return nil
}

func (q *syncQueue) Subscribe(topic string, handler func(campaignID int) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handler = handler
	return nil
}

func (q *syncQueue) publishedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.published)
}

// ---- senders ----

type stubSender struct {
	mu      sync.Mutex
	sent    []string
	failFor map[string]bool
}

func (s *stubSender) attempt(to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor[to] {
		return fmt.Errorf("provider rejected %s", to)
	}
	s.sent = append(s.sent, to)
	return nil
}

func (s *stubSender) SendSMS(ctx context.Context, to, body string) error {
	return s.attempt(to)
}

func (s *stubSender) PlaceRoboCall(ctx context.Context, to, script string, recordingID *int) error {
	return s.attempt(to)
}

func (s *stubSender) SendEmail(ctx context.Context, to, subject, html, text string) error {
	return s.attempt(to)
}

func (s *stubSender) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}
