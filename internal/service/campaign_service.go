// internal/service/campaign_service.go
package service

import (
	"log"
	"strings"
	"time"

	"github.com/grassrootshq/outreach-backend/internal/audience"
	appErrors "github.com/grassrootshq/outreach-backend/internal/errors"
	"github.com/grassrootshq/outreach-backend/internal/model"
	"github.com/grassrootshq/outreach-backend/internal/queue"
	"github.com/grassrootshq/outreach-backend/internal/repository"
)

const maxMessageLength = 1600

// CampaignService is the lifecycle controller: the only component that
// moves a campaign between states. Everything here is synchronous; the
// actual sending happens in dispatcher cycles triggered through the queue.
type CampaignService struct {
	CampaignRepo  repository.CampaignRepositoryInterface
	DeliveryRepo  repository.DeliveryRepositoryInterface
	OptOutRepo    repository.OptOutRepositoryInterface
	RecordingRepo repository.VoiceRecordingRepositoryInterface
	Resolver      *audience.Resolver
	Dispatcher    *Dispatcher
	Queue         queue.Queue
	Clock         Clock
}

// CampaignInput carries the editable content and targeting of a campaign.
type CampaignInput struct {
	Name                     string   `json:"name"`
	Message                  string   `json:"message"`
	Channel                  string   `json:"channel"`
	ZipCodes                 []string `json:"zip_codes"`
	TagIDs                   []int64  `json:"tag_ids"`
	VoiceRecordingID         *int     `json:"voice_recording_id"`
	EmailSubject             string   `json:"email_subject"`
	EmailHTMLContent         string   `json:"email_html_content"`
	EmailPlainTextContent    string   `json:"email_plain_text_content"`
	EnforceCallingHours      bool     `json:"enforce_calling_hours"`
	StartHour                int      `json:"start_hour"`
	EndHour                  int      `json:"end_hour"`
	IncludeWeekends          bool     `json:"include_weekends"`
	PreventDuplicateMessages bool     `json:"prevent_duplicate_messages"`
}

func (s *CampaignService) validate(in *CampaignInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return appErrors.NewValidation("name", "must not be empty")
	}
	if len(in.ZipCodes) == 0 && len(in.TagIDs) == 0 {
		return appErrors.NewValidation("targeting", "at least one ZIP code or tag is required")
	}

	switch model.Channel(in.Channel) {
	case model.ChannelSMS:
		if strings.TrimSpace(in.Message) == "" {
			return appErrors.NewValidation("message", "must not be empty")
		}
		if len(in.Message) > maxMessageLength {
			return appErrors.NewValidation("message", "must be at most 1600 characters")
		}
	case model.ChannelRoboCall:
		if in.VoiceRecordingID != nil {
			ok, err := s.RecordingRepo.Exists(*in.VoiceRecordingID)
			if err != nil {
				return err
			}
			if !ok {
				return appErrors.NewRecordingNotFound(*in.VoiceRecordingID)
			}
		} else {
			if strings.TrimSpace(in.Message) == "" {
				return appErrors.NewValidation("message", "a call script or voice recording is required")
			}
			if len(in.Message) > maxMessageLength {
				return appErrors.NewValidation("message", "must be at most 1600 characters")
			}
		}
	case model.ChannelEmail:
		if strings.TrimSpace(in.EmailSubject) == "" {
			return appErrors.NewValidation("email_subject", "must not be empty")
		}
		if strings.TrimSpace(in.EmailHTMLContent) == "" {
			return appErrors.NewValidation("email_html_content", "must not be empty")
		}
	default:
		return appErrors.NewValidation("channel", "must be one of sms, robocall, email")
	}

	if in.EnforceCallingHours {
		if in.StartHour < 0 || in.StartHour > 23 || in.EndHour < 0 || in.EndHour > 23 {
			return appErrors.NewValidation("calling_hours", "hours must be between 0 and 23")
		}
		if in.StartHour >= in.EndHour {
			return appErrors.NewValidation("calling_hours", "start_hour must be before end_hour")
		}
	}
	return nil
}

func applyInput(c *model.Campaign, in *CampaignInput) {
	c.Name = in.Name
	c.Message = in.Message
	c.Channel = model.Channel(in.Channel)
	c.ZipCodes = in.ZipCodes
	c.TagIDs = in.TagIDs
	c.VoiceRecordingID = in.VoiceRecordingID
	c.EmailSubject = in.EmailSubject
	c.EmailHTMLContent = in.EmailHTMLContent
	c.EmailPlainTextContent = in.EmailPlainTextContent
	c.EnforceCallingHours = in.EnforceCallingHours
	c.StartHour = in.StartHour
	c.EndHour = in.EndHour
	c.IncludeWeekends = in.IncludeWeekends
	c.PreventDuplicateMessages = in.PreventDuplicateMessages
}

func requireAdmin(actor model.Actor) error {
	if actor.Role != model.RoleAdmin && actor.Role != model.RoleSuperAdmin {
		return appErrors.NewAuthorization("admin role required")
	}
	return nil
}

func requireSuperAdmin(actor model.Actor) error {
	if !actor.SuperAdmin() {
		return appErrors.NewAuthorization("superadmin role required")
	}
	return nil
}

// ====================== CRUD ======================

func (s *CampaignService) CreateCampaign(actor model.Actor, in *CampaignInput) (*model.Campaign, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := s.validate(in); err != nil {
		return nil, err
	}

	c := &model.Campaign{Status: model.StatusDraft, CreatedBy: actor.ID}
	applyInput(c, in)
	if err := s.CampaignRepo.Create(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CampaignService) UpdateCampaign(actor model.Actor, id int, in *CampaignInput) (*model.Campaign, error) {
	c, err := s.CampaignRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if !actor.CanManage(c.CreatedBy) {
		return nil, appErrors.NewAuthorization("you may only edit your own campaigns")
	}
	// Only a pristine draft is editable; a draft that was sent and reset
	// keeps its delivery history and is locked.
	if !c.Pristine() {
		return nil, appErrors.NewValidation("status", "only a draft with no delivery history can be edited")
	}
	if err := s.validate(in); err != nil {
		return nil, err
	}

	applyInput(c, in)
	if err := s.CampaignRepo.Update(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CampaignService) DeleteCampaign(actor model.Actor, id int) error {
	c, err := s.CampaignRepo.GetByID(id)
	if err != nil {
		return err
	}
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if c.Status.Terminal() {
		return appErrors.NewValidation("status", "finished campaigns cannot be deleted")
	}
	if c.TotalRecipients > 0 && !actor.CanManage(c.CreatedBy) {
		return appErrors.NewAuthorization("only the owner or a superadmin may delete a campaign with deliveries")
	}
	return s.CampaignRepo.Delete(id)
}

// DuplicateCampaign clones content and targeting into a fresh draft with
// zero recipients, independent of the original's history.
func (s *CampaignService) DuplicateCampaign(actor model.Actor, id int) (*model.Campaign, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	orig, err := s.CampaignRepo.GetByID(id)
	if err != nil {
		return nil, err
	}

	clone := &model.Campaign{
		Name:                     orig.Name + " (copy)",
		Message:                  orig.Message,
		Channel:                  orig.Channel,
		Status:                   model.StatusDraft,
		CreatedBy:                actor.ID,
		ZipCodes:                 orig.ZipCodes,
		TagIDs:                   orig.TagIDs,
		VoiceRecordingID:         orig.VoiceRecordingID,
		EmailSubject:             orig.EmailSubject,
		EmailHTMLContent:         orig.EmailHTMLContent,
		EmailPlainTextContent:    orig.EmailPlainTextContent,
		EnforceCallingHours:      orig.EnforceCallingHours,
		StartHour:                orig.StartHour,
		EndHour:                  orig.EndHour,
		IncludeWeekends:          orig.IncludeWeekends,
		PreventDuplicateMessages: orig.PreventDuplicateMessages,
	}
	if err := s.CampaignRepo.Create(clone); err != nil {
		return nil, err
	}
	return clone, nil
}

// ====================== Commands ======================

// Send moves a draft into sending and triggers the first dispatch cycle.
func (s *CampaignService) Send(actor model.Actor, id int) (*model.Campaign, error) {
	if err := requireSuperAdmin(actor); err != nil {
		return nil, err
	}
	c, err := s.CampaignRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if c.Status != model.StatusDraft {
		return nil, appErrors.NewValidation("status", "only a draft campaign can be sent")
	}

	count, err := s.Resolver.PreviewCount(audience.FilterFor(c))
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, appErrors.NewValidation("targeting", "audience resolves to no recipients")
	}

	if err := s.CampaignRepo.UpdateStatus(id, model.StatusSending); err != nil {
		return nil, err
	}
	c.Status = model.StatusSending
	if err := s.Queue.Publish(queue.DispatchTopic, id); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CampaignService) Schedule(actor model.Actor, id int, at time.Time) (*model.Campaign, error) {
	if err := requireSuperAdmin(actor); err != nil {
		return nil, err
	}
	c, err := s.CampaignRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if c.Status != model.StatusDraft {
		return nil, appErrors.NewValidation("status", "only a draft campaign can be scheduled")
	}
	if !at.After(s.Clock.Now()) {
		return nil, appErrors.NewValidation("scheduled_at", "must be in the future")
	}

	c.ScheduledAt = &at
	if err := s.CampaignRepo.Update(c); err != nil {
		return nil, err
	}
	if err := s.CampaignRepo.UpdateStatus(id, model.StatusScheduled); err != nil {
		return nil, err
	}
	c.Status = model.StatusScheduled
	return c, nil
}

// Cancel applies to scheduled campaigns only; once sending, the only
// interruption is ForceStop.
func (s *CampaignService) Cancel(actor model.Actor, id int) (*model.Campaign, error) {
	if err := requireSuperAdmin(actor); err != nil {
		return nil, err
	}
	c, err := s.CampaignRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if c.Status != model.StatusScheduled {
		return nil, appErrors.NewValidation("status", "only a scheduled campaign can be cancelled")
	}
	if err := s.CampaignRepo.UpdateStatus(id, model.StatusCancelled); err != nil {
		return nil, err
	}
	c.Status = model.StatusCancelled
	return c, nil
}

func (s *CampaignService) ForceStop(actor model.Actor, id int) (*model.Campaign, error) {
	if err := requireSuperAdmin(actor); err != nil {
		return nil, err
	}
	c, err := s.CampaignRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if c.Status != model.StatusSending {
		return nil, appErrors.NewValidation("status", "only a sending campaign can be force-stopped")
	}
	if err := s.Dispatcher.ForceStop(id); err != nil {
		return nil, err
	}
	return s.CampaignRepo.GetByID(id)
}

// RetryFailed re-resolves only the previously failed recipients and runs a
// fresh cycle against that subset. Opt-outs recorded since the original
// send are re-applied unless the privileged override is set; the override
// is always logged.
func (s *CampaignService) RetryFailed(actor model.Actor, id int, overrideOptOuts bool) (*model.Campaign, error) {
	if err := requireSuperAdmin(actor); err != nil {
		return nil, err
	}
	c, err := s.CampaignRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if c.Status != model.StatusCompleted && c.Status != model.StatusFailed {
		return nil, appErrors.NewValidation("status", "only a finished campaign can be retried")
	}
	if c.FailedDeliveries == 0 {
		return nil, appErrors.NewValidation("status", "campaign has no failed deliveries")
	}

	failed, err := s.DeliveryRepo.FailedRecipients(id)
	if err != nil {
		return nil, err
	}

	if overrideOptOuts {
		log.Printf("⚠️ OPT-OUT OVERRIDE: actor %d retries campaign %d ignoring the opt-out registry\n", actor.ID, id)
	} else if c.Channel.UsesPhone() {
		optedOut, err := s.OptOutRepo.ActivePhones(c.Channel)
		if err != nil {
			return nil, err
		}
		kept := failed[:0]
		for _, rec := range failed {
			if !optedOut[rec.Address] {
				kept = append(kept, rec)
			}
		}
		failed = kept
	}

	if len(failed) == 0 {
		return nil, appErrors.NewValidation("targeting", "all failed recipients have since opted out")
	}

	// Fresh records, not rewritten history: the old failed rows stay for
	// the audit trail and the new pending rows supersede them.
	if err := s.DeliveryRepo.BulkCreate(id, failed); err != nil {
		return nil, err
	}
	counts, err := s.DeliveryRepo.Counts(id)
	if err != nil {
		return nil, err
	}
	if err := s.CampaignRepo.SetCounters(id, counts); err != nil {
		return nil, err
	}
	if err := s.CampaignRepo.UpdateStatus(id, model.StatusSending); err != nil {
		return nil, err
	}
	if err := s.Queue.Publish(queue.DispatchTopic, id); err != nil {
		return nil, err
	}
	return s.CampaignRepo.GetByID(id)
}

// ====================== Queries ======================

// RecipientCount is the interactive pre-send audience estimate.
func (s *CampaignService) RecipientCount(f audience.Filter) (int, error) {
	return s.Resolver.PreviewCount(f)
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(page, pageSize int, channel, status string) ([]model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.CampaignRepo.ListCampaigns(offset, pageSize, channel, status)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}

	return campaigns, pagination, nil
}

type CampaignDetails struct {
	*model.Campaign
	Stats map[string]int `json:"stats"`
}

// GetCampaignDetails returns a campaign plus its delivery stats map.
func (s *CampaignService) GetCampaignDetails(id int) (*CampaignDetails, error) {
	c, err := s.CampaignRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	counts, err := s.DeliveryRepo.Counts(id)
	if err != nil {
		return nil, err
	}
	stats := map[string]int{
		"total":   counts.Total,
		"pending": counts.Pending,
		"sent":    counts.Sent,
		"failed":  counts.Failed,
	}
	return &CampaignDetails{Campaign: c, Stats: stats}, nil
}
