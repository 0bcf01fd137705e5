// internal/controller/campaign_controller.go
package controller

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/grassrootshq/outreach-backend/internal/audience"
	"github.com/grassrootshq/outreach-backend/internal/auth"
	appErrors "github.com/grassrootshq/outreach-backend/internal/errors"
	"github.com/grassrootshq/outreach-backend/internal/model"
	"github.com/grassrootshq/outreach-backend/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
	Scheduler       *service.Scheduler
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case appErrors.IsValidation(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case appErrors.IsAuthorization(err):
		http.Error(w, err.Error(), http.StatusForbidden)
	case appErrors.IsNotFound(err):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func campaignID(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	return id, err == nil
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var in service.CampaignInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	campaign, err := c.CampaignService.CreateCampaign(auth.FromRequest(r), &in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, campaign)
}

func (c *CampaignController) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(r)
	if !ok {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}
	var in service.CampaignInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	campaign, err := c.CampaignService.UpdateCampaign(auth.FromRequest(r), id, &in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, campaign)
}

func (c *CampaignController) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(r)
	if !ok {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}
	if err := c.CampaignService.DeleteCampaign(auth.FromRequest(r), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "deleted"})
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	channel := r.URL.Query().Get("channel")
	status := r.URL.Query().Get("status")

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	campaigns, pagination, err := c.CampaignService.ListCampaigns(page, pageSize, channel, status)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, map[string]interface{}{
		"data":       campaigns,
		"pagination": pagination,
	})
}

func (c *CampaignController) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(r)
	if !ok {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}
	details, err := c.CampaignService.GetCampaignDetails(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, details)
}

func (c *CampaignController) SendCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(r)
	if !ok {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}
	campaign, err := c.CampaignService.Send(auth.FromRequest(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, campaign)
}

func (c *CampaignController) ScheduleCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(r)
	if !ok {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}
	var body struct {
		ScheduledAt string `json:"scheduled_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	at, err := time.Parse(time.RFC3339, body.ScheduledAt)
	if err != nil {
		http.Error(w, "scheduled_at must be RFC3339", http.StatusBadRequest)
		return
	}

	campaign, err := c.CampaignService.Schedule(auth.FromRequest(r), id, at)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, campaign)
}

func (c *CampaignController) CancelCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(r)
	if !ok {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}
	campaign, err := c.CampaignService.Cancel(auth.FromRequest(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, campaign)
}

func (c *CampaignController) ForceStopCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(r)
	if !ok {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}
	campaign, err := c.CampaignService.ForceStop(auth.FromRequest(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, campaign)
}

func (c *CampaignController) RetryFailedCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(r)
	if !ok {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}
	var body struct {
		OverrideOptOuts bool `json:"override_opt_outs"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&body) // body optional
	}

	campaign, err := c.CampaignService.RetryFailed(auth.FromRequest(r), id, body.OverrideOptOuts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, campaign)
}

func (c *CampaignController) DuplicateCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(r)
	if !ok {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}
	campaign, err := c.CampaignService.DuplicateCampaign(auth.FromRequest(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, campaign)
}

// RecipientCount estimates the audience for ad hoc targeting criteria
// without creating anything.
func (c *CampaignController) RecipientCount(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := audience.Filter{
		Channel:           model.Channel(q.Get("channel")),
		Message:           q.Get("message"),
		PreventDuplicates: q.Get("prevent_duplicates") == "true",
	}
	if zips := q.Get("zip_codes"); zips != "" {
		f.ZipCodes = strings.Split(zips, ",")
	}
	if tags := q.Get("tag_ids"); tags != "" {
		for _, raw := range strings.Split(tags, ",") {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				http.Error(w, "invalid tag id: "+raw, http.StatusBadRequest)
				return
			}
			f.TagIDs = append(f.TagIDs, id)
		}
	}
	if f.Channel == "" {
		f.Channel = model.ChannelSMS
	}

	count, err := c.CampaignService.RecipientCount(f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]int{"recipient_count": count})
}

// CheckStuck is the manual trigger for the sweep the scheduler already
// runs periodically.
func (c *CampaignController) CheckStuck(w http.ResponseWriter, r *http.Request) {
	restarted, err := c.Scheduler.CheckStuck()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]int{"restarted": restarted})
}
