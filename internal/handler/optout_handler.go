// internal/handler/optout_handler.go
package handler

import (
	"encoding/csv"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/grassrootshq/outreach-backend/internal/auth"
	appErrors "github.com/grassrootshq/outreach-backend/internal/errors"
	"github.com/grassrootshq/outreach-backend/internal/model"
	"github.com/grassrootshq/outreach-backend/internal/repository"
)

// OptOutHandler serves the opt-out registry surface. Entries are
// append-only from the engine's point of view; deletion is a superadmin
// administrative action, never part of a send.
type OptOutHandler struct {
	Repo repository.OptOutRepositoryInterface
}

func (h *OptOutHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}

	optOuts, total, err := h.Repo.List((page-1)*pageSize, pageSize)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"data": optOuts,
		"pagination": map[string]int{
			"page":        page,
			"page_size":   pageSize,
			"total_count": total,
		},
	})
}

func (h *OptOutHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PhoneNumber string `json:"phone_number"`
		Type        string `json:"type"`
		Method      string `json:"method"`
		Reason      string `json:"reason"`
		VoterID     *int   `json:"voter_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	phone := model.NormalizePhone(body.PhoneNumber)
	if phone == "" {
		http.Error(w, "phone_number is required", http.StatusBadRequest)
		return
	}
	optOutType := model.OptOutType(body.Type)
	switch optOutType {
	case "":
		optOutType = model.OptOutAll
	case model.OptOutAll, model.OptOutSMS, model.OptOutRoboCalls:
	default:
		http.Error(w, "type must be one of all, sms, robocalls", http.StatusBadRequest)
		return
	}
	method := model.OptOutMethod(body.Method)
	switch method {
	case "":
		method = model.OptOutManual
	case model.OptOutByPhone, model.OptOutBySMS, model.OptOutManual, model.OptOutViaWeb:
	default:
		http.Error(w, "method must be one of phone, sms, manual, web", http.StatusBadRequest)
		return
	}

	o := &model.OptOut{
		PhoneNumber: phone,
		Type:        optOutType,
		Method:      method,
		Reason:      body.Reason,
		VoterID:     body.VoterID,
		OptedOutAt:  time.Now(),
	}
	if err := h.Repo.Create(o); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(o)
}

// Delete removes a registry entry; superadmin only.
func (h *OptOutHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !auth.FromRequest(r).SuperAdmin() {
		http.Error(w, "superadmin role required", http.StatusForbidden)
		return
	}
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid opt-out id", http.StatusBadRequest)
		return
	}
	if err := h.Repo.Delete(id); err != nil {
		if appErrors.IsNotFound(err) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
}

func (h *OptOutHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Repo.Stats()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// Export streams the full registry as CSV.
func (h *OptOutHandler) Export(w http.ResponseWriter, r *http.Request) {
	optOuts, err := h.Repo.All()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="opt-outs.csv"`)

	cw := csv.NewWriter(w)
	cw.Write([]string{"phoneNumber", "type", "method", "optedOutAt", "reason"})
	for _, o := range optOuts {
		cw.Write([]string{
			o.PhoneNumber,
			string(o.Type),
			string(o.Method),
			o.OptedOutAt.Format(time.RFC3339),
			o.Reason,
		})
	}
	cw.Flush()
}
