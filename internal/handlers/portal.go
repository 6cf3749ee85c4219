package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-portal/internal/geo"
	"github.com/ukydev/fleet-portal/internal/models"
	"github.com/ukydev/fleet-portal/internal/policy"
	"github.com/ukydev/fleet-portal/internal/portal"
	"github.com/ukydev/fleet-portal/internal/triage"
)

// PortalHandler serves the portal API over a Store
type PortalHandler struct {
	store *portal.Store
}

// NewPortalHandler creates a new portal handler
func NewPortalHandler(store *portal.Store) *PortalHandler {
	return &PortalHandler{store: store}
}

// SavePolicyRequest is the body of a policy save. The optional text fields
// carry MCC lists as typed in the editor and override the integer lists.
type SavePolicyRequest struct {
	models.Policy
	MCCAllowText *string `json:"mcc_allow_text,omitempty"`
	MCCBlockText *string `json:"mcc_block_text,omitempty"`
}

// SavePolicyResponse reports the stored policy, its MCC lists as editor
// text, and any MCC tokens that were dropped.
type SavePolicyResponse struct {
	Policy         models.Policy `json:"policy"`
	MCCAllowText   string        `json:"mcc_allow_text"`
	MCCBlockText   string        `json:"mcc_block_text"`
	DroppedMCCText []string      `json:"dropped_mcc_tokens,omitempty"`
}

// TriageRequest is the body of a triage action
type TriageRequest struct {
	Decision models.Status `json:"decision"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("Failed to encode response")
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

// Health reports liveness
func (h *PortalHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListVehicles returns all vehicles
func (h *PortalHandler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Vehicles())
}

// Map returns the vehicle overlay as a GeoJSON feature collection
func (h *PortalHandler) Map(w http.ResponseWriter, r *http.Request) {
	window, err := geo.ParseWindow(r.URL.Query().Get("window"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	layer, err := geo.ParseLayer(r.URL.Query().Get("layer"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	fc := h.store.Project(window)
	fc.ExtraMembers = map[string]interface{}{
		"layer":           layer,
		"window":          window,
		"weight_property": geo.WeightProperty,
	}
	w.Header().Set("Content-Type", "application/geo+json")
	if err := json.NewEncoder(w).Encode(fc); err != nil {
		log.WithError(err).Error("Failed to encode feature collection")
	}
}

// ListPolicies returns all policies
func (h *PortalHandler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Policies())
}

// GetPolicy returns one policy
func (h *PortalHandler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.Policy(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Policy not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// SavePolicy validates and stores a policy
func (h *PortalHandler) SavePolicy(w http.ResponseWriter, r *http.Request) {
	var req SavePolicyRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	draft := policy.EditDraft(req.Policy)
	var dropped []string
	if req.MCCAllowText != nil {
		dropped = append(dropped, draft.SetMCCAllowText(*req.MCCAllowText)...)
	}
	if req.MCCBlockText != nil {
		dropped = append(dropped, draft.SetMCCBlockText(*req.MCCBlockText)...)
	}
	if len(dropped) > 0 {
		log.WithFields(log.Fields{
			"policy_id": req.ID,
			"tokens":    dropped,
		}).Warn("Dropped malformed MCC entries")
	}

	saved, err := h.store.SavePolicy(r.Context(), draft.Policy())
	if err != nil {
		if errors.Is(err, policy.ErrInvalidPolicy) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		http.Error(w, "Failed to save policy", http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if req.ID == "" || req.ID == policy.NewPolicyID {
		status = http.StatusCreated
	}
	writeJSON(w, status, SavePolicyResponse{
		Policy:         saved,
		MCCAllowText:   policy.FormatMCCList(saved.MCCAllow),
		MCCBlockText:   policy.FormatMCCList(saved.MCCBlock),
		DroppedMCCText: dropped,
	})
}

// EvaluatePolicy checks a transaction against a stored policy
func (h *PortalHandler) EvaluatePolicy(w http.ResponseWriter, r *http.Request) {
	var txn models.Transaction
	if err := decodeJSON(r, &txn); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if txn.Timestamp.IsZero() {
		http.Error(w, "timestamp is required", http.StatusBadRequest)
		return
	}

	result, err := h.store.Evaluate(mux.Vars(r)["id"], txn)
	if err != nil {
		http.Error(w, "Policy not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListExceptions returns exceptions filtered by ?status=
func (h *PortalHandler) ListExceptions(w http.ResponseWriter, r *http.Request) {
	filter, err := triage.ParseStatusFilter(r.URL.Query().Get("status"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, h.store.Exceptions(filter))
}

// TriageException approves or denies an open exception
func (h *PortalHandler) TriageException(w http.ResponseWriter, r *http.Request) {
	var req TriageRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	item, err := h.store.Triage(r.Context(), mux.Vars(r)["id"], req.Decision)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, item)
	case errors.Is(err, portal.ErrNotFound):
		http.Error(w, "Exception not found", http.StatusNotFound)
	case errors.Is(err, triage.ErrInvalidDecision):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, triage.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, "Failed to triage exception", http.StatusInternalServerError)
	}
}

// RefreshExceptions refetches the exception feed
func (h *PortalHandler) RefreshExceptions(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.RefreshExceptions(r.Context())
	if err != nil {
		http.Error(w, "Exception feed unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// Snapshot returns the fleet summary
func (h *PortalHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Snapshot())
}
