package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrijs2005/patterm/internal/common"
	"github.com/dmitrijs2005/patterm/internal/logging"
	"github.com/dmitrijs2005/patterm/internal/retry"
	"github.com/dmitrijs2005/patterm/internal/server/access"
	"github.com/dmitrijs2005/patterm/internal/server/models"
	"github.com/dmitrijs2005/patterm/internal/server/vault"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	gate     *access.Gate
	sessions Sessions
	retry    retry.Policy
	logger   logging.Logger
}

func NewHandlers(gate *access.Gate, sessions Sessions, policy retry.Policy, l logging.Logger) *Handlers {
	return &Handlers{
		gate:     gate,
		sessions: sessions,
		retry:    policy,
		logger:   l.With("module", "http_handlers"),
	}
}

// fail logs err according to its kind and writes the error response.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := common.KindOf(err)
	switch {
	case common.NeedsOperatorAttention(err):
		h.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "kind", kind, "error", err, "alert", true)
	case kind == common.KindInternal:
		h.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	default:
		h.logger.Debug(r.Context(), "request failed", "path", r.URL.Path, "kind", kind)
	}
	respondKind(w, kind)
}

func withRetry[T any](ctx context.Context, h *Handlers, fn func(ctx context.Context) (T, error)) (T, error) {
	return retry.Do(ctx, h.retry, func(err error, wait time.Duration) {
		h.logger.Debug(ctx, "vault busy, retrying", "wait", wait)
	}, fn)
}

func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "patterm",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

type issueSessionRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

// SessionResponse describes a session. Token is only set when the session
// is issued.
type SessionResponse struct {
	Token      string      `json:"token,omitempty"`
	UserID     string      `json:"user_id"`
	Role       models.Role `json:"role"`
	FacilityID string      `json:"facility_id,omitempty"`
	ExpiresAt  time.Time   `json:"expires_at"`
}

func sessionResponse(s *models.Session) SessionResponse {
	return SessionResponse{UserID: s.UserID, Role: s.Role, FacilityID: s.FacilityID, ExpiresAt: s.ExpiresAt}
}

func (h *Handlers) IssueSession(w http.ResponseWriter, r *http.Request) {
	var req issueSessionRequest
	if err := decode(r, &req); err != nil {
		respondKind(w, common.KindValidation)
		return
	}

	token, s, err := h.sessions.IssueSession(r.Context(), req.UserID, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := sessionResponse(s)
	resp.Token = token
	respond(w, http.StatusCreated, resp)
}

func (h *Handlers) ValidateSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Validate(r.Context(), bearerToken(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, sessionResponse(s))
}

func (h *Handlers) RevokeSession(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		respondKind(w, common.KindAuthentication)
		return
	}
	if err := h.sessions.Revoke(r.Context(), token); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) CreateRecord(w http.ResponseWriter, r *http.Request) {
	var p models.Profile
	if err := decode(r, &p); err != nil {
		respondKind(w, common.KindValidation)
		return
	}

	token := bearerToken(r)
	rec, err := withRetry(r.Context(), h, func(ctx context.Context) (*models.PatientRecord, error) {
		return h.gate.CreateRecord(ctx, token, p)
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusCreated, rec)
}

func (h *Handlers) ReadRecord(w http.ResponseWriter, r *http.Request) {
	token, id := bearerToken(r), chi.URLParam(r, "id")
	rec, err := withRetry(r.Context(), h, func(ctx context.Context) (*models.PatientRecord, error) {
		return h.gate.ReadRecord(ctx, token, id)
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, rec)
}

func (h *Handlers) AppendAppointment(w http.ResponseWriter, r *http.Request) {
	var ref models.AppointmentRef
	if err := decode(r, &ref); err != nil {
		respondKind(w, common.KindValidation)
		return
	}

	token, id := bearerToken(r), chi.URLParam(r, "id")
	_, err := withRetry(r.Context(), h, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, h.gate.AppendAppointment(ctx, token, id, ref)
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type updateConsentRequest struct {
	Granted *bool `json:"granted"`
}

func (h *Handlers) UpdateConsent(w http.ResponseWriter, r *http.Request) {
	var req updateConsentRequest
	if err := decode(r, &req); err != nil || req.Granted == nil {
		respondKind(w, common.KindValidation)
		return
	}

	token, id, facility := bearerToken(r), chi.URLParam(r, "id"), chi.URLParam(r, "facility")
	st, err := withRetry(r.Context(), h, func(ctx context.Context) (*models.ConsentStatus, error) {
		return h.gate.UpdateConsent(ctx, token, id, facility, *req.Granted)
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, st)
}

func (h *Handlers) ListConsents(w http.ResponseWriter, r *http.Request) {
	list, err := h.gate.ListConsents(r.Context(), bearerToken(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if list == nil {
		list = []models.ConsentStatus{}
	}
	respond(w, http.StatusOK, list)
}

type appendNoteRequest struct {
	Summary         string `json:"summary"`
	NextSteps       string `json:"next_steps"`
	ExpectedVersion *int   `json:"expected_version"`
}

func (h *Handlers) AppendTreatmentNote(w http.ResponseWriter, r *http.Request) {
	var req appendNoteRequest
	if err := decode(r, &req); err != nil {
		respondKind(w, common.KindValidation)
		return
	}

	token, id := bearerToken(r), chi.URLParam(r, "id")
	in := vault.NoteInput{Summary: req.Summary, NextSteps: req.NextSteps, ExpectedVersion: req.ExpectedVersion}
	note, err := withRetry(r.Context(), h, func(ctx context.Context) (*models.TreatmentNote, error) {
		return h.gate.AppendTreatmentNote(ctx, token, id, in)
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusCreated, note)
}

func queryInt(r *http.Request, name string) (int64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

func (h *Handlers) VerifyAuditChain(w http.ResponseWriter, r *http.Request) {
	from, err := queryInt(r, "from")
	if err != nil {
		respondKind(w, common.KindValidation)
		return
	}
	to, err := queryInt(r, "to")
	if err != nil {
		respondKind(w, common.KindValidation)
		return
	}

	res, err := h.gate.VerifyAuditChain(r.Context(), bearerToken(r), from, to)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"valid":      res.Valid,
		"invalid_at": res.InvalidAt,
		"checked":    res.Checked,
	})
}
