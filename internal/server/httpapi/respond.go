package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/patterm/internal/common"
)

var kindStatus = map[common.Kind]int{
	common.KindAuthentication:     http.StatusUnauthorized,
	common.KindAuthorization:      http.StatusForbidden,
	common.KindKeyNotFound:        http.StatusNotFound,
	common.KindNotFound:           http.StatusNotFound,
	common.KindVaultCorruption:    http.StatusInternalServerError,
	common.KindVaultBusy:          http.StatusServiceUnavailable,
	common.KindAlreadyExists:      http.StatusConflict,
	common.KindConflict:           http.StatusConflict,
	common.KindAuditAppendFailure: http.StatusInternalServerError,
	common.KindValidation:         http.StatusBadRequest,
	common.KindInternal:           http.StatusInternalServerError,
}

// ErrorResponse is the body of every failed request. Only the kind is
// exposed.
type ErrorResponse struct {
	Error common.Kind `json:"error"`
}

func respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondKind(w http.ResponseWriter, kind common.Kind) {
	status, ok := kindStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	if kind == common.KindVaultBusy {
		w.Header().Set("Retry-After", "1")
	}
	respond(w, status, ErrorResponse{Error: kind})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
