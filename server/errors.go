package server

import (
	"encoding/json"
	"net/http"

	"github.com/vitwit/databox/types"
)

// Error body kinds. Every non-2xx body is the same tagged shape so callers
// can switch on kind instead of sniffing fields.
const (
	kindBadRequest         = "bad-request"
	kindProtocolError      = "protocol-error"
	kindPaymentRejected    = "payment-rejected"
	kindNotFound           = "not-found"
	kindStorageUnavailable = "storage-unavailable"
	kindInternal           = "internal"
)

type errorBody struct {
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, kind, message string, details map[string]any) {
	writeJSON(w, status, errorBody{Kind: kind, Message: message, Details: details})
}

// writeFailure maps a module error to status and kind by its code.
func writeFailure(w http.ResponseWriter, err error) {
	switch types.CodeOf(err) {
	case types.ErrStorageUnavailable:
		writeError(w, http.StatusBadGateway, kindStorageUnavailable, err.Error(), nil)
	case types.ErrProtocol:
		writeError(w, http.StatusBadRequest, kindProtocolError, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, kindInternal, err.Error(), nil)
	}
}
