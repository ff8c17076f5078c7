// Package httpx writes JSON responses in the API's error envelope.
package httpx

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body of every non-2xx answer
type ErrorResponse struct {
	Detail any `json:"detail"`
}

// Messages shared by every endpoint
const (
	MsgUnauthorized = "Could not validate credentials"
	MsgInternal     = "Internal server error"
	MsgUnavailable  = "Service temporarily unavailable"
)

func JSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail":"` + MsgInternal + `"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func Detail(w http.ResponseWriter, status int, detail any) {
	JSON(w, status, ErrorResponse{Detail: detail})
}

// Unauthorized writes the single 401 answer used for every auth failure
func Unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	Detail(w, http.StatusUnauthorized, MsgUnauthorized)
}

func Internal(w http.ResponseWriter) {
	Detail(w, http.StatusInternalServerError, MsgInternal)
}
