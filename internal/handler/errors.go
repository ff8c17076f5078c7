package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aryan0dhankhar/portal/internal/httpx"
	"github.com/aryan0dhankhar/portal/internal/service"
)

const (
	msgEmailTaken         = "Email already registered"
	msgInvalidCredentials = "Incorrect email or password"
	msgInvalidRequest     = "Invalid request body"
	msgWrongPassword      = "Incorrect password"
	msgFeatureDisabled    = "Not Found"
	maxRequestBodyBytes   = 1 << 20
)

// writeServiceError maps service errors onto status codes. Anything it
// does not recognise is logged and answered with a bare 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		httpx.Detail(w, http.StatusBadRequest, verr.Fields)
	case errors.Is(err, service.ErrEmailTaken):
		httpx.Detail(w, http.StatusBadRequest, msgEmailTaken)
	case errors.Is(err, service.ErrInvalidCredentials):
		httpx.Detail(w, http.StatusBadRequest, msgInvalidCredentials)
	case errors.Is(err, service.ErrUnauthorized):
		httpx.Unauthorized(w)
	case errors.Is(err, service.ErrUnavailable):
		httpx.Detail(w, http.StatusServiceUnavailable, httpx.MsgUnavailable)
	case errors.Is(err, context.Canceled):
		// client went away
		logger.Debug("request canceled", slog.String("op", op))
	default:
		logger.Error("request failed",
			slog.String("op", op),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		httpx.Internal(w)
	}
}
