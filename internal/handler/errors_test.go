package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aryan0dhankhar/portal/internal/service"
)

func TestWriteServiceError(t *testing.T) {
	cases := []struct {
		err  error
		code int
		body string
	}{
		{service.ErrEmailTaken, http.StatusBadRequest, `{"detail":"Email already registered"}`},
		{service.ErrInvalidCredentials, http.StatusBadRequest, `{"detail":"Incorrect email or password"}`},
		{fmt.Errorf("kpis: %w", service.ErrUnavailable), http.StatusServiceUnavailable, `{"detail":"Service temporarily unavailable"}`},
		{&service.ValidationError{Fields: map[string]string{"email": "email"}}, http.StatusBadRequest, `{"detail":{"email":"email"}}`},
		{errors.New("pq: password authentication failed for user portal"), http.StatusInternalServerError, `{"detail":"Internal server error"}`},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeServiceError(rec, httptest.NewRequest(http.MethodGet, "/x", nil), slog.Default(), "test", tc.err)
		assert.Equal(t, tc.code, rec.Code, tc.err.Error())
		assert.JSONEq(t, tc.body, rec.Body.String())
	}

	rec := httptest.NewRecorder()
	writeServiceError(rec, httptest.NewRequest(http.MethodGet, "/x", nil), slog.Default(), "test", service.ErrUnauthorized)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
}
