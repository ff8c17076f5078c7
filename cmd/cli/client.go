package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var errNotLoggedIn = errors.New("not logged in; run `portal login` first")

// apiClient talks to a running portal server and keeps the access token in
// a file between invocations
type apiClient struct {
	baseURL   string
	tokenPath string
	http      *http.Client
}

func newAPIClient(baseURL, tokenPath string) *apiClient {
	return &apiClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		tokenPath: tokenPath,
		http:      &http.Client{Timeout: 15 * time.Second},
	}
}

// apiError carries the detail of a non-2xx answer
type apiError struct {
	Status int
	Detail json.RawMessage
}

func (e *apiError) Error() string {
	var msg string
	if err := json.Unmarshal(e.Detail, &msg); err == nil {
		return fmt.Sprintf("%d: %s", e.Status, msg)
	}
	return fmt.Sprintf("%d: %s", e.Status, string(e.Detail))
}

func (c *apiClient) login(ctx context.Context, email, password string) error {
	form := url.Values{"username": {email}, "password": {password}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var result struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.do(req, &result); err != nil {
		return err
	}
	return c.saveToken(result.AccessToken)
}

func (c *apiClient) logout() error {
	err := os.Remove(c.tokenPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// get fetches an authenticated endpoint into out
func (c *apiClient) get(ctx context.Context, path string, out any) error {
	token, err := c.loadToken()
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return c.do(req, out)
}

func (c *apiClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var envelope struct {
			Detail json.RawMessage `json:"detail"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil || envelope.Detail == nil {
			envelope.Detail, _ = json.Marshal(http.StatusText(resp.StatusCode))
		}
		return &apiError{Status: resp.StatusCode, Detail: envelope.Detail}
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

func (c *apiClient) saveToken(token string) error {
	if err := os.MkdirAll(filepath.Dir(c.tokenPath), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	return os.WriteFile(c.tokenPath, []byte(token), 0o600)
}

func (c *apiClient) loadToken() (string, error) {
	data, err := os.ReadFile(c.tokenPath)
	if errors.Is(err, os.ErrNotExist) {
		return "", errNotLoggedIn
	}
	if err != nil {
		return "", err
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", errNotLoggedIn
	}
	return token, nil
}
