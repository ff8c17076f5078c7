package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aryan0dhankhar/portal/internal/domain"
	"github.com/aryan0dhankhar/portal/internal/featureflags"
	"github.com/aryan0dhankhar/portal/internal/httpx"
	"github.com/aryan0dhankhar/portal/internal/observability/metrics"
	"github.com/aryan0dhankhar/portal/internal/security/middleware"
	"github.com/aryan0dhankhar/portal/internal/service"
)

const (
	streamWriteWait  = 5 * time.Second
	streamPingPeriod = 15 * time.Second
	streamPongWait   = 2 * streamPingPeriod
)

// StreamHandler pushes dashboard snapshots over a websocket
type StreamHandler struct {
	dashboard      *service.DashboardService
	flags          featureflags.Flags
	allowedOrigins []string
	interval       time.Duration
	logger         *slog.Logger
}

// NewStreamHandler creates a new live dashboard handler
func NewStreamHandler(
	dashboard *service.DashboardService,
	flags featureflags.Flags,
	allowedOrigins []string,
	interval time.Duration,
	logger *slog.Logger,
) *StreamHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &StreamHandler{
		dashboard:      dashboard,
		flags:          flags,
		allowedOrigins: allowedOrigins,
		interval:       interval,
		logger:         logger,
	}
}

func (h *StreamHandler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				// non-browser clients
				return true
			}
			if middleware.OriginAllowed(h.allowedOrigins, origin) {
				return true
			}
			h.logger.Warn("websocket origin rejected", slog.String("origin", origin))
			return false
		},
	}
}

// Serve handles GET /ws/dashboard
func (h *StreamHandler) Serve(w http.ResponseWriter, r *http.Request, p *domain.Principal) {
	if !h.flags.Enabled(featureflags.DashboardStream) {
		httpx.Detail(w, http.StatusNotFound, msgFeatureDisabled)
		return
	}

	upgrader := h.upgrader()
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer ws.Close()

	metrics.StreamConnected()
	defer metrics.StreamDisconnected()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The reader only exists to observe pongs and the close frame
	go func() {
		defer cancel()
		ws.SetReadLimit(512)
		_ = ws.SetReadDeadline(time.Now().Add(streamPongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := h.stream(ctx, ws, p); err != nil {
		h.logger.Debug("dashboard stream ended",
			slog.String("email", p.User.Email),
			slog.String("reason", err.Error()),
		)
	}
}

func (h *StreamHandler) stream(ctx context.Context, ws *websocket.Conn, p *domain.Principal) error {
	if err := h.push(ctx, ws, p); err != nil {
		return err
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(streamWriteWait))
			return ctx.Err()
		case <-ping.C:
			if err := ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(streamWriteWait)); err != nil {
				return err
			}
		case <-ticker.C:
			if err := h.push(ctx, ws, p); err != nil {
				return err
			}
		}
	}
}

// push sends one snapshot. A failing read path is reported to the client
// and the stream keeps going.
func (h *StreamHandler) push(ctx context.Context, ws *websocket.Conn, p *domain.Principal) error {
	snap, err := h.dashboard.Snapshot(ctx, p, time.Now())
	_ = ws.SetWriteDeadline(time.Now().Add(streamWriteWait))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		h.logger.Warn("snapshot failed", slog.String("error", err.Error()))
		return ws.WriteJSON(httpx.ErrorResponse{Detail: httpx.MsgUnavailable})
	}
	return ws.WriteJSON(snap)
}
