package rest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sort"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/totegamma/community-server/internal/present/rest/presenter"
	"github.com/totegamma/community-server/internal/present/socket"
)

const Banner = "Hello World! ~ SHRDLURN Community Server"

const healthCheckTimeout = 2 * time.Second

// HealthCheck reports whether a backing service is usable.
type HealthCheck func(ctx context.Context) error

type Handler struct {
	socket   *socket.Server
	gatherer prometheus.Gatherer
	checks   map[string]HealthCheck
	upgrader websocket.Upgrader
}

func NewHandler(
	server *socket.Server,
	gatherer prometheus.Gatherer,
	allowedOrigins []string,
	checks map[string]HealthCheck,
) *Handler {
	return &Handler{
		socket:   server,
		gatherer: gatherer,
		checks:   checks,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/", h.handleIndex)
	e.GET("/socket", h.handleSocket)
	e.GET("/healthz", h.handleHealthz)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
}

// an empty list accepts any origin
func checkOrigin(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(r *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}

func (h *Handler) handleIndex(c echo.Context) error {
	return presenter.Text(c, Banner)
}

func (h *Handler) handleSocket(c echo.Context) error {
	if !websocket.IsWebSocketUpgrade(c.Request()) {
		return presenter.BadRequestMessage(c, "websocket upgrade required")
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error(
			"Failed to upgrade WebSocket",
			slog.String("error", err.Error()),
			slog.String("module", "socket"),
		)
		// the upgrader has already written the response
		return nil
	}

	h.socket.Serve(c.Request().Context(), ws)
	return nil
}

func (h *Handler) handleHealthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthCheckTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := map[string]string{}
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			return presenter.Unavailable(c, fmt.Errorf("%s: %w", name, err))
		}
		status[name] = "ok"
	}
	return presenter.OK(c, echo.Map{"status": "ok", "checks": status})
}
