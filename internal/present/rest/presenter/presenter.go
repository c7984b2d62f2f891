package presenter

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

type errorResponse struct {
	Error string `json:"error"`
}

// OK wraps a successful response.
func OK(c echo.Context, payload any) error {
	return c.JSON(http.StatusOK, payload)
}

func Text(c echo.Context, body string) error {
	return c.String(http.StatusOK, body)
}

func BadRequestMessage(c echo.Context, msg string) error {
	slog.InfoContext(
		c.Request().Context(), "Bad request",
		slog.String("error", msg),
		slog.String("path", c.Path()),
		slog.String("module", "rest"),
	)
	return c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}

func Unavailable(c echo.Context, err error) error {
	slog.WarnContext(
		c.Request().Context(), "Service unavailable",
		slog.String("error", err.Error()),
		slog.String("path", c.Path()),
		slog.String("module", "rest"),
	)
	return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
}
