// Package echo provides an Echo handler for the billingsync webhook receiver
package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mihaimyh/billingsync/pkg/billingsync"
)

// DefaultPaths are the routes Register mounts the handler on when none are given
var DefaultPaths = []string{"/webhook", "/"}

// Router is satisfied by *echo.Echo and *echo.Group
type Router interface {
	POST(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
}

// Config holds handler configuration
type Config struct {
	// Receiver processes the event body (required)
	Receiver *billingsync.Receiver

	// OnError is called when the event is rejected.
	// If nil, writes billingsync.StatusFor(err) with a JSON error body.
	OnError func(c echo.Context, err error) error
}

// Handler creates an Echo handler that feeds the request body to the receiver
func Handler(cfg Config) echo.HandlerFunc {
	if cfg.Receiver == nil {
		panic("billingsync/echo: Config.Receiver is required")
	}
	if cfg.OnError == nil {
		cfg.OnError = defaultError
	}

	return func(c echo.Context) error {
		c.Response().Header().Set("Cache-Control", "no-store")

		body, err := cfg.Receiver.ReadRequest(c.Response(), c.Request())
		if err != nil {
			return cfg.OnError(c, err)
		}

		ack, err := cfg.Receiver.Receive(c.Request().Context(), body)
		if err != nil {
			return cfg.OnError(c, err)
		}

		return c.JSON(http.StatusOK, ack)
	}
}

// Register mounts the handler as POST on each path, or on DefaultPaths
func Register(r Router, cfg Config, paths ...string) {
	if len(paths) == 0 {
		paths = DefaultPaths
	}
	h := Handler(cfg)
	for _, p := range paths {
		r.POST(p, h)
	}
}

func defaultError(c echo.Context, err error) error {
	return c.JSON(billingsync.StatusFor(err), billingsync.ErrorBody(err))
}
