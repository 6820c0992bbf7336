// Package gin provides a Gin handler for the billingsync webhook receiver
package gin

import (
	"net/http"

	gongin "github.com/gin-gonic/gin"

	"github.com/mihaimyh/billingsync/pkg/billingsync"
)

// DefaultPaths are the routes Register mounts the handler on when none are given
var DefaultPaths = []string{"/webhook", "/"}

// Config holds handler configuration
type Config struct {
	// Receiver processes the event body (required)
	Receiver *billingsync.Receiver

	// OnError is called when the event is rejected.
	// If nil, writes billingsync.StatusFor(err) with a JSON error body.
	OnError func(c *gongin.Context, err error)
}

// Handler creates a Gin handler that feeds the request body to the receiver
func Handler(cfg Config) gongin.HandlerFunc {
	if cfg.Receiver == nil {
		panic("billingsync/gin: Config.Receiver is required")
	}
	if cfg.OnError == nil {
		cfg.OnError = defaultError
	}

	return func(c *gongin.Context) {
		c.Header("Cache-Control", "no-store")

		body, err := cfg.Receiver.ReadRequest(c.Writer, c.Request)
		if err != nil {
			cfg.OnError(c, err)
			return
		}

		ack, err := cfg.Receiver.Receive(c.Request.Context(), body)
		if err != nil {
			cfg.OnError(c, err)
			return
		}

		c.JSON(http.StatusOK, ack)
	}
}

// Register mounts the handler as POST on each path, or on DefaultPaths.
// When r is an *gin.Engine, other methods on those paths answer 405 instead of 404.
func Register(r gongin.IRoutes, cfg Config, paths ...string) {
	if len(paths) == 0 {
		paths = DefaultPaths
	}
	if engine, ok := r.(*gongin.Engine); ok {
		engine.HandleMethodNotAllowed = true
	}
	h := Handler(cfg)
	for _, p := range paths {
		r.POST(p, h)
	}
}

func defaultError(c *gongin.Context, err error) {
	c.AbortWithStatusJSON(billingsync.StatusFor(err), billingsync.ErrorBody(err))
}
