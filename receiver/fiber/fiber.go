// Package fiber provides a Fiber handler for the billingsync webhook receiver
package fiber

import (
	"github.com/gofiber/fiber/v2"

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
	OnError func(c *fiber.Ctx, err error) error
}

// Handler creates a Fiber handler that feeds the request body to the receiver.
// Fiber's own BodyLimit applies first; Receive enforces the receiver's limit.
func Handler(cfg Config) fiber.Handler {
	if cfg.Receiver == nil {
		panic("billingsync/fiber: Config.Receiver is required")
	}
	if cfg.OnError == nil {
		cfg.OnError = defaultError
	}

	return func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderCacheControl, "no-store")

		// Body is only valid for the lifetime of the handler; Receive decodes synchronously.
		ack, err := cfg.Receiver.Receive(c.UserContext(), c.Body())
		if err != nil {
			return cfg.OnError(c, err)
		}

		return c.Status(fiber.StatusOK).JSON(ack)
	}
}

// Register mounts the handler as POST on each path, or on DefaultPaths
func Register(r fiber.Router, cfg Config, paths ...string) {
	if len(paths) == 0 {
		paths = DefaultPaths
	}
	h := Handler(cfg)
	for _, p := range paths {
		r.Post(p, h)
	}
}

func defaultError(c *fiber.Ctx, err error) error {
	return c.Status(billingsync.StatusFor(err)).JSON(billingsync.ErrorBody(err))
}
