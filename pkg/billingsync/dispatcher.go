package billingsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stripe/stripe-go/v83"
)

// Event types handled by the default dispatch table.
const (
	EventCustomerCreated         = "customer.created"
	EventCustomerUpdated         = "customer.updated"
	EventCheckoutSessionComplete = "checkout.session.completed"
	EventSubscriptionCreated     = "customer.subscription.created"
	EventSubscriptionDeleted     = "customer.subscription.deleted"
)

// UnhandledEventLabel is the metric label for every event type without a handler.
// Event types come from the request body, so they never become labels themselves.
const UnhandledEventLabel = "unhandled"

// Deps carries the collaborators a handler may use.
type Deps struct {
	Directory             Directory
	Store                 Store
	Logger                Logger
	Metrics               Metrics
	RoleKey               string
	ProvisionMissingUsers bool
	Now                   func() time.Time
}

// HandlerFunc processes one event type. Handlers perform their external calls
// in sequence and return the first failure.
type HandlerFunc func(ctx context.Context, event *stripe.Event, deps *Deps) (*Result, error)

// Dispatcher routes events to handlers by event type.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	deps     *Deps
}

// DefaultHandlers returns the standard event type to handler table.
func DefaultHandlers() map[string]HandlerFunc {
	return map[string]HandlerFunc{
		EventCustomerCreated:         HandleCustomer,
		EventCustomerUpdated:         HandleCustomer,
		EventCheckoutSessionComplete: HandleCheckoutSessionCompleted,
		EventSubscriptionCreated:     HandleSubscriptionCreated,
		EventSubscriptionDeleted:     HandleSubscriptionDeleted,
	}
}

// NewDispatcher creates a Dispatcher with the default handler table
func NewDispatcher(config Config) (*Dispatcher, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg := config.withDefaults()

	return &Dispatcher{
		handlers: DefaultHandlers(),
		deps: &Deps{
			Directory:             cfg.Directory,
			Store:                 cfg.Store,
			Logger:                cfg.Logger,
			Metrics:               cfg.Metrics,
			RoleKey:               cfg.RoleKey,
			ProvisionMissingUsers: cfg.ProvisionMissingUsers,
			Now:                   cfg.Now,
		},
	}, nil
}

// Register installs or replaces the handler for eventType.
// A nil handler removes the entry.
func (d *Dispatcher) Register(eventType string, handler HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if handler == nil {
		delete(d.handlers, eventType)
		return
	}
	d.handlers[eventType] = handler
}

// Handles reports whether eventType has a handler.
func (d *Dispatcher) Handles(eventType string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[eventType]
	return ok
}

// Dispatch selects a handler by event.Type and runs it. Unknown types are
// logged and ignored. Handler errors are logged, recorded and returned.
func (d *Dispatcher) Dispatch(ctx context.Context, event *stripe.Event) (*Result, error) {
	if event == nil {
		return nil, fmt.Errorf("%w: nil event", ErrInvalidPayload)
	}
	eventType := string(event.Type)
	log := d.deps.Logger

	d.mu.RLock()
	handler, ok := d.handlers[eventType]
	d.mu.RUnlock()

	if !ok {
		log.Info("unhandled event type",
			Field{Key: "event_type", Value: eventType},
			Field{Key: "event_id", Value: event.ID})
		d.deps.Metrics.RecordEvent(UnhandledEventLabel, string(OutcomeIgnored))
		return &Result{Outcome: OutcomeIgnored, Reason: "unhandled event type"}, nil
	}

	start := time.Now()
	result, err := handler(ctx, event, d.deps)
	d.deps.Metrics.RecordProcessingDuration(eventType, time.Since(start))

	if err != nil {
		if result == nil {
			result = &Result{}
		}
		kind := errorKind(err)
		fields := []Field{
			{Key: "event_type", Value: eventType},
			{Key: "event_id", Value: event.ID},
			{Key: "uid", Value: result.UserID},
			{Key: "email", Value: result.Email},
			{Key: "kind", Value: kind},
			{Key: "error", Value: err.Error()},
		}
		if isLookupMiss(err) {
			log.Warn("event not applied", fields...)
		} else {
			log.Error("event handler failed", fields...)
		}
		d.deps.Metrics.RecordError(kind)
		d.deps.Metrics.RecordEvent(eventType, string(OutcomeFailed))
		result.Outcome = OutcomeFailed
		return result, err
	}

	if result == nil {
		result = &Result{Outcome: OutcomeApplied}
	}
	log.Info("event processed",
		Field{Key: "event_type", Value: eventType},
		Field{Key: "event_id", Value: event.ID},
		Field{Key: "outcome", Value: string(result.Outcome)},
		Field{Key: "uid", Value: result.UserID},
		Field{Key: "reason", Value: result.Reason})
	d.deps.Metrics.RecordEvent(eventType, string(result.Outcome))
	return result, nil
}

// DecodeEvent parses a webhook body into a stripe.Event.
func DecodeEvent(body []byte) (*stripe.Event, error) {
	var event stripe.Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return &event, nil
}

// decodeObject unmarshals event.data.object into v.
func decodeObject(event *stripe.Event, v interface{}) error {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return fmt.Errorf("%w: event %s has no data.object", ErrInvalidPayload, event.ID)
	}
	if err := json.Unmarshal(event.Data.Raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

func isLookupMiss(err error) bool {
	return errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrCustomerNotFound)
}
