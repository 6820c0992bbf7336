package billingsync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mihaimyh/billingsync/pkg/billingsync/internal"
)

// Receiver accepts webhook bodies, dispatches them and builds the acknowledgement.
// It implements http.Handler; framework adapters call Receive directly.
type Receiver struct {
	dispatcher   *Dispatcher
	logger       Logger
	metrics      Metrics
	maxBodyBytes int64
}

// NewReceiver creates a Receiver backed by a Dispatcher with the default handler table
func NewReceiver(config Config) (*Receiver, error) {
	dispatcher, err := NewDispatcher(config)
	if err != nil {
		return nil, err
	}
	cfg := config.withDefaults()

	return &Receiver{
		dispatcher:   dispatcher,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		maxBodyBytes: cfg.MaxBodyBytes,
	}, nil
}

// Dispatcher returns the dispatcher so callers can register extra handlers.
func (r *Receiver) Dispatcher() *Dispatcher {
	return r.dispatcher
}

// MaxBodyBytes returns the inbound payload limit.
func (r *Receiver) MaxBodyBytes() int64 {
	return r.maxBodyBytes
}

// Receive decodes and dispatches one event body. Handler failures are logged
// and acknowledged; only errors for which IsFatal is true are returned.
func (r *Receiver) Receive(ctx context.Context, body []byte) (*Ack, error) {
	if int64(len(body)) > r.maxBodyBytes {
		err := fmt.Errorf("%w (max %d bytes)", ErrPayloadTooLarge, r.maxBodyBytes)
		r.metrics.RecordError(errorKind(err))
		return nil, err
	}

	event, err := DecodeEvent(body)
	if err != nil {
		r.metrics.RecordError(errorKind(err))
		r.logger.Warn("undecodable webhook body", Field{Key: "error", Value: err.Error()})
		return nil, err
	}

	r.logger.Debug("webhook event received",
		Field{Key: "event_id", Value: event.ID},
		Field{Key: "event", Value: string(body)})

	if _, err := r.dispatcher.Dispatch(ctx, event); err != nil && IsFatal(err) {
		return nil, err
	}
	return &Ack{Received: true}, nil
}

// ReadRequest reads the request body up to the payload limit. Errors wrap
// ErrPayloadTooLarge or ErrInvalidPayload so StatusFor maps them.
func (r *Receiver) ReadRequest(w http.ResponseWriter, req *http.Request) ([]byte, error) {
	body, err := internal.ReadBodyStrict(w, req, r.maxBodyBytes)
	if err == nil {
		return body, nil
	}
	if errors.Is(err, internal.ErrPayloadTooLarge) {
		err = fmt.Errorf("%w: %v", ErrPayloadTooLarge, err)
	} else {
		err = fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	r.metrics.RecordError(errorKind(err))
	return nil, err
}

// ServeHTTP implements http.Handler
func (r *Receiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	start := time.Now()
	internal.SetSecurityHeaders(w)

	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := r.ReadRequest(w, req)
	if err != nil {
		r.writeError(w, err)
		return
	}

	ack, err := r.Receive(req.Context(), body)
	if err != nil {
		r.writeError(w, err)
		return
	}

	if err := internal.WriteJSON(w, http.StatusOK, ack); err != nil {
		r.logger.Error("failed to write acknowledgement", Field{Key: "error", Value: err.Error()})
	}
	r.logger.Debug("webhook acknowledged", Field{Key: "duration_ms", Value: time.Since(start).Milliseconds()})
}

func (r *Receiver) writeError(w http.ResponseWriter, err error) {
	if writeErr := internal.WriteJSON(w, StatusFor(err), ErrorBody(err)); writeErr != nil {
		r.logger.Error("failed to write error response", Field{Key: "error", Value: writeErr.Error()})
	}
}

// ErrorBody is the JSON body returned alongside a non-200 status.
func ErrorBody(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}
