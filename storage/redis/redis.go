// Package redis provides a Redis implementation of the billingsync.Store interface.
// Customer records are JSON strings, subscriptions a hash per customer and
// checkout sessions a list per customer. A secondary key maps stripe ids to uids.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mihaimyh/billingsync/pkg/billingsync"
)

// Storage implements billingsync.Store using Redis
type Storage struct {
	client  redis.UniversalClient
	config  Config
	scripts map[string]*redis.Script
}

// Config holds Redis storage configuration
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "billingsync:")
	KeyPrefix string
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "billingsync:",
	}
}

// customerDoc is the stored JSON form of a customer record
type customerDoc struct {
	ID       string            `json:"id"`
	StripeID string            `json:"stripeId"`
	Email    string            `json:"email"`
	Name     string            `json:"name,omitempty"`
	Phone    string            `json:"phone,omitempty"`
	Metadata map[string]string `json:"metadata"`
}

type subscriptionDoc struct {
	ID         string                 `json:"id"`
	CustomerID string                 `json:"customer"`
	Status     string                 `json:"status"`
	Metadata   map[string]string      `json:"metadata"`
	Data       map[string]interface{} `json:"data"`
}

type checkoutSessionDoc struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"sessionId"`
	Mode       string    `json:"mode"`
	Price      int64     `json:"price"`
	Currency   string    `json:"currency"`
	SuccessURL string    `json:"success_url"`
	CancelURL  string    `json:"cancel_url"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
}

// New creates a new Redis storage adapter
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring
func New(client redis.UniversalClient, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	if config.KeyPrefix == "" {
		config.KeyPrefix = "billingsync:"
	}

	s := &Storage{
		client:  client,
		config:  config,
		scripts: make(map[string]*redis.Script),
	}
	s.loadScripts()

	return s, nil
}

// loadScripts loads and compiles Lua scripts for atomic operations
func (s *Storage) loadScripts() {
	// Create a customer document once, together with its stripe index entry.
	// KEYS[1] customer key, KEYS[2] stripe index key
	// ARGV[1] JSON document, ARGV[2] uid, ARGV[3] "1" when the stripe id is set
	// Returns 0 when the customer already exists.
	s.scripts["create_customer"] = redis.NewScript(`
		if redis.call('SETNX', KEYS[1], ARGV[1]) == 0 then
			return 0
		end
		if ARGV[3] == '1' then
			redis.call('SETNX', KEYS[2], ARGV[2])
		end
		return 1
	`)

	// Merge an update into a stored customer document.
	// KEYS[1] customer key, KEYS[2] stripe index key (may be unused)
	// ARGV[1] JSON update, ARGV[2] uid
	// Returns 0 when the customer does not exist.
	s.scripts["update_customer"] = redis.NewScript(`
		local raw = redis.call('GET', KEYS[1])
		if not raw then
			return 0
		end

		local rec = cjson.decode(raw)
		local upd = cjson.decode(ARGV[1])

		if upd.stripeId and upd.stripeId ~= '' then
			rec.stripeId = upd.stripeId
			redis.call('SETNX', KEYS[2], ARGV[2])
		end
		if upd.name and upd.name ~= '' then
			rec.name = upd.name
		end
		if upd.phone and upd.phone ~= '' then
			rec.phone = upd.phone
		end

		if type(rec.metadata) ~= 'table' then
			rec.metadata = {}
		end
		if type(upd.metadata) == 'table' then
			for k, v in pairs(upd.metadata) do
				rec.metadata[k] = v
			end
		end

		redis.call('SET', KEYS[1], cjson.encode(rec))
		return 1
	`)
}

// Ping verifies the server is reachable
func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// GetCustomer implements billingsync.Store
func (s *Storage) GetCustomer(ctx context.Context, uid string) (*billingsync.CustomerRecord, error) {
	raw, err := s.client.Get(ctx, s.customerKey(uid)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, billingsync.ErrCustomerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}

	var doc customerDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode customer: %w", err)
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]string{}
	}

	return &billingsync.CustomerRecord{
		ID:       uid,
		StripeID: doc.StripeID,
		Email:    doc.Email,
		Name:     doc.Name,
		Phone:    doc.Phone,
		Metadata: doc.Metadata,
	}, nil
}

// CreateCustomer implements billingsync.Store
func (s *Storage) CreateCustomer(ctx context.Context, record *billingsync.CustomerRecord) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("invalid customer record")
	}

	metadata := record.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	data, err := json.Marshal(customerDoc{
		ID:       record.ID,
		StripeID: record.StripeID,
		Email:    record.Email,
		Name:     record.Name,
		Phone:    record.Phone,
		Metadata: metadata,
	})
	if err != nil {
		return fmt.Errorf("failed to encode customer: %w", err)
	}

	indexed := "0"
	if record.StripeID != "" {
		indexed = "1"
	}
	keys := []string{s.customerKey(record.ID), s.stripeKey(record.StripeID)}
	created, err := s.scripts["create_customer"].Run(ctx, s.client, keys, string(data), record.ID, indexed).Int()
	if err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}
	if created == 0 {
		return billingsync.ErrCustomerExists
	}
	return nil
}

// UpdateCustomer implements billingsync.Store
func (s *Storage) UpdateCustomer(ctx context.Context, uid string, update *billingsync.CustomerUpdate) error {
	if update == nil {
		return nil
	}

	payload, err := json.Marshal(map[string]interface{}{
		"stripeId": update.StripeID,
		"name":     update.Name,
		"phone":    update.Phone,
		"metadata": update.Metadata,
	})
	if err != nil {
		return fmt.Errorf("failed to encode update: %w", err)
	}

	keys := []string{s.customerKey(uid), s.stripeKey(update.StripeID)}
	updated, err := s.scripts["update_customer"].Run(ctx, s.client, keys, string(payload), uid).Int()
	if err != nil {
		return fmt.Errorf("failed to update customer: %w", err)
	}
	if updated == 0 {
		return billingsync.ErrCustomerNotFound
	}
	return nil
}

// FindCustomerByStripeID implements billingsync.Store. The first customer indexed under the id wins.
func (s *Storage) FindCustomerByStripeID(ctx context.Context, stripeID string) (*billingsync.CustomerRecord, error) {
	if stripeID == "" {
		return nil, billingsync.ErrCustomerNotFound
	}

	uid, err := s.client.Get(ctx, s.stripeKey(stripeID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, billingsync.ErrCustomerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query customer by stripe id: %w", err)
	}
	return s.GetCustomer(ctx, uid)
}

// CreateSubscription implements billingsync.Store
func (s *Storage) CreateSubscription(ctx context.Context, uid string, sub *billingsync.SubscriptionRecord) error {
	if sub == nil || sub.ID == "" {
		return fmt.Errorf("invalid subscription record")
	}

	data, err := json.Marshal(subscriptionDoc{
		ID:         sub.ID,
		CustomerID: sub.CustomerID,
		Status:     sub.Status,
		Metadata:   sub.Metadata,
		Data:       sub.Data,
	})
	if err != nil {
		return fmt.Errorf("failed to encode subscription: %w", err)
	}

	created, err := s.client.HSetNX(ctx, s.subscriptionsKey(uid), sub.ID, data).Result()
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	if !created {
		return billingsync.ErrSubscriptionExists
	}
	return nil
}

// DeleteSubscription implements billingsync.Store
func (s *Storage) DeleteSubscription(ctx context.Context, uid, subscriptionID string) error {
	if err := s.client.HDel(ctx, s.subscriptionsKey(uid), subscriptionID).Err(); err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}

// GetSubscription reads a subscription record
func (s *Storage) GetSubscription(ctx context.Context, uid, subscriptionID string) (*billingsync.SubscriptionRecord, error) {
	raw, err := s.client.HGet(ctx, s.subscriptionsKey(uid), subscriptionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, billingsync.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	var doc subscriptionDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode subscription: %w", err)
	}
	return &billingsync.SubscriptionRecord{
		ID:         doc.ID,
		CustomerID: doc.CustomerID,
		Status:     doc.Status,
		Metadata:   doc.Metadata,
		Data:       doc.Data,
	}, nil
}

// AddCheckoutSession implements billingsync.Store
func (s *Storage) AddCheckoutSession(
	ctx context.Context, uid string, session *billingsync.CheckoutSessionRecord,
) (string, error) {
	if session == nil {
		return "", fmt.Errorf("invalid checkout session record")
	}

	id := uuid.NewString()
	data, err := json.Marshal(checkoutSessionDoc{
		ID:         id,
		SessionID:  session.SessionID,
		Mode:       session.Mode,
		Price:      session.Price,
		Currency:   session.Currency,
		SuccessURL: session.SuccessURL,
		CancelURL:  session.CancelURL,
		Status:     string(session.Status),
		CreatedAt:  session.CreatedAt,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode checkout session: %w", err)
	}

	if err := s.client.RPush(ctx, s.checkoutSessionsKey(uid), data).Err(); err != nil {
		return "", fmt.Errorf("failed to add checkout session: %w", err)
	}
	return id, nil
}

// ListCheckoutSessions returns the checkout session log for uid, oldest first
func (s *Storage) ListCheckoutSessions(ctx context.Context, uid string) ([]billingsync.CheckoutSessionRecord, error) {
	items, err := s.client.LRange(ctx, s.checkoutSessionsKey(uid), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list checkout sessions: %w", err)
	}

	out := make([]billingsync.CheckoutSessionRecord, 0, len(items))
	for _, item := range items {
		var doc checkoutSessionDoc
		if err := json.Unmarshal([]byte(item), &doc); err != nil {
			return nil, fmt.Errorf("failed to decode checkout session: %w", err)
		}
		out = append(out, billingsync.CheckoutSessionRecord{
			ID:         doc.ID,
			SessionID:  doc.SessionID,
			Mode:       doc.Mode,
			Price:      doc.Price,
			Currency:   doc.Currency,
			SuccessURL: doc.SuccessURL,
			CancelURL:  doc.CancelURL,
			Status:     billingsync.Role(doc.Status),
			CreatedAt:  doc.CreatedAt,
		})
	}
	return out, nil
}

// Key generation helpers

func (s *Storage) customerKey(uid string) string {
	return fmt.Sprintf("%scustomer:%s", s.config.KeyPrefix, uid)
}

func (s *Storage) stripeKey(stripeID string) string {
	return fmt.Sprintf("%sstripe:%s", s.config.KeyPrefix, stripeID)
}

func (s *Storage) subscriptionsKey(uid string) string {
	return fmt.Sprintf("%scustomer:%s:subscriptions", s.config.KeyPrefix, uid)
}

func (s *Storage) checkoutSessionsKey(uid string) string {
	return fmt.Sprintf("%scustomer:%s:checkout_sessions", s.config.KeyPrefix, uid)
}
