// Package memory provides an in-memory implementation of the billingsync.Store interface.
// This implementation is primarily intended for testing and development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/mihaimyh/billingsync/pkg/billingsync"
)

// Storage implements billingsync.Store using in-memory maps
type Storage struct {
	mu               sync.RWMutex
	customers        map[string]*billingsync.CustomerRecord
	order            []string // customer ids in creation order, for stable stripe id lookups
	subscriptions    map[string]map[string]*billingsync.SubscriptionRecord
	checkoutSessions map[string][]*billingsync.CheckoutSessionRecord
}

// New creates a new in-memory storage adapter
func New() *Storage {
	return &Storage{
		customers:        make(map[string]*billingsync.CustomerRecord),
		subscriptions:    make(map[string]map[string]*billingsync.SubscriptionRecord),
		checkoutSessions: make(map[string][]*billingsync.CheckoutSessionRecord),
	}
}

// GetCustomer implements billingsync.Store
func (s *Storage) GetCustomer(_ context.Context, uid string) (*billingsync.CustomerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.customers[uid]
	if !ok {
		return nil, billingsync.ErrCustomerNotFound
	}
	return copyCustomer(rec), nil
}

// CreateCustomer implements billingsync.Store
func (s *Storage) CreateCustomer(_ context.Context, record *billingsync.CustomerRecord) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("invalid customer record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[record.ID]; ok {
		return billingsync.ErrCustomerExists
	}
	s.customers[record.ID] = copyCustomer(record)
	s.order = append(s.order, record.ID)
	return nil
}

// UpdateCustomer implements billingsync.Store
func (s *Storage) UpdateCustomer(_ context.Context, uid string, update *billingsync.CustomerUpdate) error {
	if update == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.customers[uid]
	if !ok {
		return billingsync.ErrCustomerNotFound
	}
	if update.StripeID != "" {
		rec.StripeID = update.StripeID
	}
	if update.Name != "" {
		rec.Name = update.Name
	}
	if update.Phone != "" {
		rec.Phone = update.Phone
	}
	if len(update.Metadata) > 0 && rec.Metadata == nil {
		rec.Metadata = make(map[string]string, len(update.Metadata))
	}
	for k, v := range update.Metadata {
		rec.Metadata[k] = v
	}
	return nil
}

// FindCustomerByStripeID implements billingsync.Store
func (s *Storage) FindCustomerByStripeID(_ context.Context, stripeID string) (*billingsync.CustomerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.order {
		if rec := s.customers[id]; rec != nil && rec.StripeID == stripeID {
			return copyCustomer(rec), nil
		}
	}
	return nil, billingsync.ErrCustomerNotFound
}

// CreateSubscription implements billingsync.Store
func (s *Storage) CreateSubscription(_ context.Context, uid string, sub *billingsync.SubscriptionRecord) error {
	if sub == nil || sub.ID == "" {
		return fmt.Errorf("invalid subscription record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	subs, ok := s.subscriptions[uid]
	if !ok {
		subs = make(map[string]*billingsync.SubscriptionRecord)
		s.subscriptions[uid] = subs
	}
	if _, exists := subs[sub.ID]; exists {
		return billingsync.ErrSubscriptionExists
	}
	subs[sub.ID] = copySubscription(sub)
	return nil
}

// DeleteSubscription implements billingsync.Store
func (s *Storage) DeleteSubscription(_ context.Context, uid, subscriptionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.subscriptions[uid], subscriptionID)
	return nil
}

// AddCheckoutSession implements billingsync.Store
func (s *Storage) AddCheckoutSession(
	_ context.Context, uid string, session *billingsync.CheckoutSessionRecord,
) (string, error) {
	if session == nil {
		return "", fmt.Errorf("invalid checkout session record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sessionCopy := *session
	sessionCopy.ID = uuid.NewString()
	s.checkoutSessions[uid] = append(s.checkoutSessions[uid], &sessionCopy)
	return sessionCopy.ID, nil
}

// Subscription returns a stored subscription (useful for testing)
func (s *Storage) Subscription(uid, subscriptionID string) (*billingsync.SubscriptionRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subscriptions[uid][subscriptionID]
	if !ok {
		return nil, false
	}
	return copySubscription(sub), true
}

// CheckoutSessions returns the checkout session log of a customer in append order
func (s *Storage) CheckoutSessions(uid string) []billingsync.CheckoutSessionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]billingsync.CheckoutSessionRecord, 0, len(s.checkoutSessions[uid]))
	for _, cs := range s.checkoutSessions[uid] {
		out = append(out, *cs)
	}
	return out
}

// CustomerIDs returns all customer ids, sorted
func (s *Storage) CustomerIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.customers))
	for id := range s.customers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clear removes all data (useful for testing)
func (s *Storage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.customers = make(map[string]*billingsync.CustomerRecord)
	s.order = nil
	s.subscriptions = make(map[string]map[string]*billingsync.SubscriptionRecord)
	s.checkoutSessions = make(map[string][]*billingsync.CheckoutSessionRecord)
}

func copyCustomer(rec *billingsync.CustomerRecord) *billingsync.CustomerRecord {
	out := *rec
	if rec.Metadata != nil {
		out.Metadata = make(map[string]string, len(rec.Metadata))
		for k, v := range rec.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

func copySubscription(sub *billingsync.SubscriptionRecord) *billingsync.SubscriptionRecord {
	out := *sub
	if sub.Metadata != nil {
		out.Metadata = make(map[string]string, len(sub.Metadata))
		for k, v := range sub.Metadata {
			out.Metadata[k] = v
		}
	}
	if sub.Data != nil {
		out.Data, _ = copyValue(sub.Data).(map[string]interface{})
	}
	return &out
}

// copyValue deep-copies decoded JSON values.
func copyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, e := range t {
			m[k] = copyValue(e)
		}
		return m
	case []interface{}:
		l := make([]interface{}, len(t))
		for i, e := range t {
			l[i] = copyValue(e)
		}
		return l
	default:
		return v
	}
}
