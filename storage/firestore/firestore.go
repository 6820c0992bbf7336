// Package firestore provides a Firestore implementation of the billingsync.Store interface.
// Customer records live in a top-level collection keyed by directory uid, with
// subscriptions and checkout sessions in subcollections.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mihaimyh/billingsync/pkg/billingsync"
)

const (
	subscriptionsCollection    = "subscriptions"
	checkoutSessionsCollection = "checkout_sessions"
)

// Storage implements billingsync.Store using Google Cloud Firestore
type Storage struct {
	client              *firestore.Client
	customersCollection string
}

// Config holds Firestore storage configuration
type Config struct {
	// CustomersCollection is the Firestore collection for customer records
	// Default: "customers"
	CustomersCollection string
}

// New creates a new Firestore storage adapter
func New(client *firestore.Client, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}

	if config.CustomersCollection == "" {
		config.CustomersCollection = "customers"
	}

	return &Storage{
		client:              client,
		customersCollection: config.CustomersCollection,
	}, nil
}

// GetCustomer implements billingsync.Store
func (s *Storage) GetCustomer(ctx context.Context, uid string) (*billingsync.CustomerRecord, error) {
	snap, err := s.customerDoc(uid).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, billingsync.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	if !snap.Exists() {
		return nil, billingsync.ErrCustomerNotFound
	}
	return customerFromSnapshot(snap), nil
}

// CreateCustomer implements billingsync.Store
func (s *Storage) CreateCustomer(ctx context.Context, record *billingsync.CustomerRecord) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("invalid customer record")
	}

	data := map[string]interface{}{
		"id":       record.ID,
		"stripeId": record.StripeID,
		"email":    record.Email,
		"metadata": stringMap(record.Metadata),
	}
	if record.Name != "" {
		data["name"] = record.Name
	}
	if record.Phone != "" {
		data["phone"] = record.Phone
	}

	if _, err := s.customerDoc(record.ID).Create(ctx, data); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return billingsync.ErrCustomerExists
		}
		return fmt.Errorf("failed to create customer: %w", err)
	}
	return nil
}

// UpdateCustomer implements billingsync.Store.
// Metadata keys are written individually so keys not named in the update survive.
func (s *Storage) UpdateCustomer(ctx context.Context, uid string, update *billingsync.CustomerUpdate) error {
	if update == nil {
		return nil
	}

	var updates []firestore.Update
	if update.StripeID != "" {
		updates = append(updates, firestore.Update{Path: "stripeId", Value: update.StripeID})
	}
	if update.Name != "" {
		updates = append(updates, firestore.Update{Path: "name", Value: update.Name})
	}
	if update.Phone != "" {
		updates = append(updates, firestore.Update{Path: "phone", Value: update.Phone})
	}
	for k, v := range update.Metadata {
		updates = append(updates, firestore.Update{FieldPath: firestore.FieldPath{"metadata", k}, Value: v})
	}
	if len(updates) == 0 {
		return nil
	}

	if _, err := s.customerDoc(uid).Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return billingsync.ErrCustomerNotFound
		}
		return fmt.Errorf("failed to update customer: %w", err)
	}
	return nil
}

// FindCustomerByStripeID implements billingsync.Store. Only the first match is returned.
func (s *Storage) FindCustomerByStripeID(ctx context.Context, stripeID string) (*billingsync.CustomerRecord, error) {
	if stripeID == "" {
		return nil, billingsync.ErrCustomerNotFound
	}

	iter := s.client.Collection(s.customersCollection).
		Where("stripeId", "==", stripeID).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return nil, billingsync.ErrCustomerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query customer by stripe id: %w", err)
	}
	return customerFromSnapshot(snap), nil
}

// CreateSubscription implements billingsync.Store
func (s *Storage) CreateSubscription(ctx context.Context, uid string, sub *billingsync.SubscriptionRecord) error {
	if sub == nil || sub.ID == "" {
		return fmt.Errorf("invalid subscription record")
	}

	data := make(map[string]interface{}, len(sub.Data)+4)
	for k, v := range sub.Data {
		data[k] = v
	}
	data["id"] = sub.ID
	data["customer"] = sub.CustomerID
	data["status"] = sub.Status
	data["metadata"] = stringMap(sub.Metadata)

	doc := s.customerDoc(uid).Collection(subscriptionsCollection).Doc(sub.ID)
	if _, err := doc.Create(ctx, data); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return billingsync.ErrSubscriptionExists
		}
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

// DeleteSubscription implements billingsync.Store
func (s *Storage) DeleteSubscription(ctx context.Context, uid, subscriptionID string) error {
	doc := s.customerDoc(uid).Collection(subscriptionsCollection).Doc(subscriptionID)
	if _, err := doc.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}

// AddCheckoutSession implements billingsync.Store
func (s *Storage) AddCheckoutSession(
	ctx context.Context, uid string, session *billingsync.CheckoutSessionRecord,
) (string, error) {
	if session == nil {
		return "", fmt.Errorf("invalid checkout session record")
	}

	data := map[string]interface{}{
		"sessionId":   session.SessionID,
		"mode":        session.Mode,
		"price":       session.Price,
		"currency":    session.Currency,
		"success_url": session.SuccessURL,
		"cancel_url":  session.CancelURL,
		"status":      string(session.Status),
		"createdAt":   session.CreatedAt,
	}

	ref, _, err := s.customerDoc(uid).Collection(checkoutSessionsCollection).Add(ctx, data)
	if err != nil {
		return "", fmt.Errorf("failed to add checkout session: %w", err)
	}
	return ref.ID, nil
}

// GetSubscription reads a subscription record. Used by tooling and tests.
func (s *Storage) GetSubscription(ctx context.Context, uid, subscriptionID string) (*billingsync.SubscriptionRecord, error) {
	snap, err := s.customerDoc(uid).Collection(subscriptionsCollection).Doc(subscriptionID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, billingsync.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	data := snap.Data()
	return &billingsync.SubscriptionRecord{
		ID:         getString(data, "id"),
		CustomerID: getString(data, "customer"),
		Status:     getString(data, "status"),
		Metadata:   getStringMap(data, "metadata"),
		Data:       data,
	}, nil
}

// ListCheckoutSessions returns the checkout session log for uid, oldest first.
func (s *Storage) ListCheckoutSessions(ctx context.Context, uid string) ([]billingsync.CheckoutSessionRecord, error) {
	docs, err := s.customerDoc(uid).Collection(checkoutSessionsCollection).
		OrderBy("createdAt", firestore.Asc).
		Documents(ctx).
		GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list checkout sessions: %w", err)
	}

	out := make([]billingsync.CheckoutSessionRecord, 0, len(docs))
	for _, snap := range docs {
		data := snap.Data()
		out = append(out, billingsync.CheckoutSessionRecord{
			ID:         snap.Ref.ID,
			SessionID:  getString(data, "sessionId"),
			Mode:       getString(data, "mode"),
			Price:      getInt64(data, "price"),
			Currency:   getString(data, "currency"),
			SuccessURL: getString(data, "success_url"),
			CancelURL:  getString(data, "cancel_url"),
			Status:     billingsync.Role(getString(data, "status")),
			CreatedAt:  getTime(data, "createdAt"),
		})
	}
	return out, nil
}

func (s *Storage) customerDoc(uid string) *firestore.DocumentRef {
	return s.client.Collection(s.customersCollection).Doc(uid)
}

func customerFromSnapshot(snap *firestore.DocumentSnapshot) *billingsync.CustomerRecord {
	data := snap.Data()
	return &billingsync.CustomerRecord{
		ID:       snap.Ref.ID,
		StripeID: getString(data, "stripeId"),
		Email:    getString(data, "email"),
		Name:     getString(data, "name"),
		Phone:    getString(data, "phone"),
		Metadata: getStringMap(data, "metadata"),
	}
}

// Helper functions for type conversion from Firestore data

func stringMap(m map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func getString(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func getInt64(data map[string]interface{}, key string) int64 {
	switch v := data[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(math.Round(v))
	default:
		return 0
	}
}

func getTime(data map[string]interface{}, key string) time.Time {
	if v, ok := data[key].(time.Time); ok {
		return v
	}
	return time.Time{}
}

func getStringMap(data map[string]interface{}, key string) map[string]string {
	raw, ok := data[key].(map[string]interface{})
	if !ok {
		return map[string]string{}
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
