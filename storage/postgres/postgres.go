// Package postgres provides a PostgreSQL implementation of the billingsync.Store interface.
// Metadata and raw provider objects are kept in JSONB columns.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mihaimyh/billingsync/pkg/billingsync"
)

// Schema creates the tables used by Storage. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS customers (
	id          TEXT PRIMARY KEY,
	stripe_id   TEXT NOT NULL DEFAULT '',
	email       TEXT NOT NULL DEFAULT '',
	name        TEXT NOT NULL DEFAULT '',
	phone       TEXT NOT NULL DEFAULT '',
	metadata    JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS customers_stripe_id_idx ON customers (stripe_id);

CREATE TABLE IF NOT EXISTS customer_subscriptions (
	customer_id     TEXT NOT NULL,
	id              TEXT NOT NULL,
	stripe_customer TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT '',
	metadata        JSONB NOT NULL DEFAULT '{}'::jsonb,
	data            JSONB NOT NULL DEFAULT '{}'::jsonb,
	PRIMARY KEY (customer_id, id)
);

CREATE TABLE IF NOT EXISTS customer_checkout_sessions (
	id          TEXT PRIMARY KEY,
	customer_id TEXT NOT NULL,
	session_id  TEXT NOT NULL DEFAULT '',
	mode        TEXT NOT NULL DEFAULT '',
	price       BIGINT NOT NULL DEFAULT 0,
	currency    TEXT NOT NULL DEFAULT '',
	success_url TEXT NOT NULL DEFAULT '',
	cancel_url  TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS customer_checkout_sessions_customer_idx
	ON customer_checkout_sessions (customer_id, created_at);
`

// Storage implements billingsync.Store using PostgreSQL
type Storage struct {
	pool   *pgxpool.Pool
	config Config
}

// Config holds PostgreSQL storage configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// EnsureSchema runs Schema on startup
	EnsureSchema bool
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
		EnsureSchema:    true,
	}
}

// New creates a new PostgreSQL storage adapter
func New(ctx context.Context, config Config) (*Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Storage{pool: pool, config: config}

	if config.EnsureSchema {
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}

	return s, nil
}

// EnsureSchema creates the storage tables if they do not exist
func (s *Storage) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// Ping verifies the database is reachable
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the PostgreSQL connection pool
func (s *Storage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// GetCustomer implements billingsync.Store
func (s *Storage) GetCustomer(ctx context.Context, uid string) (*billingsync.CustomerRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, stripe_id, email, name, phone, metadata
			FROM customers WHERE id = $1`, uid)

	rec, err := scanCustomer(row)
	if err == pgx.ErrNoRows {
		return nil, billingsync.ErrCustomerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return rec, nil
}

// CreateCustomer implements billingsync.Store
func (s *Storage) CreateCustomer(ctx context.Context, record *billingsync.CustomerRecord) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("invalid customer record")
	}

	metadata, err := marshalJSON(record.Metadata)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO customers (id, stripe_id, email, name, phone, metadata)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING`,
		record.ID, record.StripeID, record.Email, record.Name, record.Phone, metadata)
	if err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return billingsync.ErrCustomerExists
	}
	return nil
}

// UpdateCustomer implements billingsync.Store. Metadata is merged with the jsonb || operator.
func (s *Storage) UpdateCustomer(ctx context.Context, uid string, update *billingsync.CustomerUpdate) error {
	if update == nil {
		return nil
	}

	metadata, err := marshalJSON(update.Metadata)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE customers SET
			stripe_id  = COALESCE(NULLIF($2, ''), stripe_id),
			name       = COALESCE(NULLIF($3, ''), name),
			phone      = COALESCE(NULLIF($4, ''), phone),
			metadata   = metadata || $5::jsonb,
			updated_at = now()
			WHERE id = $1`,
		uid, update.StripeID, update.Name, update.Phone, metadata)
	if err != nil {
		return fmt.Errorf("failed to update customer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return billingsync.ErrCustomerNotFound
	}
	return nil
}

// FindCustomerByStripeID implements billingsync.Store. The oldest match wins.
func (s *Storage) FindCustomerByStripeID(ctx context.Context, stripeID string) (*billingsync.CustomerRecord, error) {
	if stripeID == "" {
		return nil, billingsync.ErrCustomerNotFound
	}

	row := s.pool.QueryRow(ctx,
		`SELECT id, stripe_id, email, name, phone, metadata
			FROM customers WHERE stripe_id = $1
			ORDER BY created_at LIMIT 1`, stripeID)

	rec, err := scanCustomer(row)
	if err == pgx.ErrNoRows {
		return nil, billingsync.ErrCustomerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query customer by stripe id: %w", err)
	}
	return rec, nil
}

// CreateSubscription implements billingsync.Store
func (s *Storage) CreateSubscription(ctx context.Context, uid string, sub *billingsync.SubscriptionRecord) error {
	if sub == nil || sub.ID == "" {
		return fmt.Errorf("invalid subscription record")
	}

	metadata, err := marshalJSON(sub.Metadata)
	if err != nil {
		return err
	}
	data, err := marshalJSON(sub.Data)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO customer_subscriptions (customer_id, id, stripe_customer, status, metadata, data)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (customer_id, id) DO NOTHING`,
		uid, sub.ID, sub.CustomerID, sub.Status, metadata, data)
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return billingsync.ErrSubscriptionExists
	}
	return nil
}

// DeleteSubscription implements billingsync.Store
func (s *Storage) DeleteSubscription(ctx context.Context, uid, subscriptionID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM customer_subscriptions WHERE customer_id = $1 AND id = $2`,
		uid, subscriptionID)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}

// GetSubscription reads a subscription record
func (s *Storage) GetSubscription(ctx context.Context, uid, subscriptionID string) (*billingsync.SubscriptionRecord, error) {
	var sub billingsync.SubscriptionRecord
	var metadata, data []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, stripe_customer, status, metadata, data
			FROM customer_subscriptions WHERE customer_id = $1 AND id = $2`,
		uid, subscriptionID).Scan(&sub.ID, &sub.CustomerID, &sub.Status, &metadata, &data)
	if err == pgx.ErrNoRows {
		return nil, billingsync.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	if err := json.Unmarshal(metadata, &sub.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode subscription metadata: %w", err)
	}
	if err := json.Unmarshal(data, &sub.Data); err != nil {
		return nil, fmt.Errorf("failed to decode subscription data: %w", err)
	}
	return &sub, nil
}

// AddCheckoutSession implements billingsync.Store
func (s *Storage) AddCheckoutSession(
	ctx context.Context, uid string, session *billingsync.CheckoutSessionRecord,
) (string, error) {
	if session == nil {
		return "", fmt.Errorf("invalid checkout session record")
	}

	id := uuid.NewString()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO customer_checkout_sessions
			(id, customer_id, session_id, mode, price, currency, success_url, cancel_url, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		id, uid, session.SessionID, session.Mode, session.Price, session.Currency,
		session.SuccessURL, session.CancelURL, string(session.Status), session.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("failed to add checkout session: %w", err)
	}
	return id, nil
}

// ListCheckoutSessions returns the checkout session log for uid, oldest first
func (s *Storage) ListCheckoutSessions(ctx context.Context, uid string) ([]billingsync.CheckoutSessionRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, mode, price, currency, success_url, cancel_url, status, created_at
			FROM customer_checkout_sessions WHERE customer_id = $1
			ORDER BY created_at`, uid)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkout sessions: %w", err)
	}
	defer rows.Close()

	var out []billingsync.CheckoutSessionRecord
	for rows.Next() {
		var rec billingsync.CheckoutSessionRecord
		var status string
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Mode, &rec.Price, &rec.Currency,
			&rec.SuccessURL, &rec.CancelURL, &status, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan checkout session: %w", err)
		}
		rec.Status = billingsync.Role(status)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanCustomer(row pgx.Row) (*billingsync.CustomerRecord, error) {
	var rec billingsync.CustomerRecord
	var metadata []byte

	if err := row.Scan(&rec.ID, &rec.StripeID, &rec.Email, &rec.Name, &rec.Phone, &metadata); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode customer metadata: %w", err)
	}
	return &rec, nil
}

func marshalJSON(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode json: %w", err)
	}
	if string(b) == "null" {
		return []byte("{}"), nil
	}
	return b, nil
}
