package billingsync

import (
	"time"

	"github.com/stripe/stripe-go/v83"
)

// Role is the entitlement tier mirrored into directory claims and customer metadata.
type Role string

const (
	RoleBasic   Role = "basic"
	RolePremium Role = "premium"
)

// DefaultRoleKey is the custom-claim and metadata key holding the role.
const DefaultRoleKey = "role"

// RoleForPaymentStatus maps a checkout payment status to a role.
// The second return value is false for statuses that carry no role decision.
func RoleForPaymentStatus(status stripe.CheckoutSessionPaymentStatus) (Role, bool) {
	switch status {
	case stripe.CheckoutSessionPaymentStatusPaid:
		return RolePremium, true
	case stripe.CheckoutSessionPaymentStatusUnpaid:
		return RoleBasic, true
	default:
		return "", false
	}
}

// User is a directory user record.
type User struct {
	UID          string
	Email        string
	DisplayName  string
	PhoneNumber  string
	CustomClaims map[string]interface{}
}

// UserToCreate holds the fields for a new directory user.
type UserToCreate struct {
	Email       string
	DisplayName string
	PhoneNumber string
}

// UserUpdate holds directory fields to change. Empty fields are left untouched.
type UserUpdate struct {
	DisplayName string
	PhoneNumber string
}

// CustomerRecord is the per-user document kept in the record store, keyed by directory uid.
type CustomerRecord struct {
	ID       string
	StripeID string
	Email    string
	Name     string
	Phone    string
	Metadata map[string]string
}

// Role returns the role stored under key, defaulting to basic.
func (c *CustomerRecord) Role(key string) Role {
	if c == nil || c.Metadata == nil {
		return RoleBasic
	}
	if r := Role(c.Metadata[key]); r != "" {
		return r
	}
	return RoleBasic
}

// CustomerUpdate describes an in-place change to a CustomerRecord.
// Metadata keys are merged into the existing metadata; empty strings leave fields untouched.
type CustomerUpdate struct {
	StripeID string
	Name     string
	Phone    string
	Metadata map[string]string
}

// SubscriptionRecord is stored under a customer, keyed by the provider's subscription id.
type SubscriptionRecord struct {
	ID         string
	CustomerID string
	Status     string
	Metadata   map[string]string

	// Data is the full provider object as delivered in the event
	Data map[string]interface{}
}

// CheckoutSessionRecord is an append-only log entry of a payment attempt.
type CheckoutSessionRecord struct {
	// ID is assigned by the store
	ID         string
	SessionID  string
	Mode       string
	Price      int64
	Currency   string
	SuccessURL string
	CancelURL  string
	Status     Role
	CreatedAt  time.Time
}

// Ack is the acknowledgement body returned to the event sender.
type Ack struct {
	Received bool `json:"received"`
}

// Outcome describes what a handler did with an event.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeSkipped Outcome = "skipped"
	OutcomeIgnored Outcome = "ignored"
	OutcomeFailed  Outcome = "failed"
)

// Result is returned by event handlers. Handlers that fail after resolving
// the user return a partial Result so the failure can be attributed.
type Result struct {
	Outcome Outcome
	UserID  string
	Email   string
	Role    Role
	Reason  string
}

func withRole(metadata map[string]string, key string, role Role) map[string]string {
	out := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		out[k] = v
	}
	out[key] = string(role)
	return out
}
