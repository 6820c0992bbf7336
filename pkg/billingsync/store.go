package billingsync

import "context"

// Store is the record store holding customer documents and their
// subscriptions and checkout_sessions sub-collections.
type Store interface {
	// GetCustomer returns ErrCustomerNotFound when no record exists for uid.
	GetCustomer(ctx context.Context, uid string) (*CustomerRecord, error)

	// CreateCustomer returns ErrCustomerExists when a record already exists.
	CreateCustomer(ctx context.Context, record *CustomerRecord) error

	// UpdateCustomer merges update into the existing record.
	// Returns ErrCustomerNotFound when there is nothing to update.
	UpdateCustomer(ctx context.Context, uid string, update *CustomerUpdate) error

	// FindCustomerByStripeID returns the first record whose StripeID equals stripeID.
	FindCustomerByStripeID(ctx context.Context, stripeID string) (*CustomerRecord, error)

	// CreateSubscription returns ErrSubscriptionExists when the id is taken.
	CreateSubscription(ctx context.Context, uid string, sub *SubscriptionRecord) error

	// DeleteSubscription succeeds when the subscription does not exist.
	DeleteSubscription(ctx context.Context, uid, subscriptionID string) error

	// AddCheckoutSession appends a checkout session and returns its store-assigned id.
	AddCheckoutSession(ctx context.Context, uid string, session *CheckoutSessionRecord) (string, error)
}
