package billingsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v83"
)

const defaultCheckoutMode = "payment"

// HandleCustomer processes customer.created and customer.updated events.
// A record with role=basic is created for the matching directory user unless one exists.
func HandleCustomer(ctx context.Context, event *stripe.Event, deps *Deps) (*Result, error) {
	var customer stripe.Customer
	if err := decodeObject(event, &customer); err != nil {
		return nil, err
	}

	if customer.Email == "" {
		return nil, fmt.Errorf("%w: email on customer %q", ErrMissingField, customer.ID)
	}

	user, err := deps.Directory.GetUserByEmail(ctx, customer.Email)
	if errors.Is(err, ErrUserNotFound) && deps.ProvisionMissingUsers {
		user, err = deps.Directory.CreateUser(ctx, &UserToCreate{
			Email:       customer.Email,
			DisplayName: customer.Name,
			PhoneNumber: customer.Phone,
		})
		if err == nil {
			deps.Logger.Info("provisioned directory user",
				Field{Key: "uid", Value: user.UID},
				Field{Key: "email", Value: customer.Email})
		}
	}
	if err != nil {
		return failed("", customer.Email, fmt.Errorf("failed to look up user %s: %w", customer.Email, err))
	}

	_, err = deps.Store.GetCustomer(ctx, user.UID)
	if err == nil {
		return &Result{Outcome: OutcomeSkipped, UserID: user.UID, Reason: "customer record exists"}, nil
	}
	if !errors.Is(err, ErrCustomerNotFound) {
		return failed(user.UID, customer.Email, fmt.Errorf("failed to get customer %s: %w", user.UID, err))
	}

	record := &CustomerRecord{
		ID:       user.UID,
		StripeID: customer.ID,
		Email:    customer.Email,
		Name:     customer.Name,
		Phone:    customer.Phone,
		Metadata: withRole(customer.Metadata, deps.RoleKey, RoleBasic),
	}
	if err := deps.Store.CreateCustomer(ctx, record); err != nil {
		if errors.Is(err, ErrCustomerExists) {
			return &Result{Outcome: OutcomeSkipped, UserID: user.UID, Reason: "customer record exists"}, nil
		}
		return failed(user.UID, customer.Email, fmt.Errorf("failed to create customer %s: %w", user.UID, err))
	}

	return &Result{Outcome: OutcomeApplied, UserID: user.UID, Role: RoleBasic}, nil
}

// HandleCheckoutSessionCompleted processes checkout.session.completed events.
// Paid sessions grant premium, unpaid sessions basic. The role is written to the
// user's claims and customer record, and the session is appended to the log.
func HandleCheckoutSessionCompleted(ctx context.Context, event *stripe.Event, deps *Deps) (*Result, error) {
	var session stripe.CheckoutSession
	if err := decodeObject(event, &session); err != nil {
		return nil, err
	}

	role, ok := RoleForPaymentStatus(session.PaymentStatus)
	if !ok {
		return &Result{
			Outcome: OutcomeIgnored,
			Reason:  fmt.Sprintf("payment status %q", session.PaymentStatus),
		}, nil
	}

	details := session.CustomerDetails
	if details == nil || details.Email == "" {
		return nil, fmt.Errorf("checkout session %s has no customer email: %w", session.ID, ErrUserNotFound)
	}

	user, err := deps.Directory.GetUserByEmail(ctx, details.Email)
	if err != nil {
		return failed("", details.Email, fmt.Errorf("failed to look up user %s: %w", details.Email, err))
	}

	if err := setRoleClaim(ctx, deps, user, role); err != nil {
		return failed(user.UID, details.Email, err)
	}

	if details.Name != "" && details.Name != user.DisplayName {
		if _, err := deps.Directory.UpdateUser(ctx, user.UID, &UserUpdate{DisplayName: details.Name}); err != nil {
			return failed(user.UID, details.Email, fmt.Errorf("failed to update user %s: %w", user.UID, err))
		}
	}

	stripeID := ""
	if session.Customer != nil {
		stripeID = session.Customer.ID
	}

	existing, err := deps.Store.GetCustomer(ctx, user.UID)
	switch {
	case errors.Is(err, ErrCustomerNotFound):
		email := user.Email
		if email == "" {
			email = details.Email
		}
		record := &CustomerRecord{
			ID:       user.UID,
			StripeID: stripeID,
			Email:    email,
			Name:     details.Name,
			Phone:    details.Phone,
			Metadata: withRole(session.Metadata, deps.RoleKey, role),
		}
		if err := deps.Store.CreateCustomer(ctx, record); err != nil {
			return failed(user.UID, details.Email, fmt.Errorf("failed to create customer %s: %w", user.UID, err))
		}
	case err != nil:
		return failed(user.UID, details.Email, fmt.Errorf("failed to get customer %s: %w", user.UID, err))
	default:
		update := &CustomerUpdate{Metadata: withRole(nil, deps.RoleKey, role)}
		if existing.StripeID == "" {
			update.StripeID = stripeID
		}
		if err := deps.Store.UpdateCustomer(ctx, user.UID, update); err != nil {
			return failed(user.UID, details.Email, fmt.Errorf("failed to update customer %s: %w", user.UID, err))
		}
	}

	mode := string(session.Mode)
	if mode == "" {
		mode = defaultCheckoutMode
	}
	_, err = deps.Store.AddCheckoutSession(ctx, user.UID, &CheckoutSessionRecord{
		SessionID:  session.ID,
		Mode:       mode,
		Price:      session.AmountTotal,
		Currency:   string(session.Currency),
		SuccessURL: session.SuccessURL,
		CancelURL:  session.CancelURL,
		Status:     role,
		CreatedAt:  deps.Now().UTC(),
	})
	if err != nil {
		return failed(user.UID, details.Email, fmt.Errorf("failed to add checkout session for %s: %w", user.UID, err))
	}

	return &Result{Outcome: OutcomeApplied, UserID: user.UID, Role: role}, nil
}

// HandleSubscriptionCreated stores the subscription under the customer whose
// stripe id matches the subscription's customer.
func HandleSubscriptionCreated(ctx context.Context, event *stripe.Event, deps *Deps) (*Result, error) {
	sub, record, skip, err := matchSubscription(ctx, event, deps)
	if err != nil || skip != nil {
		return skip, err
	}

	var data map[string]interface{}
	if event.Data != nil {
		data = event.Data.Object
	}
	customerID := ""
	if sub.Customer != nil {
		customerID = sub.Customer.ID
	}
	err = deps.Store.CreateSubscription(ctx, record.ID, &SubscriptionRecord{
		ID:         sub.ID,
		CustomerID: customerID,
		Status:     string(sub.Status),
		Metadata:   sub.Metadata,
		Data:       data,
	})
	if errors.Is(err, ErrSubscriptionExists) {
		return &Result{Outcome: OutcomeSkipped, UserID: record.ID, Reason: "subscription record exists"}, nil
	}
	if err != nil {
		return failed(record.ID, record.Email,
			fmt.Errorf("failed to create subscription %s for %s: %w", sub.ID, record.ID, err))
	}

	return &Result{Outcome: OutcomeApplied, UserID: record.ID}, nil
}

// HandleSubscriptionDeleted reverts the matching customer to basic and removes
// the subscription record.
func HandleSubscriptionDeleted(ctx context.Context, event *stripe.Event, deps *Deps) (*Result, error) {
	sub, record, skip, err := matchSubscription(ctx, event, deps)
	if err != nil || skip != nil {
		return skip, err
	}

	update := &CustomerUpdate{Metadata: withRole(sub.Metadata, deps.RoleKey, RoleBasic)}
	if err := deps.Store.UpdateCustomer(ctx, record.ID, update); err != nil {
		return failed(record.ID, record.Email, fmt.Errorf("failed to update customer %s: %w", record.ID, err))
	}
	if err := deps.Store.DeleteSubscription(ctx, record.ID, sub.ID); err != nil {
		return failed(record.ID, record.Email,
			fmt.Errorf("failed to delete subscription %s for %s: %w", sub.ID, record.ID, err))
	}

	// Keep the claim in step with the record; a miss here leaves the record change in place.
	if record.Email != "" {
		user, err := deps.Directory.GetUserByEmail(ctx, record.Email)
		if err != nil {
			return failed(record.ID, record.Email, fmt.Errorf("failed to look up user %s: %w", record.Email, err))
		}
		if err := setRoleClaim(ctx, deps, user, RoleBasic); err != nil {
			return failed(record.ID, record.Email, err)
		}
	}

	return &Result{Outcome: OutcomeApplied, UserID: record.ID, Role: RoleBasic}, nil
}

// matchSubscription decodes the subscription and finds its customer record.
// A non-nil skip result means the event should not be applied.
func matchSubscription(
	ctx context.Context, event *stripe.Event, deps *Deps,
) (*stripe.Subscription, *CustomerRecord, *Result, error) {
	var sub stripe.Subscription
	if err := decodeObject(event, &sub); err != nil {
		return nil, nil, nil, err
	}

	if sub.Status == stripe.SubscriptionStatusIncomplete {
		return nil, nil, &Result{Outcome: OutcomeSkipped, Reason: "subscription incomplete"}, nil
	}
	if sub.Customer == nil || sub.Customer.ID == "" {
		return nil, nil, &Result{Outcome: OutcomeSkipped, Reason: "subscription has no customer"}, nil
	}

	record, err := deps.Store.FindCustomerByStripeID(ctx, sub.Customer.ID)
	if errors.Is(err, ErrCustomerNotFound) {
		return nil, nil, &Result{
			Outcome: OutcomeSkipped,
			Reason:  fmt.Sprintf("no customer record for %s", sub.Customer.ID),
		}, nil
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to find customer %s: %w", sub.Customer.ID, err)
	}
	return &sub, record, nil, nil
}

func failed(uid, email string, err error) (*Result, error) {
	return &Result{UserID: uid, Email: email}, err
}

// setRoleClaim merges the role into the user's existing custom claims.
func setRoleClaim(ctx context.Context, deps *Deps, user *User, role Role) error {
	claims := make(map[string]interface{}, len(user.CustomClaims)+1)
	for k, v := range user.CustomClaims {
		claims[k] = v
	}
	claims[deps.RoleKey] = string(role)

	if err := deps.Directory.SetCustomClaims(ctx, user.UID, claims); err != nil {
		return fmt.Errorf("failed to set claims for %s: %w", user.UID, err)
	}
	if prev, _ := user.CustomClaims[deps.RoleKey].(string); prev != string(role) {
		deps.Metrics.RecordRoleChange(string(role))
	}
	return nil
}
