package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/mihaimyh/billingsync/pkg/billingsync"
)

func TestStorage_CreateGetCustomer(t *testing.T) {
	storage := New()
	ctx := context.Background()

	// Test getting non-existent customer
	_, err := storage.GetCustomer(ctx, "U1")
	if !errors.Is(err, billingsync.ErrCustomerNotFound) {
		t.Errorf("Expected ErrCustomerNotFound, got %v", err)
	}

	rec := &billingsync.CustomerRecord{
		ID:       "U1",
		StripeID: "cus_1",
		Email:    "a@x.com",
		Metadata: map[string]string{"role": "basic"},
	}
	if err := storage.CreateCustomer(ctx, rec); err != nil {
		t.Fatalf("CreateCustomer failed: %v", err)
	}

	// Mutating the input must not leak into the store
	rec.Metadata["role"] = "premium"

	got, err := storage.GetCustomer(ctx, "U1")
	if err != nil {
		t.Fatalf("GetCustomer failed: %v", err)
	}
	if got.Email != "a@x.com" || got.StripeID != "cus_1" {
		t.Errorf("unexpected record: %+v", got)
	}
	if got.Metadata["role"] != "basic" {
		t.Errorf("role = %q, want basic", got.Metadata["role"])
	}

	if err := storage.CreateCustomer(ctx, rec); !errors.Is(err, billingsync.ErrCustomerExists) {
		t.Errorf("Expected ErrCustomerExists, got %v", err)
	}
}

func TestStorage_UpdateCustomer(t *testing.T) {
	storage := New()
	ctx := context.Background()

	err := storage.UpdateCustomer(ctx, "missing", &billingsync.CustomerUpdate{StripeID: "cus_x"})
	if !errors.Is(err, billingsync.ErrCustomerNotFound) {
		t.Errorf("Expected ErrCustomerNotFound, got %v", err)
	}

	_ = storage.CreateCustomer(ctx, &billingsync.CustomerRecord{
		ID:       "U1",
		Name:     "Ada",
		Metadata: map[string]string{"role": "basic", "plan": "monthly"},
	})

	err = storage.UpdateCustomer(ctx, "U1", &billingsync.CustomerUpdate{
		StripeID: "cus_1",
		Metadata: map[string]string{"role": "premium"},
	})
	if err != nil {
		t.Fatalf("UpdateCustomer failed: %v", err)
	}

	got, _ := storage.GetCustomer(ctx, "U1")
	if got.StripeID != "cus_1" {
		t.Errorf("StripeID = %q", got.StripeID)
	}
	if got.Name != "Ada" {
		t.Errorf("Name should be untouched, got %q", got.Name)
	}
	if got.Metadata["role"] != "premium" || got.Metadata["plan"] != "monthly" {
		t.Errorf("metadata not merged: %v", got.Metadata)
	}
}

func TestStorage_FindCustomerByStripeID_FirstMatch(t *testing.T) {
	storage := New()
	ctx := context.Background()

	_ = storage.CreateCustomer(ctx, &billingsync.CustomerRecord{ID: "U2", StripeID: "cus_dup"})
	_ = storage.CreateCustomer(ctx, &billingsync.CustomerRecord{ID: "U1", StripeID: "cus_dup"})

	got, err := storage.FindCustomerByStripeID(ctx, "cus_dup")
	if err != nil {
		t.Fatalf("FindCustomerByStripeID failed: %v", err)
	}
	if got.ID != "U2" {
		t.Errorf("expected first created record U2, got %s", got.ID)
	}

	if _, err := storage.FindCustomerByStripeID(ctx, "cus_none"); !errors.Is(err, billingsync.ErrCustomerNotFound) {
		t.Errorf("Expected ErrCustomerNotFound, got %v", err)
	}
}

func TestStorage_Subscriptions(t *testing.T) {
	storage := New()
	ctx := context.Background()

	sub := &billingsync.SubscriptionRecord{ID: "sub_1", CustomerID: "cus_1", Status: "active"}
	if err := storage.CreateSubscription(ctx, "U1", sub); err != nil {
		t.Fatalf("CreateSubscription failed: %v", err)
	}
	if err := storage.CreateSubscription(ctx, "U1", sub); !errors.Is(err, billingsync.ErrSubscriptionExists) {
		t.Errorf("Expected ErrSubscriptionExists, got %v", err)
	}

	if _, ok := storage.Subscription("U1", "sub_1"); !ok {
		t.Fatal("subscription not stored")
	}

	if err := storage.DeleteSubscription(ctx, "U1", "sub_1"); err != nil {
		t.Fatalf("DeleteSubscription failed: %v", err)
	}
	if _, ok := storage.Subscription("U1", "sub_1"); ok {
		t.Error("subscription still present after delete")
	}

	// Deleting again is not an error
	if err := storage.DeleteSubscription(ctx, "U1", "sub_1"); err != nil {
		t.Errorf("DeleteSubscription on missing record failed: %v", err)
	}
}

func TestStorage_SubscriptionIsolatedFromCaller(t *testing.T) {
	storage := New()
	ctx := context.Background()

	sub := &billingsync.SubscriptionRecord{
		ID:       "sub_1",
		Status:   "active",
		Metadata: map[string]string{"plan": "monthly"},
		Data: map[string]interface{}{
			"items": map[string]interface{}{"data": []interface{}{map[string]interface{}{"id": "si_1"}}},
		},
	}
	if err := storage.CreateSubscription(ctx, "U1", sub); err != nil {
		t.Fatalf("CreateSubscription failed: %v", err)
	}

	sub.Metadata["plan"] = "yearly"
	sub.Data["status"] = "canceled"
	sub.Data["items"].(map[string]interface{})["data"].([]interface{})[0].(map[string]interface{})["id"] = "si_2"

	got, _ := storage.Subscription("U1", "sub_1")
	if got.Metadata["plan"] != "monthly" {
		t.Errorf("metadata shared with caller: %v", got.Metadata)
	}
	if _, ok := got.Data["status"]; ok {
		t.Errorf("data shared with caller: %v", got.Data)
	}
	item := got.Data["items"].(map[string]interface{})["data"].([]interface{})[0].(map[string]interface{})
	if item["id"] != "si_1" {
		t.Errorf("nested data shared with caller: %v", item)
	}

	got.Metadata["plan"] = "weekly"
	again, _ := storage.Subscription("U1", "sub_1")
	if again.Metadata["plan"] != "monthly" {
		t.Errorf("read copy shares metadata with store: %v", again.Metadata)
	}
}

func TestStorage_AddCheckoutSession(t *testing.T) {
	storage := New()
	ctx := context.Background()

	id1, err := storage.AddCheckoutSession(ctx, "U1", &billingsync.CheckoutSessionRecord{Price: 500, Status: "premium"})
	if err != nil {
		t.Fatalf("AddCheckoutSession failed: %v", err)
	}
	id2, _ := storage.AddCheckoutSession(ctx, "U1", &billingsync.CheckoutSessionRecord{Price: 700, Status: "basic"})

	if id1 == "" || id1 == id2 {
		t.Errorf("expected distinct ids, got %q and %q", id1, id2)
	}

	sessions := storage.CheckoutSessions("U1")
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].Price != 500 || sessions[1].Price != 700 {
		t.Errorf("sessions out of order: %+v", sessions)
	}
}

func TestStorage_Clear(t *testing.T) {
	storage := New()
	ctx := context.Background()

	_ = storage.CreateCustomer(ctx, &billingsync.CustomerRecord{ID: "U1"})
	storage.Clear()

	if ids := storage.CustomerIDs(); len(ids) != 0 {
		t.Errorf("expected no customers after Clear, got %v", ids)
	}
}
