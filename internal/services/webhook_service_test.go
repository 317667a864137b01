package services

import (
	"context"
	"testing"
	"time"

	"umrah-backend/internal/apperrors"
	"umrah-backend/internal/models"
)

const testSecret = "whsec_0123456789abcdef"

func activeSub(store *fakeWebhookStore, t *testing.T, tenantID int64, events ...string) *models.WebhookSubscription {
	t.Helper()
	sub := &models.WebhookSubscription{
		TenantID: tenantID,
		URL:      "https://partner.example.com/hooks",
		Events:   events,
		Secret:   testSecret,
		IsActive: true,
	}
	if err := store.CreateSubscription(context.Background(), sub); err != nil {
		t.Fatalf("CreateSubscription failed: %v", err)
	}
	return sub
}

func TestRegisterSubscription_Validation(t *testing.T) {
	svc := NewWebhookService(&fakeWebhookStore{})
	ctx := context.Background()

	tests := []struct {
		name   string
		url    string
		events []string
		secret string
	}{
		{"relative url", "/hooks", []string{models.EventPaymentConfirmed}, testSecret},
		{"bad scheme", "ftp://example.com/hooks", []string{models.EventPaymentConfirmed}, testSecret},
		{"no events", "https://example.com/hooks", nil, testSecret},
		{"unknown event", "https://example.com/hooks", []string{"payment.exploded"}, testSecret},
		{"short secret", "https://example.com/hooks", []string{models.EventPaymentConfirmed}, "short"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RegisterSubscription(ctx, 1, tt.url, tt.events, tt.secret)
			if !apperrors.IsKind(err, apperrors.KindInvalidArgument) {
				t.Errorf("expected invalid-argument, got %v", err)
			}
		})
	}
}

func TestRegisterSubscription_Valid(t *testing.T) {
	svc := NewWebhookService(&fakeWebhookStore{})
	sub, err := svc.RegisterSubscription(context.Background(), 1,
		"https://partner.example.com/hooks",
		[]string{models.EventPaymentConfirmed, models.EventJamaahUpdated},
		testSecret)
	if err != nil {
		t.Fatalf("RegisterSubscription failed: %v", err)
	}
	if sub.ID == 0 {
		t.Error("expected an assigned id")
	}
	if !sub.IsActive {
		t.Error("new subscriptions start active")
	}
}

func TestFanOut_OneDeliveryPerListener(t *testing.T) {
	store := &fakeWebhookStore{}
	svc := NewWebhookService(store)
	activeSub(store, t, 1, models.EventPaymentConfirmed)
	activeSub(store, t, 1, models.EventPaymentConfirmed, models.EventJamaahUpdated)
	activeSub(store, t, 1, models.EventJamaahUpdated) // not listening
	activeSub(store, t, 2, models.EventPaymentConfirmed) // other tenant

	env := models.NewDomainEvent(models.EventPaymentConfirmed, 1, time.Now(), []byte(`{}`))
	if err := svc.FanOut(context.Background(), env); err != nil {
		t.Fatalf("FanOut failed: %v", err)
	}

	if len(store.deliveries) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(store.deliveries))
	}
	for _, d := range store.deliveries {
		if d.Status != models.DeliveryPending {
			t.Errorf("new deliveries start pending, got %s", d.Status)
		}
		if d.EventID != env.EventID {
			t.Error("delivery must carry the event id")
		}
	}
}

func TestFanOut_RedeliveryAddsNothing(t *testing.T) {
	store := &fakeWebhookStore{}
	svc := NewWebhookService(store)
	activeSub(store, t, 1, models.EventPaymentConfirmed)

	env := models.NewDomainEvent(models.EventPaymentConfirmed, 1, time.Now(), []byte(`{}`))
	if err := svc.FanOut(context.Background(), env); err != nil {
		t.Fatalf("first FanOut failed: %v", err)
	}
	if err := svc.FanOut(context.Background(), env); err != nil {
		t.Fatalf("second FanOut failed: %v", err)
	}
	if len(store.deliveries) != 1 {
		t.Errorf("fan-out must be idempotent per (subscription, event), got %d deliveries", len(store.deliveries))
	}
}

func TestFanOut_SkipsInactiveSubscriptions(t *testing.T) {
	store := &fakeWebhookStore{}
	svc := NewWebhookService(store)
	sub := activeSub(store, t, 1, models.EventPaymentConfirmed)
	sub.IsActive = false

	env := models.NewDomainEvent(models.EventPaymentConfirmed, 1, time.Now(), []byte(`{}`))
	if err := svc.FanOut(context.Background(), env); err != nil {
		t.Fatalf("FanOut failed: %v", err)
	}
	if len(store.deliveries) != 0 {
		t.Errorf("inactive subscriptions get no deliveries, got %d", len(store.deliveries))
	}
}

func TestListDeliveries_UnknownSubscription(t *testing.T) {
	svc := NewWebhookService(&fakeWebhookStore{})
	_, err := svc.ListDeliveries(context.Background(), 1, 404)
	if !apperrors.IsKind(err, apperrors.KindNotFound) {
		t.Errorf("expected not-found, got %v", err)
	}
}

func TestSignPayload_KnownVector(t *testing.T) {
	// Verified against: echo -n 'hello' | openssl dgst -sha256 -hmac 'key'
	got := SignPayload("key", []byte("hello"))
	want := "9307b3b915efb5171ff14d8cb55fbcc798c6c0ef1456d66ded1a6aa723a58b7b"
	if got != want {
		t.Errorf("SignPayload = %s, want %s", got, want)
	}
}

func TestSignPayload_SecretSensitivity(t *testing.T) {
	body := []byte(`{"event":"payment.confirmed"}`)
	if SignPayload("secret-a", body) == SignPayload("secret-b", body) {
		t.Error("different secrets must produce different signatures")
	}
	if SignPayload("secret-a", body) != SignPayload("secret-a", body) {
		t.Error("signing must be deterministic")
	}
}
