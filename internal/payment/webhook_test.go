package payment

import (
	"errors"
	"testing"
	"time"
)

func TestConstructEvent_ValidSignature(t *testing.T) {
	secret := []byte("whsec_test")
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"id":"cs_1","payment_intent":"pi_1","amount_total":7290,"customer_details":{"email":"user@example.com"},"metadata":{"courseId":"abc"}}}}`)

	header := BuildSignatureHeader(time.Now(), payload, secret)

	event, err := ConstructEvent(payload, header, secret)
	if err != nil {
		t.Fatalf("ConstructEvent error: %v", err)
	}

	if event.ID != "evt_1" || event.Type != EventCheckoutCompleted {
		t.Fatalf("envelope = %+v", event)
	}
	obj := event.Data.Object
	if obj.ID != "cs_1" || obj.PaymentIntentID != "pi_1" || obj.AmountTotal != 7290 {
		t.Fatalf("session object = %+v", obj)
	}
	if obj.CustomerDetails.Email != "user@example.com" {
		t.Fatalf("email = %q", obj.CustomerDetails.Email)
	}
	if obj.Metadata["courseId"] != "abc" {
		t.Fatalf("metadata = %v", obj.Metadata)
	}
}

func TestConstructEvent_InvalidSignature(t *testing.T) {
	secret := []byte("whsec_test")
	payload := []byte(`{"id":"evt_1"}`)

	header := BuildSignatureHeader(time.Now(), payload, []byte("other-secret"))

	_, err := ConstructEvent(payload, header, secret)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestConstructEvent_TamperedPayload(t *testing.T) {
	secret := []byte("whsec_test")
	payload := []byte(`{"id":"evt_1","amount":100}`)

	header := BuildSignatureHeader(time.Now(), payload, secret)

	tampered := []byte(`{"id":"evt_1","amount":999}`)
	_, err := ConstructEvent(tampered, header, secret)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifySignature_ExpiredTimestamp(t *testing.T) {
	secret := []byte("whsec_test")
	payload := []byte(`{}`)

	header := BuildSignatureHeader(time.Now().Add(-10*time.Minute), payload, secret)

	err := verifySignature(payload, header, secret, time.Now())
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for stale timestamp, got %v", err)
	}
}

func TestVerifySignature_MalformedHeader(t *testing.T) {
	secret := []byte("whsec_test")
	payload := []byte(`{}`)

	for _, header := range []string{"", "t=,v1=", "v1=deadbeef", "t=123"} {
		if err := verifySignature(payload, header, secret, time.Now()); !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("header %q: expected ErrInvalidSignature, got %v", header, err)
		}
	}
}
