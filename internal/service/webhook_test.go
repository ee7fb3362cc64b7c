package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/mmeshcher/courseshop-system/internal/payment"
)

func completedEvent(eventID string, obj payment.SessionObject) *payment.Event {
	e := &payment.Event{
		ID:   eventID,
		Type: payment.EventCheckoutCompleted,
	}
	e.Data.Object = obj
	return e
}

func TestProcessPaymentEvent_IgnoresOtherTypes(t *testing.T) {
	repo := &stubRepo{eventFresh: true}
	svc := NewService(repo, nil, nil, stubTokens{}, nil, "http://app")

	err := svc.ProcessPaymentEvent(context.Background(), &payment.Event{ID: "evt_1", Type: "charge.refunded"})
	if err != nil {
		t.Fatalf("ProcessPaymentEvent error: %v", err)
	}
	if len(repo.adjustments) != 0 || len(repo.enrollments) != 0 {
		t.Fatalf("foreign event type must not trigger side effects")
	}
}

func TestProcessPaymentEvent_DuplicateIsNoOp(t *testing.T) {
	userID := uuid.New()
	repo := &stubRepo{eventFresh: false}
	svc := NewService(repo, nil, nil, stubTokens{}, nil, "http://app")

	err := svc.ProcessPaymentEvent(context.Background(), completedEvent("evt_1", payment.SessionObject{
		ID:                "cs_1",
		ClientReferenceID: userID.String(),
		Metadata:          map[string]string{metaCourseID: uuid.NewString()},
	}))
	if err != nil {
		t.Fatalf("ProcessPaymentEvent error: %v", err)
	}
	if len(repo.adjustments) != 0 || len(repo.enrollments) != 0 || len(repo.completed) != 0 {
		t.Fatalf("duplicate event must not trigger side effects")
	}
}

func TestProcessPaymentEvent_RegisteredUser(t *testing.T) {
	userID := uuid.New()
	courseID := uuid.New()
	couponID := uuid.New()
	repo := &stubRepo{eventFresh: true, firstPurchaseMarked: true}
	svc := NewService(repo, nil, &stubMailer{}, stubTokens{}, nil, "http://app")

	err := svc.ProcessPaymentEvent(context.Background(), completedEvent("evt_1", payment.SessionObject{
		ID:                "cs_1",
		PaymentIntentID:   "pi_1",
		AmountTotal:       7290,
		ClientReferenceID: userID.String(),
		Metadata: map[string]string{
			metaCourseID:              courseID.String(),
			metaOriginalPriceCents:    "10000",
			metaFirstPurchaseApplied:  "true",
			metaFirstPurchaseDiscount: "1000",
			metaPointsUsed:            "1000",
			metaCouponID:              couponID.String(),
		},
	}))
	if err != nil {
		t.Fatalf("ProcessPaymentEvent error: %v", err)
	}

	// Списание использованных баллов и начисление за покупку.
	if len(repo.adjustments) != 2 || repo.adjustments[0] != -1000 || repo.adjustments[1] != 1000 {
		t.Fatalf("adjustments = %v, want [-1000 1000]", repo.adjustments)
	}
	if len(repo.recordedCoupons) != 1 || repo.recordedCoupons[0] != couponID {
		t.Fatalf("coupon usage was not recorded: %v", repo.recordedCoupons)
	}
	if len(repo.enrollments) != 1 {
		t.Fatalf("enrollment was not upserted")
	}
	e := repo.enrollments[0]
	if e.UserID != userID || e.CourseID != courseID {
		t.Fatalf("enrollment identity = %v/%v, want %v/%v", e.UserID, e.CourseID, userID, courseID)
	}
	if e.AmountPaidCents != 7290 || e.OriginalPriceCents != 10000 || e.DiscountAppliedCents != 2710 {
		t.Fatalf("enrollment amounts = %+v", e)
	}
	if len(repo.completed) != 1 || repo.completed[0] != "cs_1" {
		t.Fatalf("checkout session was not completed: %v", repo.completed)
	}
}

func TestProcessPaymentEvent_GuestCreatesAccount(t *testing.T) {
	newUserID := uuid.New()
	courseID := uuid.New()
	mailer := &stubMailer{}
	repo := &stubRepo{eventFresh: true, createdUserID: newUserID}
	svc := NewService(repo, nil, mailer, stubTokens{}, nil, "http://app")

	obj := payment.SessionObject{
		ID:          "cs_2",
		AmountTotal: 5000,
		Metadata: map[string]string{
			metaCourseID:  courseID.String(),
			metaFirstName: "Guest",
			metaLastName:  "Buyer",
		},
	}
	obj.CustomerDetails.Email = "Guest@Example.com"

	err := svc.ProcessPaymentEvent(context.Background(), completedEvent("evt_2", obj))
	if err != nil {
		t.Fatalf("ProcessPaymentEvent error: %v", err)
	}

	if len(repo.createdUsers) != 1 || repo.createdUsers[0] != "guest@example.com" {
		t.Fatalf("guest account was not created: %v", repo.createdUsers)
	}
	if len(mailer.sentTo) != 1 || mailer.sentTo[0] != "guest@example.com" {
		t.Fatalf("password setup email was not sent: %v", mailer.sentTo)
	}
	if len(repo.enrollments) != 1 || repo.enrollments[0].UserID != newUserID {
		t.Fatalf("enrollment must belong to the created account")
	}
}

// Сбой до первого побочного эффекта должен снимать отметку дедупликации,
// иначе повторная доставка события навсегда останется no-op.
func TestProcessPaymentEvent_UnmarksOnResolveFailure(t *testing.T) {
	repo := &stubRepo{
		eventFresh:     true,
		userByEmailErr: errors.New("user storage down"),
	}
	svc := NewService(repo, nil, &stubMailer{}, stubTokens{}, nil, "http://app")

	obj := payment.SessionObject{
		ID:          "cs_5",
		AmountTotal: 5000,
		Metadata:    map[string]string{metaCourseID: uuid.NewString()},
	}
	obj.CustomerDetails.Email = "guest3@example.com"

	err := svc.ProcessPaymentEvent(context.Background(), completedEvent("evt_5", obj))
	if err == nil {
		t.Fatalf("expected error when purchaser cannot be resolved")
	}
	if len(repo.unmarked) != 1 || repo.unmarked[0] != "evt_5" {
		t.Fatalf("dedup mark must be released, unmarked = %v", repo.unmarked)
	}
	if len(repo.adjustments) != 0 || len(repo.enrollments) != 0 {
		t.Fatalf("no side effects must run on resolve failure")
	}
}

func TestProcessPaymentEvent_SideEffectFailureTolerated(t *testing.T) {
	userID := uuid.New()
	repo := &stubRepo{
		eventFresh: true,
		adjustErr:  errors.New("points storage down"),
	}
	svc := NewService(repo, nil, &stubMailer{}, stubTokens{}, nil, "http://app")

	err := svc.ProcessPaymentEvent(context.Background(), completedEvent("evt_3", payment.SessionObject{
		ID:                "cs_3",
		AmountTotal:       5000,
		ClientReferenceID: userID.String(),
		Metadata: map[string]string{
			metaCourseID:   uuid.NewString(),
			metaPointsUsed: "1000",
		},
	}))
	if err != nil {
		t.Fatalf("side effect failure must not fail processing: %v", err)
	}
	if len(repo.enrollments) != 1 || len(repo.completed) != 1 {
		t.Fatalf("remaining side effects must still run")
	}
}

func TestProcessPaymentEvent_MailFailureTolerated(t *testing.T) {
	repo := &stubRepo{eventFresh: true, createdUserID: uuid.New()}
	mailer := &stubMailer{err: errors.New("mail provider down")}
	svc := NewService(repo, nil, mailer, stubTokens{}, nil, "http://app")

	obj := payment.SessionObject{
		ID:          "cs_4",
		AmountTotal: 5000,
		Metadata:    map[string]string{metaCourseID: uuid.NewString()},
	}
	obj.CustomerDetails.Email = "guest2@example.com"

	err := svc.ProcessPaymentEvent(context.Background(), completedEvent("evt_4", obj))
	if err != nil {
		t.Fatalf("mail failure must not fail processing: %v", err)
	}
	if len(repo.enrollments) != 1 {
		t.Fatalf("enrollment must still be upserted")
	}
}
