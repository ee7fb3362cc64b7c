package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/courseshop-system/internal/model"
	"github.com/mmeshcher/courseshop-system/internal/payment"
	"github.com/mmeshcher/courseshop-system/internal/repository"
)

func TestHashPasswordDeterministic(t *testing.T) {
	a := hashPassword("user@example.com", "pass")
	b := hashPassword("user@example.com", "pass")
	c := hashPassword("user@example.com", "other")

	if string(a) != string(b) {
		t.Fatalf("hashPassword must be deterministic, got %x and %x", a, b)
	}
	if string(a) == string(c) {
		t.Fatalf("different passwords must produce different hashes")
	}
}

type stubRepo struct {
	user    *model.User
	userErr error

	userByEmail    *model.User
	userByEmailErr error

	createdUserID uuid.UUID
	createUserErr error
	createdUsers  []string

	course    *model.Course
	courseErr error

	settings map[string]string

	coupon        *model.Coupon
	couponErr     error
	couponApplies bool
	couponUses    int64

	balance    int64
	balanceErr error

	eventFresh bool
	eventErr   error

	firstPurchaseMarked bool

	adjustments     []int64
	adjustErr       error
	recordedCoupons []uuid.UUID
	enrollments     []*model.Enrollment
	completed       []string
	sessions        []*model.CheckoutSession
	savedSettings   map[string]string
	unmarked        []string
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) CreateUser(ctx context.Context, email string, passwordHash []byte, firstName, lastName string) (uuid.UUID, error) {
	if s.createUserErr != nil {
		return uuid.Nil, s.createUserErr
	}
	s.createdUsers = append(s.createdUsers, email)
	return s.createdUserID, nil
}

func (s *stubRepo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	if s.userByEmailErr != nil {
		return nil, s.userByEmailErr
	}
	if s.userByEmail == nil {
		return nil, repository.ErrUserNotFound
	}
	return s.userByEmail, nil
}

func (s *stubRepo) GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	if s.userErr != nil {
		return nil, s.userErr
	}
	if s.user == nil {
		return nil, repository.ErrUserNotFound
	}
	return s.user, nil
}

func (s *stubRepo) MarkFirstPurchaseUsed(ctx context.Context, userID uuid.UUID) (bool, error) {
	return s.firstPurchaseMarked, nil
}

func (s *stubRepo) SetUserPassword(ctx context.Context, userID uuid.UUID, passwordHash []byte) error {
	return nil
}

func (s *stubRepo) GetPublishedCourses(ctx context.Context) ([]model.Course, error) {
	return nil, nil
}

func (s *stubRepo) GetCourseByID(ctx context.Context, id uuid.UUID) (*model.Course, error) {
	if s.courseErr != nil {
		return nil, s.courseErr
	}
	if s.course == nil {
		return nil, repository.ErrCourseNotFound
	}
	return s.course, nil
}

func (s *stubRepo) GetSetting(ctx context.Context, key string) (string, error) {
	v, ok := s.settings[key]
	if !ok {
		return "", repository.ErrSettingNotFound
	}
	return v, nil
}

func (s *stubRepo) GetSettings(ctx context.Context) ([]model.Setting, error) {
	return nil, nil
}

func (s *stubRepo) UpsertSetting(ctx context.Context, key, value string) error {
	if s.savedSettings == nil {
		s.savedSettings = map[string]string{}
	}
	s.savedSettings[key] = value
	return nil
}

func (s *stubRepo) GetActiveCouponByCode(ctx context.Context, code string) (*model.Coupon, error) {
	if s.couponErr != nil {
		return nil, s.couponErr
	}
	if s.coupon == nil {
		return nil, repository.ErrCouponNotFound
	}
	return s.coupon, nil
}

func (s *stubRepo) CouponAppliesToCourse(ctx context.Context, couponID, courseID uuid.UUID) (bool, error) {
	return s.couponApplies, nil
}

func (s *stubRepo) CountCouponUsagesByUser(ctx context.Context, couponID, userID uuid.UUID) (int64, error) {
	return s.couponUses, nil
}

func (s *stubRepo) RecordCouponUsage(ctx context.Context, couponID, userID, courseID uuid.UUID) error {
	s.recordedCoupons = append(s.recordedCoupons, couponID)
	return nil
}

func (s *stubRepo) GetCoupons(ctx context.Context) ([]model.Coupon, error) { return nil, nil }

func (s *stubRepo) CreateCoupon(ctx context.Context, c *model.Coupon) (uuid.UUID, error) {
	return uuid.New(), nil
}

func (s *stubRepo) UpdateCoupon(ctx context.Context, id uuid.UUID, isActive bool, maxUsesTotal *int64, maxUsesPerUser int64, expiresAt *time.Time) error {
	return nil
}

func (s *stubRepo) DeactivateCoupon(ctx context.Context, id uuid.UUID) error { return nil }

func (s *stubRepo) GetPointsBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.balance, s.balanceErr
}

func (s *stubRepo) AdjustPoints(ctx context.Context, userID uuid.UUID, delta int64, txType model.PointTransactionType, referenceID, description string) (int64, error) {
	if s.adjustErr != nil {
		return 0, s.adjustErr
	}
	s.adjustments = append(s.adjustments, delta)
	return s.balance + delta, nil
}

func (s *stubRepo) GetPointTransactions(ctx context.Context, userID uuid.UUID) ([]model.PointTransaction, error) {
	return nil, nil
}

func (s *stubRepo) CreateCheckoutSession(ctx context.Context, sess *model.CheckoutSession) error {
	s.sessions = append(s.sessions, sess)
	return nil
}

func (s *stubRepo) CompleteCheckoutSession(ctx context.Context, gatewaySessionID string, userID uuid.UUID) error {
	s.completed = append(s.completed, gatewaySessionID)
	return nil
}

func (s *stubRepo) UpsertEnrollment(ctx context.Context, e *model.Enrollment) error {
	s.enrollments = append(s.enrollments, e)
	return nil
}

func (s *stubRepo) GetEnrollmentsByUser(ctx context.Context, userID uuid.UUID) ([]model.Enrollment, error) {
	return nil, nil
}

func (s *stubRepo) MarkWebhookEventProcessed(ctx context.Context, eventID string) (bool, error) {
	return s.eventFresh, s.eventErr
}

func (s *stubRepo) UnmarkWebhookEventProcessed(ctx context.Context, eventID string) error {
	s.unmarked = append(s.unmarked, eventID)
	return nil
}

type stubGateway struct {
	params  payment.SessionParams
	session *payment.Session
	err     error
}

func (g *stubGateway) CreateCheckoutSession(ctx context.Context, params payment.SessionParams) (*payment.Session, error) {
	g.params = params
	return g.session, g.err
}

type stubMailer struct {
	sentTo []string
	err    error
}

func (m *stubMailer) SendPasswordSetupEmail(ctx context.Context, to, link string) error {
	if m.err != nil {
		return m.err
	}
	m.sentTo = append(m.sentTo, to)
	return nil
}

type stubTokens struct{}

func (stubTokens) GeneratePasswordToken(userID uuid.UUID, ttl time.Duration) string {
	return "token-" + userID.String()
}

func TestRegisterUser_PropagatesDuplicateError(t *testing.T) {
	repo := &stubRepo{createUserErr: repository.ErrUserExists}
	svc := NewService(repo, nil, nil, nil, nil, "http://app")

	_, err := svc.RegisterUser(context.Background(), "user@example.com", "pass", "A", "B")
	if !errors.Is(err, repository.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

// caseFoldingRepo хранит email в нижнем регистре, как это делает Postgres-слой.
type caseFoldingRepo struct {
	stubRepo
	stored *model.User
}

func (r *caseFoldingRepo) CreateUser(ctx context.Context, email string, passwordHash []byte, firstName, lastName string) (uuid.UUID, error) {
	r.stored = &model.User{
		ID:           uuid.New(),
		Email:        strings.ToLower(email),
		PasswordHash: passwordHash,
		FirstName:    firstName,
		LastName:     lastName,
	}
	return r.stored.ID, nil
}

func (r *caseFoldingRepo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	if r.stored == nil || r.stored.Email != strings.ToLower(email) {
		return nil, repository.ErrUserNotFound
	}
	return r.stored, nil
}

// Регистрация с email в смешанном регистре не должна ломать последующий вход
// с теми же данными: хэш пароля считается от нормализованного email.
func TestRegisterThenAuthenticate_MixedCaseEmail(t *testing.T) {
	repo := &caseFoldingRepo{}
	svc := NewService(repo, nil, nil, nil, nil, "http://app")

	userID, err := svc.RegisterUser(context.Background(), "John@Example.com", "secret-pass", "John", "Doe")
	if err != nil {
		t.Fatalf("RegisterUser error: %v", err)
	}
	if repo.stored.Email != "john@example.com" {
		t.Fatalf("stored email = %q, want lowercased", repo.stored.Email)
	}

	u, err := svc.AuthenticateUser(context.Background(), "John@Example.com", "secret-pass")
	if err != nil {
		t.Fatalf("AuthenticateUser with original input: %v", err)
	}
	if u.ID != userID {
		t.Fatalf("authenticated user = %v, want %v", u.ID, userID)
	}

	if _, err := svc.AuthenticateUser(context.Background(), "john@example.com", "secret-pass"); err != nil {
		t.Fatalf("AuthenticateUser with lowercase email: %v", err)
	}

	if _, err := svc.AuthenticateUser(context.Background(), "john@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
}

func TestAuthenticateUser_InvalidCredentials(t *testing.T) {
	repo := &stubRepo{
		userByEmail: &model.User{
			ID:           uuid.New(),
			Email:        "user@example.com",
			PasswordHash: hashPassword("user@example.com", "correct"),
		},
	}
	svc := NewService(repo, nil, nil, nil, nil, "http://app")

	_, err := svc.AuthenticateUser(context.Background(), "user@example.com", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestPreviewCheckout_DiscountStack(t *testing.T) {
	userID := uuid.New()
	repo := &stubRepo{
		user:   &model.User{ID: userID, Email: "user@example.com"},
		course: &model.Course{ID: uuid.New(), Title: "Go Course", PriceCents: 10000},
		settings: map[string]string{
			model.SettingFirstPurchasePercent: "10",
			model.SettingPointsPercent:        "10",
		},
		balance: 2000,
		coupon: &model.Coupon{
			ID:                  uuid.New(),
			Code:                "SAVE10",
			DiscountType:        model.CouponPercentage,
			DiscountValue:       10,
			MaxUsesPerUser:      1,
			IsActive:            true,
			AppliesToAllCourses: true,
		},
	}
	svc := NewService(repo, nil, nil, nil, nil, "http://app")

	res, err := svc.PreviewCheckout(context.Background(), PreviewParams{
		CourseID:    repo.course.ID,
		UserID:      &userID,
		CouponCode:  "save10",
		PointsToUse: 1000,
	})
	if err != nil {
		t.Fatalf("PreviewCheckout error: %v", err)
	}

	bd := res.Breakdown
	if bd.FirstPurchase.DiscountCents != 1000 {
		t.Fatalf("first purchase discount = %d, want 1000", bd.FirstPurchase.DiscountCents)
	}
	if bd.Points.DiscountCents != 900 || bd.Points.PointsToUse != 1000 {
		t.Fatalf("points = %+v, want 900 cents for 1000 points", bd.Points)
	}
	if bd.Coupon.DiscountCents != 810 || !bd.Coupon.Valid {
		t.Fatalf("coupon = %+v, want valid 810 cents", bd.Coupon)
	}
	if bd.TotalDiscountCents != 2710 || bd.FinalPriceCents != 7290 {
		t.Fatalf("total = %d final = %d, want 2710 and 7290", bd.TotalDiscountCents, bd.FinalPriceCents)
	}
	if res.UserPoints != 2000 {
		t.Fatalf("user points = %d, want 2000", res.UserPoints)
	}
}

func TestPreviewCheckout_GuestEmailExists(t *testing.T) {
	repo := &stubRepo{
		course:      &model.Course{ID: uuid.New(), PriceCents: 5000},
		userByEmail: &model.User{ID: uuid.New(), Email: "taken@example.com"},
	}
	svc := NewService(repo, nil, nil, nil, nil, "http://app")

	res, err := svc.PreviewCheckout(context.Background(), PreviewParams{
		CourseID: repo.course.ID,
		Email:    "taken@example.com",
	})
	if err != nil {
		t.Fatalf("PreviewCheckout error: %v", err)
	}
	if !res.EmailExists {
		t.Fatalf("expected EmailExists for registered email")
	}
}

func TestCreateCheckout_InvalidCouponAborts(t *testing.T) {
	repo := &stubRepo{
		course: &model.Course{ID: uuid.New(), PriceCents: 5000},
	}
	svc := NewService(repo, &stubGateway{}, nil, nil, nil, "http://app")

	_, err := svc.CreateCheckout(context.Background(), CheckoutParams{
		CourseID:   repo.course.ID,
		Email:      "guest@example.com",
		CouponCode: "NOPE",
	})

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if vErr.Error() != "Invalid coupon code" {
		t.Fatalf("message = %q, want %q", vErr.Error(), "Invalid coupon code")
	}
}

func TestCreateCheckout_BuildsSessionMetadata(t *testing.T) {
	userID := uuid.New()
	repo := &stubRepo{
		user:   &model.User{ID: userID, Email: "user@example.com"},
		course: &model.Course{ID: uuid.New(), Title: "Go Course", PriceCents: 10000},
		settings: map[string]string{
			model.SettingFirstPurchasePercent: "10",
		},
	}
	gw := &stubGateway{session: &payment.Session{ID: "cs_1", URL: "https://pay/cs_1"}}
	svc := NewService(repo, gw, nil, nil, nil, "http://app")

	res, err := svc.CreateCheckout(context.Background(), CheckoutParams{
		CourseID: repo.course.ID,
		UserID:   &userID,
		Email:    "User@Example.com",
	})
	if err != nil {
		t.Fatalf("CreateCheckout error: %v", err)
	}
	if res.URL != "https://pay/cs_1" {
		t.Fatalf("URL = %q, want gateway session URL", res.URL)
	}

	if gw.params.AmountCents != 9000 {
		t.Fatalf("amount = %d, want 9000 after first purchase discount", gw.params.AmountCents)
	}
	if gw.params.ClientReferenceID != userID.String() {
		t.Fatalf("client reference = %q, want user id", gw.params.ClientReferenceID)
	}
	if gw.params.CustomerEmail != "user@example.com" {
		t.Fatalf("email = %q, want lowercased", gw.params.CustomerEmail)
	}
	if gw.params.Metadata[metaFirstPurchaseApplied] != "true" {
		t.Fatalf("metadata %s = %q, want true", metaFirstPurchaseApplied, gw.params.Metadata[metaFirstPurchaseApplied])
	}
	if gw.params.Metadata[metaFinalPriceCents] != "9000" {
		t.Fatalf("metadata %s = %q, want 9000", metaFinalPriceCents, gw.params.Metadata[metaFinalPriceCents])
	}

	if len(repo.sessions) != 1 || repo.sessions[0].GatewaySessionID != "cs_1" {
		t.Fatalf("checkout session was not recorded: %+v", repo.sessions)
	}
}

func TestValidateCoupon_Messages(t *testing.T) {
	userID := uuid.New()
	past := time.Now().Add(-time.Hour)
	limit := int64(5)

	tests := []struct {
		name    string
		repo    *stubRepo
		userID  *uuid.UUID
		wantErr string
	}{
		{
			name:    "unknown code",
			repo:    &stubRepo{},
			wantErr: "Invalid coupon code",
		},
		{
			name: "expired",
			repo: &stubRepo{coupon: &model.Coupon{
				ID: uuid.New(), Code: "OLD", DiscountType: model.CouponPercentage,
				DiscountValue: 10, MaxUsesPerUser: 1, ExpiresAt: &past, AppliesToAllCourses: true,
			}},
			wantErr: "This coupon has expired",
		},
		{
			name: "total limit reached",
			repo: &stubRepo{coupon: &model.Coupon{
				ID: uuid.New(), Code: "FULL", DiscountType: model.CouponPercentage,
				DiscountValue: 10, MaxUsesTotal: &limit, UsageCount: 5,
				MaxUsesPerUser: 1, AppliesToAllCourses: true,
			}},
			wantErr: "This coupon has reached its usage limit",
		},
		{
			name: "wrong course",
			repo: &stubRepo{coupon: &model.Coupon{
				ID: uuid.New(), Code: "OTHER", DiscountType: model.CouponPercentage,
				DiscountValue: 10, MaxUsesPerUser: 1,
			}},
			wantErr: "This coupon is not valid for this course",
		},
		{
			name: "already used by user",
			repo: &stubRepo{
				coupon: &model.Coupon{
					ID: uuid.New(), Code: "ONCE", DiscountType: model.CouponPercentage,
					DiscountValue: 10, MaxUsesPerUser: 1, AppliesToAllCourses: true,
				},
				couponUses: 1,
			},
			userID:  &userID,
			wantErr: "You have already used this coupon",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.repo, nil, nil, nil, nil, "http://app")
			res, err := svc.validateCoupon(context.Background(), "code", tt.userID, uuid.New(), 1000)
			if err != nil {
				t.Fatalf("validateCoupon error: %v", err)
			}
			if res.Valid {
				t.Fatalf("coupon must be invalid")
			}
			if res.Error != tt.wantErr {
				t.Fatalf("error = %q, want %q", res.Error, tt.wantErr)
			}
		})
	}
}

func TestValidateCoupon_GuestSkipsPerUserLimit(t *testing.T) {
	repo := &stubRepo{
		coupon: &model.Coupon{
			ID: uuid.New(), Code: "ONCE", DiscountType: model.CouponFixed,
			DiscountValue: 500, MaxUsesPerUser: 1, AppliesToAllCourses: true,
		},
		couponUses: 99,
	}
	svc := NewService(repo, nil, nil, nil, nil, "http://app")

	res, err := svc.validateCoupon(context.Background(), "ONCE", nil, uuid.New(), 1000)
	if err != nil {
		t.Fatalf("validateCoupon error: %v", err)
	}
	if !res.Valid || res.DiscountCents != 500 {
		t.Fatalf("guest coupon = %+v, want valid 500 cents", res)
	}
}

func TestUpdateSettings_RejectsOutOfRange(t *testing.T) {
	svc := NewService(&stubRepo{}, nil, nil, nil, nil, "http://app")

	err := svc.UpdateSettings(context.Background(), map[string]string{
		model.SettingPointsPercent: "150",
	})

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestCreateCoupon_Validation(t *testing.T) {
	svc := NewService(&stubRepo{}, nil, nil, nil, nil, "http://app")

	_, err := svc.CreateCoupon(context.Background(), CreateCouponParams{
		Code:                "OVER",
		DiscountType:        model.CouponPercentage,
		DiscountValue:       150,
		AppliesToAllCourses: true,
	})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for percentage > 100, got %v", err)
	}

	_, err = svc.CreateCoupon(context.Background(), CreateCouponParams{
		Code:          "NOCOURSES",
		DiscountType:  model.CouponFixed,
		DiscountValue: 500,
	})
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for empty course list, got %v", err)
	}
}
