// Package service реализует бизнес-логику сервиса продажи курсов.
package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/courseshop-system/internal/model"
	"github.com/mmeshcher/courseshop-system/internal/payment"
)

// ErrInvalidCredentials возвращается при неверной паре email/пароль.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ValidationError содержит сообщение об ошибке, предназначенное пользователю.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

// NewValidationError создаёт ошибку валидации с указанным сообщением.
func NewValidationError(msg string) *ValidationError {
	return &ValidationError{msg: msg}
}

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	CreateUser(ctx context.Context, email string, passwordHash []byte, firstName, lastName string) (uuid.UUID, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	MarkFirstPurchaseUsed(ctx context.Context, userID uuid.UUID) (bool, error)
	SetUserPassword(ctx context.Context, userID uuid.UUID, passwordHash []byte) error

	GetPublishedCourses(ctx context.Context) ([]model.Course, error)
	GetCourseByID(ctx context.Context, id uuid.UUID) (*model.Course, error)

	GetSetting(ctx context.Context, key string) (string, error)
	GetSettings(ctx context.Context) ([]model.Setting, error)
	UpsertSetting(ctx context.Context, key, value string) error

	GetActiveCouponByCode(ctx context.Context, code string) (*model.Coupon, error)
	CouponAppliesToCourse(ctx context.Context, couponID, courseID uuid.UUID) (bool, error)
	CountCouponUsagesByUser(ctx context.Context, couponID, userID uuid.UUID) (int64, error)
	RecordCouponUsage(ctx context.Context, couponID, userID, courseID uuid.UUID) error
	GetCoupons(ctx context.Context) ([]model.Coupon, error)
	CreateCoupon(ctx context.Context, c *model.Coupon) (uuid.UUID, error)
	UpdateCoupon(ctx context.Context, id uuid.UUID, isActive bool, maxUsesTotal *int64, maxUsesPerUser int64, expiresAt *time.Time) error
	DeactivateCoupon(ctx context.Context, id uuid.UUID) error

	GetPointsBalance(ctx context.Context, userID uuid.UUID) (int64, error)
	AdjustPoints(ctx context.Context, userID uuid.UUID, delta int64, txType model.PointTransactionType, referenceID, description string) (int64, error)
	GetPointTransactions(ctx context.Context, userID uuid.UUID) ([]model.PointTransaction, error)

	CreateCheckoutSession(ctx context.Context, s *model.CheckoutSession) error
	CompleteCheckoutSession(ctx context.Context, gatewaySessionID string, userID uuid.UUID) error
	UpsertEnrollment(ctx context.Context, e *model.Enrollment) error
	GetEnrollmentsByUser(ctx context.Context, userID uuid.UUID) ([]model.Enrollment, error)
	MarkWebhookEventProcessed(ctx context.Context, eventID string) (bool, error)
	UnmarkWebhookEventProcessed(ctx context.Context, eventID string) error
}

// Gateway описывает контракт платёжного шлюза.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, params payment.SessionParams) (*payment.Session, error)
}

// Mailer описывает контракт сервиса отправки писем.
type Mailer interface {
	SendPasswordSetupEmail(ctx context.Context, to, link string) error
}

// TokenSigner выпускает подписанные токены для установки пароля гостем.
type TokenSigner interface {
	GeneratePasswordToken(userID uuid.UUID, ttl time.Duration) string
}

// Service содержит бизнес-логику сервиса продажи курсов.
type Service struct {
	repo    Repository
	gateway Gateway
	mailer  Mailer
	tokens  TokenSigner
	logger  *zap.Logger
	baseURL string
}

// NewService создаёт новый сервис с указанными зависимостями.
func NewService(repo Repository, gateway Gateway, mailer Mailer, tokens TokenSigner, logger *zap.Logger, baseURL string) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:    repo,
		gateway: gateway,
		mailer:  mailer,
		tokens:  tokens,
		logger:  logger,
		baseURL: baseURL,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового пользователя. Email нормализуется до
// хэширования: хранится и участвует в хэше пароля только в нижнем регистре.
func (s *Service) RegisterUser(ctx context.Context, email, password, firstName, lastName string) (uuid.UUID, error) {
	email = normalizeEmail(email)
	hashed := hashPassword(email, password)
	return s.repo.CreateUser(ctx, email, hashed, firstName, lastName)
}

// AuthenticateUser проверяет email и пароль пользователя.
func (s *Service) AuthenticateUser(ctx context.Context, email, password string) (*model.User, error) {
	u, err := s.repo.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}

	hashed := hashPassword(u.Email, password)
	if hex.EncodeToString(hashed) != hex.EncodeToString(u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	return u, nil
}

// SetPassword устанавливает новый пароль пользователя.
// Используется гостями после перехода по ссылке из письма.
func (s *Service) SetPassword(ctx context.Context, userID uuid.UUID, password string) error {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	return s.repo.SetUserPassword(ctx, userID, hashPassword(u.Email, password))
}

// GetUser возвращает пользователя по идентификатору.
func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return s.repo.GetUserByID(ctx, id)
}

// GetCourses возвращает опубликованные курсы.
func (s *Service) GetCourses(ctx context.Context) ([]model.Course, error) {
	return s.repo.GetPublishedCourses(ctx)
}

// GetCourse возвращает курс по идентификатору.
func (s *Service) GetCourse(ctx context.Context, id uuid.UUID) (*model.Course, error) {
	return s.repo.GetCourseByID(ctx, id)
}

// GetPointsBalance возвращает текущий баланс баллов пользователя.
func (s *Service) GetPointsBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.GetPointsBalance(ctx, userID)
}

// GetPointTransactions возвращает журнал операций с баллами пользователя.
func (s *Service) GetPointTransactions(ctx context.Context, userID uuid.UUID) ([]model.PointTransaction, error) {
	return s.repo.GetPointTransactions(ctx, userID)
}

// GetEnrollments возвращает записи о доступах пользователя к курсам.
func (s *Service) GetEnrollments(ctx context.Context, userID uuid.UUID) ([]model.Enrollment, error) {
	return s.repo.GetEnrollmentsByUser(ctx, userID)
}

// normalizeEmail приводит email к каноническому виду. Хэш пароля считается
// от email, поэтому нормализация должна совпадать с той, что в хранилище.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func hashPassword(email, password string) []byte {
	sum := sha256.Sum256([]byte(email + ":" + password))
	return sum[:]
}

// randomPasswordHash возвращает хэш случайного пароля для гостевых аккаунтов:
// войти по нему нельзя, пароль устанавливается по ссылке из письма.
func randomPasswordHash() []byte {
	buf := make([]byte, 24)
	_, _ = rand.Read(buf)
	sum := sha256.Sum256(buf)
	return sum[:]
}
