// Package handler содержит HTTP-обработчики API сервиса продажи курсов.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/courseshop-system/internal/middleware"
	"github.com/mmeshcher/courseshop-system/internal/model"
	"github.com/mmeshcher/courseshop-system/internal/payment"
	"github.com/mmeshcher/courseshop-system/internal/repository"
	"github.com/mmeshcher/courseshop-system/internal/service"
	"github.com/mmeshcher/courseshop-system/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, email, password, firstName, lastName string) (uuid.UUID, error)
	AuthenticateUser(ctx context.Context, email, password string) (*model.User, error)
	SetPassword(ctx context.Context, userID uuid.UUID, password string) error
	GetUser(ctx context.Context, id uuid.UUID) (*model.User, error)

	GetCourses(ctx context.Context) ([]model.Course, error)
	GetCourse(ctx context.Context, id uuid.UUID) (*model.Course, error)

	PreviewCheckout(ctx context.Context, params service.PreviewParams) (*service.PreviewResult, error)
	CreateCheckout(ctx context.Context, params service.CheckoutParams) (*service.CheckoutResult, error)
	ProcessPaymentEvent(ctx context.Context, event *payment.Event) error

	GetPointsBalance(ctx context.Context, userID uuid.UUID) (int64, error)
	GetPointTransactions(ctx context.Context, userID uuid.UUID) ([]model.PointTransaction, error)
	GetEnrollments(ctx context.Context, userID uuid.UUID) ([]model.Enrollment, error)

	GetSettings(ctx context.Context) ([]model.Setting, error)
	UpdateSettings(ctx context.Context, values map[string]string) error
	GetCoupons(ctx context.Context) ([]model.Coupon, error)
	CreateCoupon(ctx context.Context, params service.CreateCouponParams) (uuid.UUID, error)
	UpdateCoupon(ctx context.Context, id uuid.UUID, isActive bool, maxUsesTotal *int64, maxUsesPerUser int64, expiresAt *time.Time) error
	DeactivateCoupon(ctx context.Context, id uuid.UUID) error
}

// Handler реализует HTTP-обработчики API сервиса продажи курсов.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	webhookSecret  string
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, webhookSecret string) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		webhookSecret:  webhookSecret,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("write response error", zap.Error(err))
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, errorResponse{Error: msg})
}

// serviceError транслирует ошибку сервиса в HTTP-ответ: ошибки валидации
// уходят клиенту как есть, остальные логируются и прячутся за 500.
func (h *Handler) serviceError(w http.ResponseWriter, op string, err error) {
	var vErr *service.ValidationError
	if errors.As(err, &vErr) {
		h.writeError(w, http.StatusBadRequest, vErr.Error())
		return
	}
	h.logger.Error(op, zap.Error(err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !validation.IsValidEmail(req.Email) || len(req.Password) < 6 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Email, req.Password, req.FirstName, req.LastName)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("register user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login выполняет аутентификацию пользователя и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Email == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	u, err := h.service.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) || errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, u.ID)
	w.WriteHeader(http.StatusOK)
}

type setPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// SetPassword устанавливает пароль по токену из письма и сразу
// аутентифицирует пользователя.
func (h *Handler) SetPassword(w http.ResponseWriter, r *http.Request) {
	var req setPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Token == "" || len(req.Password) < 6 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, ok := h.authMiddleware.ParsePasswordToken(req.Token)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	if err := h.service.SetPassword(r.Context(), userID, req.Password); err != nil {
		h.logger.Error("set password error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}
