package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader — имя заголовка с подписью webhook-уведомления.
const SignatureHeader = "Gateway-Signature"

// EventCheckoutCompleted — тип события об успешно завершённой оплате.
const EventCheckoutCompleted = "checkout.session.completed"

// signatureTolerance ограничивает возраст подписанного уведомления.
const signatureTolerance = 5 * time.Minute

// ErrInvalidSignature возвращается, если подпись webhook-уведомления не прошла проверку.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Event описывает конверт webhook-события платёжного шлюза.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object SessionObject `json:"object"`
	} `json:"data"`
}

// SessionObject содержит данные платёжной сессии из webhook-события.
type SessionObject struct {
	ID                string `json:"id"`
	PaymentIntentID   string `json:"payment_intent"`
	AmountTotal       int64  `json:"amount_total"`
	ClientReferenceID string `json:"client_reference_id"`
	CustomerDetails   struct {
		Email string `json:"email"`
	} `json:"customer_details"`
	Metadata map[string]string `json:"metadata"`
}

// ConstructEvent проверяет подпись сырого тела запроса и разбирает событие.
// До успешной проверки подписи содержимому тела доверять нельзя.
func ConstructEvent(payload []byte, header string, secret []byte) (*Event, error) {
	if err := verifySignature(payload, header, secret, time.Now()); err != nil {
		return nil, err
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}

	return &event, nil
}

// BuildSignatureHeader формирует значение заголовка подписи для указанного тела.
// Используется шлюзом и тестами; формат: t=<unix>,v1=<hex hmac-sha256>.
func BuildSignatureHeader(ts time.Time, payload, secret []byte) string {
	unix := ts.Unix()
	return fmt.Sprintf("t=%d,v1=%s", unix, hex.EncodeToString(computeSignature(unix, payload, secret)))
}

func computeSignature(unix int64, payload, secret []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "%d.", unix)
	mac.Write(payload)
	return mac.Sum(nil)
}

func verifySignature(payload []byte, header string, secret []byte, now time.Time) error {
	if header == "" || len(secret) == 0 {
		return ErrInvalidSignature
	}

	var (
		ts         int64
		signatures [][]byte
	)

	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}

		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return ErrInvalidSignature
			}
			ts = parsed
		case "v1":
			sig, err := hex.DecodeString(value)
			if err != nil {
				continue
			}
			signatures = append(signatures, sig)
		}
	}

	if ts == 0 || len(signatures) == 0 {
		return ErrInvalidSignature
	}

	if now.Sub(time.Unix(ts, 0)) > signatureTolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	}

	expected := computeSignature(ts, payload, secret)
	for _, sig := range signatures {
		if hmac.Equal(sig, expected) {
			return nil
		}
	}

	return ErrInvalidSignature
}
