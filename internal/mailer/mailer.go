// Package mailer предоставляет клиент внешнего сервиса отправки писем.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

// Client инкапсулирует HTTP-взаимодействие с сервисом отправки писем.
type Client struct {
	baseURL    string
	apiKey     string
	from       string
	httpClient *http.Client
}

// NewClient создаёт клиент сервиса отправки писем по указанному адресу.
func NewClient(baseURL, apiKey, from string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		from:    from,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type emailRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// SendPasswordSetupEmail отправляет гостю письмо со ссылкой для установки пароля.
// Временные ошибки сервиса ретраятся с экспоненциальной задержкой.
func (c *Client) SendPasswordSetupEmail(ctx context.Context, to, link string) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("mailer not configured")
	}

	html := fmt.Sprintf(
		`<h1>Thank you for your purchase!</h1>`+
			`<p>You now have access to your course. Since you checked out as a guest, `+
			`please set a password for your account to log in later:</p>`+
			`<p><a href="%s">Set Password</a></p>`+
			`<p>Or copy this link: %s</p>`,
		link, link,
	)

	body, err := json.Marshal(emailRequest{
		From:    c.from,
		To:      to,
		Subject: "Welcome! Set your password",
		HTML:    html,
	})
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("do request: %w", err))
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError {
			return retry.RetryableError(fmt.Errorf("unexpected status: %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return fmt.Errorf("unexpected status: %d", resp.StatusCode)
		}

		return nil
	})
}
