package notifier

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mamadbah2/equiptrack/internal/config"
)

// Client delivers reminder messages to the configured webhook.
type Client interface {
	SendReminder(ctx context.Context, req ReminderRequest) error
}

// WebhookClient is a resty-backed implementation of Client.
type WebhookClient struct {
	httpClient *resty.Client
	url        string
}

// NewClient builds a webhook client using the provided configuration values.
func NewClient(cfg config.NotifierConfig) *WebhookClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	restyClient := resty.New()
	restyClient.
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	if cfg.Token != "" {
		restyClient.SetHeader("Authorization", fmt.Sprintf("Bearer %s", cfg.Token))
	}

	return &WebhookClient{
		httpClient: restyClient,
		url:        strings.TrimSpace(cfg.WebhookURL),
	}
}

// ReminderRequest is the JSON body posted for one overdue loan.
type ReminderRequest struct {
	Text        string    `json:"text"`
	LoanID      string    `json:"loanId"`
	Kind        string    `json:"kind"`
	EquipmentID string    `json:"equipmentId"`
	Holder      string    `json:"holder"`
	DueDate     time.Time `json:"dueDate"`
}

// apiError is the error body a webhook may answer with.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// SendReminder posts the reminder; any answer of 400 or above is an error.
func (c *WebhookClient) SendReminder(ctx context.Context, req ReminderRequest) error {
	apiErr := new(apiError)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(req).
		SetError(apiErr).
		Post(c.url)
	if err != nil {
		return fmt.Errorf("send reminder for %s: %w", req.LoanID, err)
	}

	if resp.StatusCode() >= http.StatusBadRequest {
		message := apiErr.Message
		if message == "" {
			message = apiErr.Error
		}
		if message == "" {
			message = strings.TrimSpace(resp.String())
		}
		return fmt.Errorf("notifier webhook error: code=%d, message=%s", resp.StatusCode(), message)
	}

	return nil
}
