package provider

import (
	"context"
	"time"

	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/models"
)

// SendRequest describes one outbound message handed to a provider account.
type SendRequest struct {
	Account  models.AccountConfig
	Channel  models.Channel
	To       string
	Message  string
	MediaURL string
}

// SendResult is the normalized outcome of a provider call. Kind carries the
// failure classification input when Success is false.
type SendResult struct {
	Success    bool
	MessageID  string
	Kind       string
	Message    string
	HTTPStatus int
	Duration   time.Duration
}

// Client sends messages through one WhatsApp gateway account.
type Client interface {
	Send(ctx context.Context, req SendRequest) SendResult
}
