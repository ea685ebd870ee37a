package models

import (
	"time"
)

// Channel identifies the delivery channel for a notification.
type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelSMS      Channel = "sms"
	ChannelEmail    Channel = "email"
	ChannelInApp    Channel = "in_app"
)

// Category is the business tag attached to a notification. The pipeline
// treats it as opaque beyond routing hints.
type Category string

const (
	CategoryParcelCreated   Category = "parcel-created"
	CategoryLotShipped      Category = "lot-shipped"
	CategoryParcelArrived   Category = "parcel-arrived"
	CategoryParcelDelivered Category = "parcel-delivered"
	CategoryReminder        Category = "reminder"
	CategoryOTP             Category = "otp"
	CategoryAccount         Category = "account"
	CategorySystemAlert     Category = "system-alert"
	CategoryGeneric         Category = "generic"
)

// IsSystemClass reports whether the category must always be carried by the
// system account regardless of sender.
func (c Category) IsSystemClass() bool {
	switch c {
	case CategoryOTP, CategoryAccount, CategorySystemAlert:
		return true
	}
	return false
}

// Status is the delivery lifecycle state of a notification record.
type Status string

const (
	StatusPending         Status = "pending"
	StatusSending         Status = "sending"
	StatusSent            Status = "sent"
	StatusFailedTemporary Status = "failed_temporary"
	StatusFailedPermanent Status = "failed_permanent"
	StatusCancelled       Status = "cancelled"
)

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusSent || s == StatusFailedPermanent || s == StatusCancelled
}

// Recipient holds a user reference plus denormalized contact details so the
// record survives recipient deletion.
type Recipient struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
	Phone  string `json:"phone,omitempty"`
	Email  string `json:"email,omitempty"`
}

// NotificationRecord is one outbound message attempt lineage. It is created
// by business code in status pending and mutated exclusively by the delivery
// orchestrator and the retry scheduler.
type NotificationRecord struct {
	ID                string     `json:"id"`
	Recipient         Recipient  `json:"recipient"`
	Channel           Channel    `json:"channel"`
	Category          Category   `json:"category"`
	Message           string     `json:"message"`
	MediaURL          string     `json:"media_url,omitempty"`
	SenderRole        string     `json:"sender_role,omitempty"`
	BusinessRef       string     `json:"business_ref,omitempty"`
	Status            Status     `json:"status"`
	AttemptCount      int        `json:"attempt_count"`
	MaxAttempts       int        `json:"max_attempts"`
	NextAttemptAt     *time.Time `json:"next_attempt_at,omitempty"`
	ProviderMessageID string     `json:"provider_message_id,omitempty"`
	Region            string     `json:"region,omitempty"`
	LastError         *string    `json:"last_error,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	SentAt            *time.Time `json:"sent_at,omitempty"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// AttemptsExhausted reports whether the record has reached its attempt ceiling.
func (n *NotificationRecord) AttemptsExhausted() bool {
	return n.AttemptCount >= n.MaxAttempts
}

// RecordFilter selects notification records for list queries.
type RecordFilter struct {
	Status      *Status   `json:"status,omitempty"`
	Channel     *Channel  `json:"channel,omitempty"`
	Category    *Category `json:"category,omitempty"`
	Region      *string   `json:"region,omitempty"`
	BusinessRef *string   `json:"business_ref,omitempty"`
	Limit       int       `json:"limit"`
	Offset      int       `json:"offset"`
}

// RecordStats summarizes the notification table for monitoring.
type RecordStats struct {
	Total         int64            `json:"total"`
	ByStatus      map[Status]int64 `json:"by_status"`
	OldestPending *time.Time       `json:"oldest_pending,omitempty"`
	LatestSent    *time.Time       `json:"latest_sent,omitempty"`
}
