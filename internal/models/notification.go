// internal/models/notification.go
package models

import "time"

type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelSMS      Channel = "sms"
	ChannelEmail    Channel = "email"
)

// IsPhone reports whether the channel addresses recipients by phone number.
func (c Channel) IsPhone() bool {
	return c == ChannelWhatsApp || c == ChannelSMS
}

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusSent       Status = "SENT"
	StatusFailed     Status = "FAILED"
)

// IsTerminal reports whether no further automatic transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusSent || s == StatusFailed
}

type NotificationTemplate struct {
	ID       string  `json:"id"`
	TenantID string  `json:"tenantId"`
	Name     string  `json:"name"`
	Channel  Channel `json:"channel"`
	Language string  `json:"language,omitempty"`
	Subject  string  `json:"subject,omitempty"`
	Body     string  `json:"body"`
	Active   bool    `json:"active"`
}

// ScheduledNotification is one job row. Variables is the snapshot taken when
// the job was scheduled and is never recomputed.
type ScheduledNotification struct {
	ID                string            `json:"id"`
	TenantID          string            `json:"tenantId"`
	TemplateID        string            `json:"templateId"`
	BookingID         string            `json:"bookingId,omitempty"`
	ScheduledFor      time.Time         `json:"scheduledFor"`
	Variables         map[string]string `json:"variables"`
	Recipient         string            `json:"recipient"`
	Status            Status            `json:"status"`
	ClaimedAt         *time.Time        `json:"claimedAt,omitempty"`
	ClaimedBy         string            `json:"claimedBy,omitempty"`
	Attempts          int               `json:"attempts"`
	SentAt            *time.Time        `json:"sentAt,omitempty"`
	ProviderMessageID string            `json:"providerMessageId,omitempty"`
	LastError         string            `json:"lastError,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

// DueJob is a job joined with the template it renders.
type DueJob struct {
	Notification ScheduledNotification `json:"notification"`
	Template     NotificationTemplate  `json:"template"`
}

type DispatchResult struct {
	Success           bool   `json:"success"`
	ProviderMessageID string `json:"providerMessageId,omitempty"`
	Error             string `json:"error,omitempty"`
}

// BookingContext is the read-only view of a booking owned by the booking subsystem.
type BookingContext struct {
	BookingID      string `json:"bookingId"`
	TenantID       string `json:"tenantId"`
	OwnerFirstName string `json:"ownerFirstName"`
	OwnerLastName  string `json:"ownerLastName"`
	OwnerPhone     string `json:"ownerPhone"`
	OwnerEmail     string `json:"ownerEmail"`
	PetName        string `json:"petName"`
	CheckInDate    string `json:"checkInDate"`
	CheckOutDate   string `json:"checkOutDate"`
	KennelName     string `json:"kennelName"`
}

// Variables returns the booking fields under the placeholder names templates use.
// Empty fields are omitted.
func (b BookingContext) Variables() map[string]string {
	vars := map[string]string{
		"bookingId":    b.BookingID,
		"firstName":    b.OwnerFirstName,
		"lastName":     b.OwnerLastName,
		"petName":      b.PetName,
		"checkInDate":  b.CheckInDate,
		"checkOutDate": b.CheckOutDate,
		"kennelName":   b.KennelName,
	}
	if b.OwnerFirstName != "" && b.OwnerLastName != "" {
		vars["ownerName"] = b.OwnerFirstName + " " + b.OwnerLastName
	}
	for k, v := range vars {
		if v == "" {
			delete(vars, k)
		}
	}
	return vars
}

// RecipientFor returns the booking owner's address for the given channel.
func (b BookingContext) RecipientFor(channel Channel) string {
	if channel == ChannelEmail {
		return b.OwnerEmail
	}
	return b.OwnerPhone
}
