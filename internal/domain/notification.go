package domain

import "time"

// NotificationType classifies why a notification was produced.
type NotificationType string

const (
	NotificationTicketReceived    NotificationType = "TICKET_RECEIVED"
	NotificationStakeholderAlert  NotificationType = "STAKEHOLDER_ALERT"
	NotificationApprovalRequested NotificationType = "APPROVAL_REQUESTED"
	NotificationTicketUpdated     NotificationType = "TICKET_UPDATED"
)

// Notification is a per-recipient record produced from a domain event.
// Notifications outlive the ticket they describe.
type Notification struct {
	ID              string
	RecipientUserID string
	SourceEventID   string
	Type            NotificationType
	Priority        TicketPriority
	Message         string
	CreatedAt       time.Time
	Read            bool
	ReadAt          *time.Time
}
