package dto

import (
	"time"

	"github.com/spec-kit/itsm-core/internal/domain"
)

// NotificationResponse is a per-recipient notification record.
type NotificationResponse struct {
	ID        string                  `json:"id"`
	Type      domain.NotificationType `json:"type"`
	Priority  domain.TicketPriority   `json:"priority"`
	Message   string                  `json:"message"`
	Read      bool                    `json:"read"`
	ReadAt    *time.Time              `json:"read_at,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
}

// MarkAllReadResponse reports how many notifications were affected.
type MarkAllReadResponse struct {
	Updated int64 `json:"updated"`
}
