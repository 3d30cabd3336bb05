package model

import "time"

type Status string

const (
	Pending    Status = "pending"
	Processing Status = "processing"
	Scheduled  Status = "scheduled"
	Sent       Status = "sent"
	Failed     Status = "failed"
	Cancelled  Status = "cancelled"
)

// GatewayID identifies one concrete delivery backend.
type GatewayID string

const (
	GatewayInteractive GatewayID = "interactive"
	GatewayCloudAPI    GatewayID = "cloudapi"
	GatewayRelay       GatewayID = "relay"
)

const (
	TypeDirect    = "Direct Message"
	TypeTemplate  = "Template Message"
	TypeBroadcast = "Broadcast Message"
)

const DefaultMaxAttempts = 3

// Message is one unit of outbound communication. A scheduled message
// always has ScheduledAt set; a failed one always carries Error.
type Message struct {
	ID          string     `json:"id"`
	Recipient   string     `json:"recipient"`
	Body        string     `json:"message"`
	Status      Status     `json:"status"`
	MessageType string     `json:"messageType"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"maxAttempts"`
	BroadcastID int64      `json:"broadcastId,omitempty"`
	TemplateID  string     `json:"templateId,omitempty"`
	Error       string     `json:"error,omitempty"`
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
	SentAt      *time.Time `json:"sentAt,omitempty"`
	FailedAt    *time.Time `json:"failedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}
