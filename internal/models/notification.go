package models

import "time"

// NotificationKind identifies the event a notification reports.
type NotificationKind string

// Notification kinds emitted by the enrollment workflow.
const (
	NotificationSubmitted NotificationKind = "enrollment.submitted"
	NotificationApproved  NotificationKind = "enrollment.approved"
	NotificationRejected  NotificationKind = "enrollment.rejected"
)

// Notification is handed to the external sender after a transaction commits.
type Notification struct {
	Kind      NotificationKind  `json:"kind"`
	Recipient string            `json:"recipient"`
	Payload   map[string]string `json:"payload"`
	CreatedAt time.Time         `json:"created_at"`
}
