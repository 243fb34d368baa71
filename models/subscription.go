package models

import (
	"strings"
	"time"
)

// SubscriptionStatus is the normalized billing state of an account.
type SubscriptionStatus string

const (
	SubActive   SubscriptionStatus = "active"
	SubTrialing SubscriptionStatus = "trialing"
	SubPastDue  SubscriptionStatus = "past_due"
	SubPaused   SubscriptionStatus = "paused"
	SubCanceled SubscriptionStatus = "canceled"
	SubInactive SubscriptionStatus = "inactive"
	SubUnknown  SubscriptionStatus = "unknown"
)

// Subscription mirrors the billing provider's view of an account. It is written by the
// billing webhook (outside this service) and only read here.
type Subscription struct {
	UserID    string    `gorm:"primaryKey;size:64" json:"user_id"`
	Provider  string    `gorm:"size:32" json:"provider"`
	Status    string    `gorm:"size:32" json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NormalizeSubscriptionStatus maps provider spellings onto SubscriptionStatus.
func NormalizeSubscriptionStatus(raw string) SubscriptionStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "active":
		return SubActive
	case "trialing":
		return SubTrialing
	case "past_due":
		return SubPastDue
	case "paused":
		return SubPaused
	case "canceled", "cancelled":
		return SubCanceled
	case "inactive", "none":
		return SubInactive
	}
	return SubUnknown
}

// Active is true for statuses that permit check-ins.
func (s SubscriptionStatus) Active() bool {
	return s == SubActive || s == SubTrialing
}

// All lists every table owned by this service, in migration order.
func All() []interface{} {
	return []interface{}{
		&MonitoredPerson{},
		&EscalationContact{},
		&Checkin{},
		&DeliveryAttempt{},
		&Message{},
		&AuditLog{},
		&Subscription{},
	}
}
