package enums

import "fmt"

// NotificationType names the order events users are told about.
type NotificationType string

const (
	NotificationTypeOrderCreated      NotificationType = "order_created"
	NotificationTypeOrderStarted      NotificationType = "order_started"
	NotificationTypeOrderCancelled    NotificationType = "order_cancelled"
	NotificationTypeOrderDelivered    NotificationType = "order_delivered"
	NotificationTypeRevisionRequested NotificationType = "revision_requested"
	NotificationTypeRevisionAccepted  NotificationType = "revision_accepted"
	NotificationTypeRevisionDeclined  NotificationType = "revision_declined"
	NotificationTypeAutoPaymentArmed  NotificationType = "auto_payment_armed"
	NotificationTypeOrderCompleted    NotificationType = "order_completed"
	NotificationTypePaymentReceived   NotificationType = "payment_received"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeOrderCreated,
	NotificationTypeOrderStarted,
	NotificationTypeOrderCancelled,
	NotificationTypeOrderDelivered,
	NotificationTypeRevisionRequested,
	NotificationTypeRevisionAccepted,
	NotificationTypeRevisionDeclined,
	NotificationTypeAutoPaymentArmed,
	NotificationTypeOrderCompleted,
	NotificationTypePaymentReceived,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
