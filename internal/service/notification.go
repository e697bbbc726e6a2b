package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"dispatch/internal/domain"
)

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationOrderPlaced    NotificationType = "ORDER_PLACED"
	NotificationRiderAccepted  NotificationType = "RIDER_ACCEPTED"
	NotificationOrderPickedUp  NotificationType = "ORDER_PICKED_UP"
	NotificationOrderCompleted NotificationType = "ORDER_COMPLETED"
	NotificationOrderCancelled NotificationType = "ORDER_CANCELLED"
)

// Notification represents a notification to be sent.
type Notification struct {
	Type        NotificationType
	RecipientID string // customer or rider ID
	Title       string
	Message     string
	Data        map[string]interface{}
	CreatedAt   time.Time
}

// NotificationService handles notification delivery. Delivery to devices
// (push, SMS) sits behind this boundary; the current transport is the log.
type NotificationService struct {
	logger zerolog.Logger
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(logger zerolog.Logger) *NotificationService {
	return &NotificationService{
		logger: logger.With().Str("component", "notifications").Logger(),
	}
}

// NotifyRiderAccepted tells the customer a rider has taken their order.
func (s *NotificationService) NotifyRiderAccepted(ctx context.Context, order *domain.Order, rider *domain.Rider) error {
	return s.send(ctx, Notification{
		Type:        NotificationRiderAccepted,
		RecipientID: order.CustomerID,
		Title:       "Rider Found",
		Message:     fmt.Sprintf("%s has accepted your order %s", rider.Name, order.Number),
		Data: map[string]interface{}{
			"order_id":   order.ID,
			"rider_id":   rider.ID,
			"rider_name": rider.Name,
		},
		CreatedAt: time.Now(),
	})
}

// NotifyOrderCompleted tells the customer their order is done.
func (s *NotificationService) NotifyOrderCompleted(ctx context.Context, order *domain.Order, delivery *domain.Delivery) error {
	return s.send(ctx, Notification{
		Type:        NotificationOrderCompleted,
		RecipientID: order.CustomerID,
		Title:       "Order Completed",
		Message:     fmt.Sprintf("Your order %s has been completed", order.Number),
		Data: map[string]interface{}{
			"order_id":    order.ID,
			"delivery_id": delivery.ID,
			"total":       order.Total.String(),
		},
		CreatedAt: time.Now(),
	})
}

// NotifyOrderCancelled tells the other party about a cancellation. When the
// customer cancels an accepted order the rider is told; otherwise the
// customer is.
func (s *NotificationService) NotifyOrderCancelled(ctx context.Context, order *domain.Order, delivery *domain.Delivery, cancelledBy string) error {
	var recipientID, message string

	if cancelledBy == order.CustomerID {
		if delivery == nil {
			return nil // nobody accepted yet, no one to notify
		}
		recipientID = delivery.RiderID
		message = fmt.Sprintf("The customer has cancelled order %s", order.Number)
	} else {
		recipientID = order.CustomerID
		message = fmt.Sprintf("Your order %s has been cancelled", order.Number)
	}

	return s.send(ctx, Notification{
		Type:        NotificationOrderCancelled,
		RecipientID: recipientID,
		Title:       "Order Cancelled",
		Message:     message,
		Data: map[string]interface{}{
			"order_id":     order.ID,
			"cancelled_by": cancelledBy,
		},
		CreatedAt: time.Now(),
	})
}

func (s *NotificationService) send(ctx context.Context, notification Notification) error {
	s.logger.Info().
		Str("type", string(notification.Type)).
		Str("recipient", notification.RecipientID).
		Str("title", notification.Title).
		Str("message", notification.Message).
		Msg("notification")
	return nil
}
