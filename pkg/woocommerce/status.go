package woocommerce

import (
	"fmt"

	"github.com/wooconduit/conduit/pkg/models"
)

// statusToLocal maps WooCommerce order statuses to the local vocabulary
var statusToLocal = map[string]models.OrderStatus{
	"pending":    models.OrderStatusPending,
	"on-hold":    models.OrderStatusOnHold,
	"failed":     models.OrderStatusFailed,
	"processing": models.OrderStatusProcessing,
	"completed":  models.OrderStatusCompleted,
	"cancelled":  models.OrderStatusCancelled,
	"refunded":   models.OrderStatusRefunded,
}

var statusToRemote = func() map[models.OrderStatus]string {
	m := make(map[models.OrderStatus]string, len(statusToLocal))
	for remote, local := range statusToLocal {
		m[local] = remote
	}
	return m
}()

// OrderStatusToLocal translates a remote order status
func OrderStatusToLocal(remote string) (models.OrderStatus, error) {
	local, ok := statusToLocal[remote]
	if !ok {
		return "", fmt.Errorf("unknown remote order status %q", remote)
	}
	return local, nil
}

// OrderStatusToRemote translates a local order status
func OrderStatusToRemote(local models.OrderStatus) (string, error) {
	remote, ok := statusToRemote[local]
	if !ok {
		return "", fmt.Errorf("order status %q has no remote equivalent", local)
	}
	return remote, nil
}
