package storage

import (
	"context"

	"dormantwatch/internal/model"
)

// Storage defines a sink for the alert delivery audit trail.
type Storage interface {
	PutDelivery(ctx context.Context, record model.DeliveryRecord) error
}
