package models

import (
	"context"
	"time"

	"github.com/oakerp/bolsync/config"
)

const (
	PickingStatePending   = "pending"
	PickingStateDelivered = "delivered"
)

// Picking is the warehouse delivery record for a sales order. Delivered
// pickings with a tracking reference are what get pushed back to the
// marketplace as shipment confirmations.
type Picking struct {
	ID                int        `gorm:"primary_key" json:"id"`
	SalesOrderId      int        `gorm:"index;not null" json:"sales_order_id"`
	InstanceId        int        `gorm:"index;not null" json:"instance_id"`
	State             string     `gorm:"size:20;not null;default:'pending'" json:"state"`
	TransporterCode   string     `gorm:"size:50" json:"transporter_code"`
	TrackingReference string     `gorm:"size:128" json:"tracking_reference"`
	ExportedAt        *time.Time `json:"exported_at"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// ListDeliveredPickingsToExport returns delivered pickings that have not yet
// been confirmed back to the marketplace.
func ListDeliveredPickingsToExport(ctx context.Context, instanceId int, limit int) ([]*Picking, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).
		Where("instance_id = ? AND state = ? AND exported_at IS NULL",
			instanceId, PickingStateDelivered).
		Order("id")
	if limit > 0 {
		dbCtx = dbCtx.Limit(limit)
	}
	var pickings []*Picking
	err := dbCtx.Find(&pickings).Error
	return pickings, err
}

func MarkPickingExported(ctx context.Context, pickingId int) error {
	db := config.GetDB()
	now := time.Now().UTC()
	return db.WithContext(ctx).Model(&Picking{}).Where("id = ?", pickingId).
		Update("exported_at", now).Error
}
