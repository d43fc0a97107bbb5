package models

import (
	"context"
	"errors"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/oakerp/bolsync/config"
	"github.com/oakerp/bolsync/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SalesOrder is the internal sales record created from a marketplace order.
// The composite unique index is what makes queue processing idempotent:
// re-importing the same external order hits a duplicate key instead of
// creating a second record.
type SalesOrder struct {
	ID               int               `gorm:"primary_key" json:"id"`
	InstanceId       int               `gorm:"uniqueIndex:idx_sales_order_external,priority:1;not null" json:"instance_id"`
	FulfilmentMethod string            `gorm:"uniqueIndex:idx_sales_order_external,priority:2;size:10;not null" json:"fulfilment_method"`
	ExternalOrderId  string            `gorm:"uniqueIndex:idx_sales_order_external,priority:3;size:128;not null" json:"external_order_id"`
	PartnerId        int               `gorm:"index;not null" json:"partner_id"`
	State            string            `gorm:"size:20;not null;default:'draft'" json:"state"`
	OrderDate        time.Time         `json:"order_date"`
	CurrencyCode     string            `gorm:"size:3;default:'EUR'" json:"currency_code"`
	AmountTotal      decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"amount_total"`
	StatusUpdatedAt  *time.Time        `json:"status_updated_at"`
	Lines            []*SalesOrderLine `gorm:"foreignKey:SalesOrderId" json:"lines,omitempty"`
	CreatedAt        time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

type SalesOrderLine struct {
	ID                int             `gorm:"primary_key" json:"id"`
	SalesOrderId      int             `gorm:"index;not null" json:"sales_order_id"`
	InstanceId        int             `gorm:"index;not null" json:"instance_id"`
	ProductId         int             `gorm:"not null" json:"product_id"`
	ExternalOrderItemId string        `gorm:"size:128" json:"external_order_item_id"`
	OfferId           string          `gorm:"size:128" json:"offer_id"`
	EAN               string          `gorm:"size:20" json:"ean"`
	Quantity          int             `gorm:"not null;default:1" json:"quantity"`
	UnitPrice         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	Commission        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"commission"`
	LatestDeliveryDate *time.Time     `json:"latest_delivery_date"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsDuplicateKeyErr reports MySQL error 1062 so callers can treat an
// existing record as an idempotent no-op instead of a failure.
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	// sqlite used by tests reports constraint violations as gorm duplicate key
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// SalesOrderExists checks the composite external identity.
func SalesOrderExists(ctx context.Context, instanceId int, fulfilmentMethod string, externalOrderId string) (bool, error) {
	db := config.GetDB()
	var count int64
	err := db.WithContext(ctx).Model(&SalesOrder{}).
		Where("instance_id = ? AND fulfilment_method = ? AND external_order_id = ?",
			instanceId, fulfilmentMethod, externalOrderId).
		Count(&count).Error
	return count > 0, err
}

func CreateSalesOrder(tx *gorm.DB, order *SalesOrder) error {
	order.State = SalesOrderStateConfirmed
	return tx.Create(order).Error
}

func AddSalesOrderLine(tx *gorm.DB, line *SalesOrderLine) error {
	return tx.Create(line).Error
}

func GetSalesOrderByExternalId(ctx context.Context, instanceId int, externalOrderId string) (*SalesOrder, error) {
	db := config.GetDB()
	var order SalesOrder
	err := db.WithContext(ctx).Preload("Lines").
		Where("instance_id = ? AND external_order_id = ?", instanceId, externalOrderId).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &order, nil
}

// ListOrdersAwaitingStatusExport returns confirmed orders whose shipment has
// not yet been pushed back to the marketplace.
func ListOrdersAwaitingStatusExport(ctx context.Context, instanceId int, limit int) ([]*SalesOrder, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Preload("Lines").
		Where("instance_id = ? AND state = ? AND status_updated_at IS NULL",
			instanceId, SalesOrderStateConfirmed).
		Order("id")
	if limit > 0 {
		dbCtx = dbCtx.Limit(limit)
	}
	var orders []*SalesOrder
	err := dbCtx.Find(&orders).Error
	return orders, err
}

func MarkOrderStatusUpdated(ctx context.Context, orderId int) error {
	db := config.GetDB()
	now := time.Now().UTC()
	return db.WithContext(ctx).Model(&SalesOrder{}).Where("id = ?", orderId).
		Updates(map[string]interface{}{
			"state":             SalesOrderStateShipped,
			"status_updated_at": now,
		}).Error
}
