package models

import (
	"context"
	"errors"
	"time"

	"github.com/oakerp/bolsync/config"
	"github.com/oakerp/bolsync/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OfferMapping links a marketplace offer to an internal product. Rows are
// upserted from the offer CSV export and consulted during order import with
// precedence offer id, then SKU reference, then EAN.
type OfferMapping struct {
	ID                int             `gorm:"primary_key" json:"id"`
	InstanceId        int             `gorm:"uniqueIndex:idx_offer_mapping,priority:1;not null" json:"instance_id"`
	OfferId           string          `gorm:"uniqueIndex:idx_offer_mapping,priority:2;size:128;not null" json:"offer_id"`
	EAN               string          `gorm:"index;size:20" json:"ean"`
	ReferenceCode     string          `gorm:"index;size:64" json:"reference_code"`
	ProductId         int             `gorm:"index" json:"product_id"`
	ConditionName     string          `gorm:"size:50" json:"condition_name"`
	FulfilmentType    string          `gorm:"size:10" json:"fulfilment_type"`
	BundlePrice       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"bundle_price"`
	StockAmount       int             `gorm:"default:0" json:"stock_amount"`
	OnHoldByRetailer  *bool           `gorm:"not null;default:false" json:"on_hold_by_retailer"`
	MutationDateTime  *time.Time      `json:"mutation_date_time"`
	LastSeenAt        *time.Time      `json:"last_seen_at"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// FindOfferMapping resolves an order item to a mapping using offer id first,
// then the retailer reference code, then the EAN.
func FindOfferMapping(tx *gorm.DB, instanceId int, offerId string, reference string, ean string) (*OfferMapping, error) {
	var mapping OfferMapping

	if offerId != "" {
		err := tx.Where("instance_id = ? AND offer_id = ?", instanceId, offerId).First(&mapping).Error
		if err == nil {
			return &mapping, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if reference != "" {
		err := tx.Where("instance_id = ? AND reference_code = ?", instanceId, reference).First(&mapping).Error
		if err == nil {
			return &mapping, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if ean != "" {
		err := tx.Where("instance_id = ? AND ean = ?", instanceId, ean).First(&mapping).Error
		if err == nil {
			return &mapping, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, utils.ErrorRecordNotFound
}

// UpsertOfferMapping refreshes one row from the offer report.
func UpsertOfferMapping(tx *gorm.DB, row *OfferMapping) error {
	var existing OfferMapping
	err := tx.Where("instance_id = ? AND offer_id = ?", row.InstanceId, row.OfferId).
		First(&existing).Error
	now := time.Now().UTC()
	row.LastSeenAt = &now
	if err == nil {
		row.ID = existing.ID
		row.ProductId = existing.ProductId
		if row.ProductId == 0 {
			row.ProductId = resolveMappingProduct(tx, row)
		}
		return tx.Model(&OfferMapping{}).Where("id = ?", existing.ID).
			Updates(row).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	row.ProductId = resolveMappingProduct(tx, row)
	return tx.Create(row).Error
}

// resolveMappingProduct looks up the internal product for a report row,
// SKU reference first, then EAN. Zero means unmapped.
func resolveMappingProduct(tx *gorm.DB, row *OfferMapping) int {
	if p, err := FindProductBySKU(tx, row.ReferenceCode); err == nil {
		return p.ID
	}
	if p, err := FindProductByEAN(tx, row.EAN); err == nil {
		return p.ID
	}
	return 0
}

func SetOfferMappingProduct(tx *gorm.DB, mappingId int, productId int) error {
	return tx.Model(&OfferMapping{}).Where("id = ?", mappingId).
		Update("product_id", productId).Error
}

// ListMappedOffers returns mappings bound to a product, the set eligible for
// stock and price export. The list is cached per instance and invalidated on
// every mapping write.
func ListMappedOffers(ctx context.Context, instanceId int) ([]*OfferMapping, error) {
	cached, err := utils.RetrieveRedisList[OfferMapping](instanceId)
	if err == nil && cached != nil {
		return cached, nil
	}

	db := config.GetDB()
	var mappings []*OfferMapping
	err = db.WithContext(ctx).
		Where("instance_id = ? AND product_id <> 0", instanceId).
		Order("id").
		Find(&mappings).Error
	if err != nil {
		return nil, err
	}

	if err := utils.StoreRedisList[OfferMapping](mappings, instanceId); err != nil {
		logger := config.GetLogger()
		config.LogError(logger, "models", "ListMappedOffers", "caching mappings failed", instanceId, err)
	}
	return mappings, nil
}

func FindMappingByEAN(ctx context.Context, instanceId int, ean string) (*OfferMapping, error) {
	db := config.GetDB()
	var mapping OfferMapping
	err := db.WithContext(ctx).
		Where("instance_id = ? AND ean = ?", instanceId, ean).
		First(&mapping).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &mapping, nil
}
