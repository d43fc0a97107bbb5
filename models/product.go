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

// Product is the internal catalog record offers map onto.
type Product struct {
	ID        int             `gorm:"primary_key" json:"id"`
	Name      string          `gorm:"size:255;not null" json:"name"`
	SKU       string          `gorm:"index;size:64" json:"sku"`
	EAN       string          `gorm:"index;size:20" json:"ean"`
	OnHand    int             `gorm:"default:0" json:"on_hand"`
	FBBStock  int             `gorm:"default:0" json:"fbb_stock"`
	ListPrice decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"list_price"`
	IsActive  *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// PricelistItem is a per-pricelist override of the product list price.
// Price export sends this value when the instance has a pricelist set.
type PricelistItem struct {
	ID          int             `gorm:"primary_key" json:"id"`
	PricelistId int             `gorm:"uniqueIndex:idx_pricelist_product,priority:1;not null" json:"pricelist_id"`
	ProductId   int             `gorm:"uniqueIndex:idx_pricelist_product,priority:2;not null" json:"product_id"`
	Price       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"price"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetProduct(ctx context.Context, id int) (*Product, error) {
	db := config.GetDB()
	var product Product
	err := db.WithContext(ctx).First(&product, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &product, nil
}

func FindProductBySKU(tx *gorm.DB, sku string) (*Product, error) {
	if sku == "" {
		return nil, utils.ErrorRecordNotFound
	}
	var product Product
	err := tx.Where("sku = ?", sku).First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &product, nil
}

func FindProductByEAN(tx *gorm.DB, ean string) (*Product, error) {
	if ean == "" {
		return nil, utils.ErrorRecordNotFound
	}
	var product Product
	err := tx.Where("ean = ?", ean).First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &product, nil
}

// CreateProductFromOffer auto-creates a catalog record for an unmapped offer
// when the instance allows it.
func CreateProductFromOffer(tx *gorm.DB, name string, sku string, ean string, price decimal.Decimal) (*Product, error) {
	if name == "" {
		name = ean
	}
	product := Product{
		Name:      name,
		SKU:       sku,
		EAN:       ean,
		ListPrice: price,
		IsActive:  utils.NewTrue(),
	}
	if err := tx.Create(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// ProductExportPrice resolves the price to publish for a product: the
// pricelist value when the instance carries one, else the list price.
func ProductExportPrice(ctx context.Context, pricelistId int, product *Product) (decimal.Decimal, error) {
	if pricelistId == 0 {
		return product.ListPrice, nil
	}
	db := config.GetDB()
	var item PricelistItem
	err := db.WithContext(ctx).
		Where("pricelist_id = ? AND product_id = ?", pricelistId, product.ID).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return product.ListPrice, nil
		}
		return decimal.Zero, err
	}
	return item.Price, nil
}

func UpdateProductFBBStock(ctx context.Context, productId int, regularStock int, gradedStock int) error {
	db := config.GetDB()
	return db.WithContext(ctx).Model(&Product{}).Where("id = ?", productId).
		Update("fbb_stock", regularStock+gradedStock).Error
}
