package models

import (
	"context"
	"errors"
	"time"

	"github.com/oakerp/bolsync/config"
	"github.com/oakerp/bolsync/utils"
	"gorm.io/gorm"
)

// Instance is one connected bol.com retailer account.
type Instance struct {
	ID                    int            `gorm:"primary_key" json:"id"`
	Name                  string         `gorm:"size:100;not null" json:"name" binding:"required"`
	ClientId              string         `gorm:"size:128;not null" json:"client_id" binding:"required"`
	ClientSecret          string         `gorm:"size:255;not null" json:"-" binding:"required"`
	State                 string         `gorm:"size:20;not null;default:'draft'" json:"state"`
	Token                 string         `gorm:"type:text" json:"-"`
	TokenExpiresAt        *time.Time     `json:"-"`
	FulfilmentBy          string         `gorm:"size:10;not null;default:'FBR'" json:"fulfilment_by"`
	OrderCutoffDate       *time.Time     `json:"order_cutoff_date"`
	AutoCreateProduct     *bool          `gorm:"not null;default:false" json:"auto_create_product"`
	StockExportType       string         `gorm:"size:20;not null;default:'fix'" json:"stock_export_type"`
	StockExportValue      int            `gorm:"default:0" json:"stock_export_value"`
	PricelistId           int            `gorm:"default:0" json:"pricelist_id"`
	CreateSchedule        *bool          `gorm:"not null;default:false" json:"create_schedule"`
	ResponsibleUsers      []InstanceUser `gorm:"foreignKey:InstanceId" json:"responsible_users"`
	ShippedCursorFBR      int            `gorm:"default:1" json:"shipped_cursor_fbr"`
	ShippedCursorFBB      int            `gorm:"default:1" json:"shipped_cursor_fbb"`
	LastOrderImportAt     *time.Time     `json:"last_order_import_at"`
	LastShippedImportAt   *time.Time     `json:"last_shipped_import_at"`
	LastOfferSyncAt       *time.Time     `json:"last_offer_sync_at"`
	LastInventoryImportAt *time.Time     `json:"last_inventory_import_at"`
	CreatedAt             time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// InstanceUser links an instance to an internal user who gets the
// escalation tasks for that shop.
type InstanceUser struct {
	ID         int `gorm:"primary_key" json:"id"`
	InstanceId int `gorm:"index;not null" json:"instance_id"`
	UserId     int `gorm:"not null" json:"user_id"`
}

type NewInstance struct {
	Name               string     `json:"name" binding:"required"`
	ClientId           string     `json:"client_id" binding:"required"`
	ClientSecret       string     `json:"client_secret" binding:"required"`
	FulfilmentBy       string     `json:"fulfilment_by"`
	OrderCutoffDate    *time.Time `json:"order_cutoff_date"`
	AutoCreateProduct  bool       `json:"auto_create_product"`
	StockExportType    string     `json:"stock_export_type"`
	StockExportValue   int        `json:"stock_export_value"`
	PricelistId        int        `json:"pricelist_id"`
	CreateSchedule     bool       `json:"create_schedule"`
	ResponsibleUserIds []int      `json:"responsible_user_ids"`
}

func (input *NewInstance) validate() error {
	switch input.FulfilmentBy {
	case "", FulfilmentByFBR, FulfilmentByFBB, FulfilmentByBoth:
	default:
		return errors.New("invalid fulfilment_by")
	}
	switch input.StockExportType {
	case "", StockExportTypeFix, StockExportTypePercentage:
	default:
		return errors.New("invalid stock_export_type")
	}
	if input.StockExportType == StockExportTypePercentage && (input.StockExportValue < 0 || input.StockExportValue > 100) {
		return errors.New("stock_export_value must be 0-100 for percentage type")
	}
	return nil
}

func CreateInstance(ctx context.Context, input NewInstance) (*Instance, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	if err := utils.ValidateUnique[Instance](ctx, 0, "name", input.Name, 0); err != nil {
		return nil, err
	}

	db := config.GetDB()
	instance := Instance{
		Name:              input.Name,
		ClientId:          input.ClientId,
		ClientSecret:      input.ClientSecret,
		State:             InstanceStateDraft,
		FulfilmentBy:      input.FulfilmentBy,
		OrderCutoffDate:   input.OrderCutoffDate,
		AutoCreateProduct: &input.AutoCreateProduct,
		StockExportType:   input.StockExportType,
		StockExportValue:  input.StockExportValue,
		PricelistId:       input.PricelistId,
		CreateSchedule:    &input.CreateSchedule,
	}
	for _, userId := range utils.UniqueSlice(input.ResponsibleUserIds) {
		instance.ResponsibleUsers = append(instance.ResponsibleUsers, InstanceUser{UserId: userId})
	}
	if instance.FulfilmentBy == "" {
		instance.FulfilmentBy = FulfilmentByFBR
	}
	if instance.StockExportType == "" {
		instance.StockExportType = StockExportTypeFix
	}
	if err := db.WithContext(ctx).Create(&instance).Error; err != nil {
		return nil, err
	}
	return &instance, nil
}

func GetInstance(ctx context.Context, id int) (*Instance, error) {
	db := config.GetDB()
	var instance Instance
	if err := db.WithContext(ctx).Preload("ResponsibleUsers").First(&instance, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &instance, nil
}

func ListConnectedInstances(ctx context.Context) ([]*Instance, error) {
	db := config.GetDB()
	var instances []*Instance
	err := db.WithContext(ctx).Preload("ResponsibleUsers").
		Where("state = ?", InstanceStateConnected).Find(&instances).Error
	return instances, err
}

func SetInstanceState(ctx context.Context, id int, state string) error {
	db := config.GetDB()
	return db.WithContext(ctx).Model(&Instance{}).Where("id = ?", id).
		Update("state", state).Error
}

// UpdateInstanceToken persists the refreshed bearer token immediately so
// concurrent workers pick it up instead of refreshing again.
func UpdateInstanceToken(ctx context.Context, id int, token string, expiresAt time.Time) error {
	db := config.GetDB()
	return db.WithContext(ctx).Model(&Instance{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"token":            token,
			"token_expires_at": expiresAt,
		}).Error
}

// UpdateShippedCursor advances the persisted shipment import page for one
// fulfilment method so the next run resumes where this one stopped.
func UpdateShippedCursor(ctx context.Context, id int, fulfilmentMethod string, page int) error {
	column := "shipped_cursor_fbr"
	if fulfilmentMethod == FulfilmentByFBB {
		column = "shipped_cursor_fbb"
	}
	db := config.GetDB()
	return db.WithContext(ctx).Model(&Instance{}).Where("id = ?", id).
		Update(column, page).Error
}

func (i *Instance) ShippedCursor(fulfilmentMethod string) int {
	if fulfilmentMethod == FulfilmentByFBB {
		return i.ShippedCursorFBB
	}
	return i.ShippedCursorFBR
}

// FulfilmentMethods expands the configured mode into the list of API
// fulfilment methods to import.
func (i *Instance) FulfilmentMethods() []string {
	switch i.FulfilmentBy {
	case FulfilmentByBoth:
		return []string{FulfilmentByFBR, FulfilmentByFBB}
	case FulfilmentByFBB:
		return []string{FulfilmentByFBB}
	default:
		return []string{FulfilmentByFBR}
	}
}

func TouchInstanceSyncTime(ctx context.Context, id int, column string) error {
	db := config.GetDB()
	now := time.Now().UTC()
	return db.WithContext(ctx).Model(&Instance{}).Where("id = ?", id).
		Update(column, now).Error
}
