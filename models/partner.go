package models

import (
	"strings"
	"time"

	"github.com/oakerp/bolsync/utils"
	"gorm.io/gorm"
)

// Partner is the customer behind a marketplace order. Marketplace buyers
// repeat across orders, so import first tries to reuse an existing partner
// with the same email and shipping address before creating a new one.
type Partner struct {
	ID          int       `gorm:"primary_key" json:"id"`
	Name        string    `gorm:"size:100;not null" json:"name"`
	Email       string    `gorm:"index;size:100" json:"email"`
	Phone       string    `gorm:"size:20" json:"phone"`
	Street      string    `gorm:"size:255" json:"street"`
	HouseNumber string    `gorm:"size:20" json:"house_number"`
	ZipCode     string    `gorm:"size:20" json:"zip_code"`
	City        string    `gorm:"size:100" json:"city"`
	CountryCode string    `gorm:"size:2" json:"country_code"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *Partner) matchesAddress(other *Partner) bool {
	eq := func(a, b string) bool {
		return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
	}
	return eq(p.Name, other.Name) &&
		eq(p.Street, other.Street) &&
		eq(p.HouseNumber, other.HouseNumber) &&
		eq(p.ZipCode, other.ZipCode) &&
		eq(p.City, other.City) &&
		eq(p.CountryCode, other.CountryCode)
}

// FindOrCreatePartner resolves a partner by email plus address fields.
// A matching email with a different address still creates a new partner so
// shipping labels stay correct.
func FindOrCreatePartner(tx *gorm.DB, candidate *Partner) (*Partner, error) {
	if utils.IsValidEmail(candidate.Email) {
		var existing []*Partner
		if err := tx.Where("email = ?", candidate.Email).Find(&existing).Error; err != nil {
			return nil, err
		}
		for _, p := range existing {
			if p.matchesAddress(candidate) {
				return p, nil
			}
		}
	}
	if err := tx.Create(candidate).Error; err != nil {
		return nil, err
	}
	return candidate, nil
}
