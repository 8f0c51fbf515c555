package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cdrbill/internal/money"
	ratingdomain "github.com/smallbiznis/cdrbill/internal/rating/domain"
)

// Customer is a billed account with one markup percentage per call category.
type Customer struct {
	ID          snowflake.ID  `gorm:"primaryKey" json:"id"`
	Name        string        `gorm:"not null;uniqueIndex" json:"name"`
	Email       string        `gorm:"not null;default:''" json:"email,omitempty"`
	Address     string        `gorm:"not null;default:''" json:"address"`
	City        string        `gorm:"not null;default:''" json:"city"`
	Province    string        `gorm:"not null;default:''" json:"province"`
	PostalCode  string        `gorm:"not null;default:''" json:"postal_code"`
	NatioMobPct float64       `gorm:"column:natio_mob_pct;not null;default:0" json:"natio_mob_pct"`
	NatioFixPct float64       `gorm:"column:natio_fix_pct;not null;default:0" json:"natio_fix_pct"`
	InterMobPct float64       `gorm:"column:inter_mob_pct;not null;default:0" json:"inter_mob_pct"`
	InterFixPct float64       `gorm:"column:inter_fix_pct;not null;default:0" json:"inter_fix_pct"`
	DdiPrice    *money.Micros `gorm:"type:numeric(18,6)" json:"ddi_price,omitempty"`
	CreatedAt   time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time     `gorm:"not null" json:"updated_at"`

	SipLines      []SipLine      `gorm:"foreignKey:CustomerID" json:"sip_lines"`
	DdiNames      []DdiName      `gorm:"foreignKey:CustomerID" json:"ddi_names"`
	Subscriptions []Subscription `gorm:"foreignKey:CustomerID" json:"subscriptions"`
}

func (Customer) TableName() string { return "customers" }

// RateProfile returns the customer's markup percentages.
func (c Customer) RateProfile() ratingdomain.RateProfile {
	return ratingdomain.RateProfile{
		NatioMob: c.NatioMobPct,
		NatioFix: c.NatioFixPct,
		InterMob: c.InterMobPct,
		InterFix: c.InterFixPct,
	}
}

// SipLine links a carrier line identifier (the CDR description) to a customer.
type SipLine struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	CustomerID      snowflake.ID `gorm:"not null;index" json:"customer_id"`
	DescriptionName string       `gorm:"not null;uniqueIndex" json:"description_name"`
}

func (SipLine) TableName() string { return "customer_sip_lines" }

// DdiName matches carrier DID descriptions owned by a customer.
type DdiName struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	CustomerID      snowflake.ID `gorm:"not null;index" json:"customer_id"`
	DescriptionName string       `gorm:"not null" json:"description_name"`
}

func (DdiName) TableName() string { return "customer_ddi_names" }

// Subscription is a flat monthly line printed on the invoice.
type Subscription struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	CustomerID snowflake.ID `gorm:"not null;index" json:"customer_id"`
	Definition string       `gorm:"not null" json:"definition"`
	Price      money.Micros `gorm:"type:numeric(18,6);not null" json:"price"`
}

func (Subscription) TableName() string { return "customer_subscriptions" }

// LineMapping resolves one line identifier to its customer and rate profile.
type LineMapping struct {
	LineID       string
	CustomerID   snowflake.ID
	CustomerName string
	Profile      ratingdomain.RateProfile
}
