package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type ListCustomerRequest struct {
	Name        string
	CustomerIDs []snowflake.ID
}

type ListCustomerFilter struct {
	Name        string
	CustomerIDs []snowflake.ID
}

type ListCustomerResponse struct {
	Customers []Customer `json:"customers"`
}

type SubscriptionInput struct {
	Definition string  `json:"definition" validate:"required"`
	Price      float64 `json:"price" validate:"gte=0"`
}

type CreateCustomerRequest struct {
	Name          string              `json:"name" validate:"required,max=255"`
	Email         string              `json:"email" validate:"omitempty,email"`
	Address       string              `json:"address" validate:"max=255"`
	City          string              `json:"city" validate:"max=128"`
	Province      string              `json:"province" validate:"max=128"`
	PostalCode    string              `json:"postal_code" validate:"max=32"`
	NatioMobPct   float64             `json:"natio_mob_pct" validate:"gte=0,lte=1000"`
	NatioFixPct   float64             `json:"natio_fix_pct" validate:"gte=0,lte=1000"`
	InterMobPct   float64             `json:"inter_mob_pct" validate:"gte=0,lte=1000"`
	InterFixPct   float64             `json:"inter_fix_pct" validate:"gte=0,lte=1000"`
	DdiPrice      *float64            `json:"ddi_price" validate:"omitempty,gte=0"`
	SipLines      []string            `json:"sip_lines" validate:"dive,required"`
	DdiNames      []string            `json:"ddi_names" validate:"dive,required"`
	Subscriptions []SubscriptionInput `json:"subscriptions" validate:"dive"`
}

type Service interface {
	Create(context.Context, CreateCustomerRequest) (Customer, error)
	List(context.Context, ListCustomerRequest) (ListCustomerResponse, error)
	GetByID(context.Context, string) (Customer, error)
	Delete(context.Context, string) error
	Resolver(context.Context, []snowflake.ID) (*Resolver, error)
}

var (
	ErrInvalidCustomer    = errors.New("invalid_customer")
	ErrInvalidName        = errors.New("invalid_name")
	ErrInvalidRateProfile = errors.New("invalid_rate_profile")
	ErrCustomerExists     = errors.New("customer_exists")
	ErrCustomerNotFound   = errors.New("customer_not_found")
	ErrDuplicateSipLine   = errors.New("duplicate_sip_line")
	ErrNoLineMappings     = errors.New("no_line_mappings")
)
