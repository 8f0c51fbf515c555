package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/cdrbill/internal/clock"
	"github.com/smallbiznis/cdrbill/internal/customer/domain"
	"github.com/smallbiznis/cdrbill/internal/money"
	"github.com/smallbiznis/cdrbill/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	validate *validator.Validate
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("customer.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		validate: validator.New(),
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateCustomerRequest) (domain.Customer, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" {
		return domain.Customer{}, domain.ErrInvalidName
	}
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			if strings.HasSuffix(verrs[0].Field(), "Pct") {
				return domain.Customer{}, fmt.Errorf("%w: %s", domain.ErrInvalidRateProfile, verrs[0].Field())
			}
			return domain.Customer{}, fmt.Errorf("%w: %s", domain.ErrInvalidCustomer, verrs[0].Field())
		}
		return domain.Customer{}, fmt.Errorf("%w: %v", domain.ErrInvalidCustomer, err)
	}

	now := s.clock.Now().UTC()
	customer := domain.Customer{
		ID:          s.genID.Generate(),
		Name:        req.Name,
		Email:       req.Email,
		Address:     strings.TrimSpace(req.Address),
		City:        strings.TrimSpace(req.City),
		Province:    strings.TrimSpace(req.Province),
		PostalCode:  strings.TrimSpace(req.PostalCode),
		NatioMobPct: req.NatioMobPct,
		NatioFixPct: req.NatioFixPct,
		InterMobPct: req.InterMobPct,
		InterFixPct: req.InterFixPct,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.DdiPrice != nil {
		price := money.FromDecimal(decimal.NewFromFloat(*req.DdiPrice))
		customer.DdiPrice = &price
	}

	seen := map[string]struct{}{}
	for _, line := range req.SipLines {
		line = strings.TrimSpace(line)
		if _, ok := seen[line]; ok {
			return domain.Customer{}, fmt.Errorf("%w: %s", domain.ErrDuplicateSipLine, line)
		}
		seen[line] = struct{}{}
		customer.SipLines = append(customer.SipLines, domain.SipLine{
			ID:              s.genID.Generate(),
			CustomerID:      customer.ID,
			DescriptionName: line,
		})
	}
	for _, name := range req.DdiNames {
		customer.DdiNames = append(customer.DdiNames, domain.DdiName{
			ID:              s.genID.Generate(),
			CustomerID:      customer.ID,
			DescriptionName: strings.TrimSpace(name),
		})
	}
	for _, sub := range req.Subscriptions {
		customer.Subscriptions = append(customer.Subscriptions, domain.Subscription{
			ID:         s.genID.Generate(),
			CustomerID: customer.ID,
			Definition: strings.TrimSpace(sub.Definition),
			Price:      money.FromDecimal(decimal.NewFromFloat(sub.Price)),
		})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByName(ctx, tx, customer.Name)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrCustomerExists
		}
		return s.repo.Insert(ctx, tx, &customer)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			if strings.Contains(err.Error(), "sip_lines") {
				return domain.Customer{}, domain.ErrDuplicateSipLine
			}
			return domain.Customer{}, domain.ErrCustomerExists
		}
		return domain.Customer{}, err
	}

	s.log.Info("customer.created",
		zap.String("customer_id", customer.ID.String()),
		zap.Int("sip_lines", len(customer.SipLines)),
	)
	return customer, nil
}

func (s *Service) List(ctx context.Context, req domain.ListCustomerRequest) (domain.ListCustomerResponse, error) {
	items, err := s.repo.List(ctx, s.db, domain.ListCustomerFilter{
		Name:        strings.TrimSpace(req.Name),
		CustomerIDs: req.CustomerIDs,
	})
	if err != nil {
		return domain.ListCustomerResponse{}, err
	}

	customers := make([]domain.Customer, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		customers = append(customers, *item)
	}
	return domain.ListCustomerResponse{Customers: customers}, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Customer, error) {
	customerID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return domain.Customer{}, domain.ErrInvalidCustomer
	}

	item, err := s.repo.FindByID(ctx, s.db, customerID)
	if err != nil {
		return domain.Customer{}, err
	}
	if item == nil {
		return domain.Customer{}, domain.ErrCustomerNotFound
	}
	return *item, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	customerID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return domain.ErrInvalidCustomer
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.Delete(ctx, tx, customerID)
	})
	if err != nil {
		return err
	}
	s.log.Info("customer.deleted", zap.String("customer_id", customerID.String()))
	return nil
}

// Resolver loads every SIP line mapping, optionally restricted to the given
// customers. An empty mapping is a configuration error.
func (s *Service) Resolver(ctx context.Context, customerIDs []snowflake.ID) (*domain.Resolver, error) {
	mappings, err := s.repo.ListLineMappings(ctx, s.db, customerIDs)
	if err != nil {
		return nil, fmt.Errorf("load line mappings: %w", err)
	}
	resolver := domain.NewResolver(mappings)
	if resolver.Len() == 0 {
		return nil, domain.ErrNoLineMappings
	}
	return resolver, nil
}
