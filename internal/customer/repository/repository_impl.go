package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cdrbill/internal/customer/domain"
	ratingdomain "github.com/smallbiznis/cdrbill/internal/rating/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, customer *domain.Customer) error {
	err := db.WithContext(ctx).Exec(
		`INSERT INTO customers (id, name, email, address, city, province, postal_code,
		   natio_mob_pct, natio_fix_pct, inter_mob_pct, inter_fix_pct, ddi_price, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		customer.ID,
		customer.Name,
		customer.Email,
		customer.Address,
		customer.City,
		customer.Province,
		customer.PostalCode,
		customer.NatioMobPct,
		customer.NatioFixPct,
		customer.InterMobPct,
		customer.InterFixPct,
		customer.DdiPrice,
		customer.CreatedAt,
		customer.UpdatedAt,
	).Error
	if err != nil {
		return err
	}

	if len(customer.SipLines) > 0 {
		if err := db.WithContext(ctx).Create(&customer.SipLines).Error; err != nil {
			return err
		}
	}
	if len(customer.DdiNames) > 0 {
		if err := db.WithContext(ctx).Create(&customer.DdiNames).Error; err != nil {
			return err
		}
	}
	if len(customer.Subscriptions) > 0 {
		if err := db.WithContext(ctx).Create(&customer.Subscriptions).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Customer, error) {
	var customers []*domain.Customer
	err := withChildren(db.WithContext(ctx)).
		Where("id = ?", id).
		Limit(1).
		Find(&customers).Error
	if err != nil {
		return nil, err
	}
	if len(customers) == 0 {
		return nil, nil
	}
	return customers[0], nil
}

func (r *repo) FindByName(ctx context.Context, db *gorm.DB, name string) (*domain.Customer, error) {
	var customer domain.Customer
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, email, address, city, province, postal_code,
		   natio_mob_pct, natio_fix_pct, inter_mob_pct, inter_fix_pct, ddi_price, created_at, updated_at
		 FROM customers WHERE name = ?`,
		name,
	).Scan(&customer).Error
	if err != nil {
		return nil, err
	}
	if customer.ID == 0 {
		return nil, nil
	}
	return &customer, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListCustomerFilter) ([]*domain.Customer, error) {
	var customers []*domain.Customer
	stmt := withChildren(db.WithContext(ctx).Model(&domain.Customer{}))
	if filter.Name != "" {
		stmt = stmt.Where("name = ?", filter.Name)
	}
	if len(filter.CustomerIDs) > 0 {
		stmt = stmt.Where("id IN ?", filter.CustomerIDs)
	}
	if err := stmt.Order("name asc, id asc").Find(&customers).Error; err != nil {
		return nil, err
	}
	return customers, nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	for _, table := range []string{"customer_subscriptions", "customer_sip_lines", "customer_ddi_names"} {
		if err := db.WithContext(ctx).Exec(`DELETE FROM `+table+` WHERE customer_id = ?`, id).Error; err != nil {
			return err
		}
	}
	res := db.WithContext(ctx).Exec(`DELETE FROM customers WHERE id = ?`, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrCustomerNotFound
	}
	return nil
}

type lineMappingRow struct {
	LineID       string
	CustomerID   snowflake.ID
	CustomerName string
	NatioMobPct  float64
	NatioFixPct  float64
	InterMobPct  float64
	InterFixPct  float64
}

func (r *repo) ListLineMappings(ctx context.Context, db *gorm.DB, customerIDs []snowflake.ID) ([]domain.LineMapping, error) {
	query := `SELECT l.description_name AS line_id, c.id AS customer_id, c.name AS customer_name,
		   c.natio_mob_pct, c.natio_fix_pct, c.inter_mob_pct, c.inter_fix_pct
		 FROM customer_sip_lines l
		 JOIN customers c ON c.id = l.customer_id`
	args := []any{}
	if len(customerIDs) > 0 {
		query += ` WHERE c.id IN ?`
		args = append(args, customerIDs)
	}
	query += ` ORDER BY l.description_name ASC`

	var rows []lineMappingRow
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}

	mappings := make([]domain.LineMapping, 0, len(rows))
	for _, row := range rows {
		mappings = append(mappings, domain.LineMapping{
			LineID:       row.LineID,
			CustomerID:   row.CustomerID,
			CustomerName: row.CustomerName,
			Profile: ratingdomain.RateProfile{
				NatioMob: row.NatioMobPct,
				NatioFix: row.NatioFixPct,
				InterMob: row.InterMobPct,
				InterFix: row.InterFixPct,
			},
		})
	}
	return mappings, nil
}

func withChildren(db *gorm.DB) *gorm.DB {
	return db.
		Preload("SipLines").
		Preload("DdiNames").
		Preload("Subscriptions")
}
