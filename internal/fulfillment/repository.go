package fulfillment

import (
	"context"
	"time"

	"github.com/talkincode/packflow/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository handles persistence of orders, products, slips and workflow runs
type Repository interface {
	// GetOrder loads an order; forUpdate takes a row lock where the database supports it
	GetOrder(ctx context.Context, id int64, forUpdate bool) (*domain.Order, error)

	SaveOrder(ctx context.Context, order *domain.Order) error

	// GetProduct returns the product of an order, nil when the order has none
	GetProduct(ctx context.Context, order *domain.Order) (*domain.Product, error)

	SaveProduct(ctx context.Context, product *domain.Product) error

	// ListProducts returns the products matching any of ids or names
	ListProducts(ctx context.Context, ids []int64, names []string) ([]domain.Product, error)

	// CreateSlip inserts any of the four slip records
	CreateSlip(ctx context.Context, slip interface{}) error

	FindRun(ctx context.Context, key string) (*domain.WorkflowRun, error)

	CreateRun(ctx context.Context, run *domain.WorkflowRun) error

	// DeleteRunsBefore removes idempotency records older than t
	DeleteRunsBefore(ctx context.Context, t time.Time) (int64, error)

	// Transaction runs fn against a repository bound to one database transaction
	Transaction(ctx context.Context, fn func(repo Repository) error) error
}

// ProductJoin joins each pf_order row to its product the same way GetProduct
// resolves it: by product_id, or by name for orders entered without one.
const ProductJoin = "LEFT JOIN pf_product ON pf_product.id = pf_order.product_id" +
	" OR (pf_order.product_id = 0 AND pf_order.product_name <> '' AND pf_product.name = pf_order.product_name)"

// GormRepository is the GORM implementation of Repository
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository creates a new GORM-based repository
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) GetOrder(ctx context.Context, id int64, forUpdate bool) (*domain.Order, error) {
	var order domain.Order
	q := r.db.WithContext(ctx)
	// sqlite has no row locks; its writers are serialized anyway
	if forUpdate && r.db.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := q.Where("id = ?", id).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *GormRepository) SaveOrder(ctx context.Context, order *domain.Order) error {
	order.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(order).Error
}

func (r *GormRepository) GetProduct(ctx context.Context, order *domain.Order) (*domain.Product, error) {
	var product domain.Product
	q := r.db.WithContext(ctx)
	var err error
	switch {
	case order.ProductID != 0:
		err = q.Where("id = ?", order.ProductID).First(&product).Error
	case order.ProductName != "":
		err = q.Where("name = ?", order.ProductName).First(&product).Error
	default:
		return nil, nil
	}
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *GormRepository) SaveProduct(ctx context.Context, product *domain.Product) error {
	product.RecomputeNetStock()
	product.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(product).Error
}

func (r *GormRepository) ListProducts(ctx context.Context, ids []int64, names []string) ([]domain.Product, error) {
	var rows []domain.Product
	q := r.db.WithContext(ctx)
	switch {
	case len(ids) > 0 && len(names) > 0:
		q = q.Where("id IN ? OR name IN ?", ids, names)
	case len(ids) > 0:
		q = q.Where("id IN ?", ids)
	case len(names) > 0:
		q = q.Where("name IN ?", names)
	default:
		return rows, nil
	}
	err := q.Find(&rows).Error
	return rows, err
}

func (r *GormRepository) CreateSlip(ctx context.Context, slip interface{}) error {
	return r.db.WithContext(ctx).Create(slip).Error
}

func (r *GormRepository) FindRun(ctx context.Context, key string) (*domain.WorkflowRun, error) {
	var run domain.WorkflowRun
	err := r.db.WithContext(ctx).Where("idem_key = ?", key).First(&run).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *GormRepository) CreateRun(ctx context.Context, run *domain.WorkflowRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *GormRepository) DeleteRunsBefore(ctx context.Context, t time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("created_at < ?", t).Delete(&domain.WorkflowRun{})
	return res.RowsAffected, res.Error
}

func (r *GormRepository) Transaction(ctx context.Context, fn func(repo Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormRepository{db: tx})
	})
}
