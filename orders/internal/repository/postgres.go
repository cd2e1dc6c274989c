// Package repository persists orders and reads the product catalog they
// reference.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gagps/ecommerce-cx/common/database"
	"github.com/gagps/ecommerce-cx/orders/internal/models"
)

var ErrNotFound = errors.New("order not found")

// Repository is the order store used by the HTTP handlers.
type Repository interface {
	Create(ctx context.Context, o *models.Order) error
	Get(ctx context.Context, email, id string) (*models.Order, error)
	ListByEmail(ctx context.Context, email string) ([]*models.Order, error)
	ListAll(ctx context.Context) ([]*models.Order, error)
	Delete(ctx context.Context, email, id string) error
	// ProductsByIDs returns the catalog entries that exist among ids.
	ProductsByIDs(ctx context.Context, ids []string) ([]models.ProductRef, error)
}

var _ Repository = (*PostgresRepository)(nil)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const orderColumns = `id, email, product_ids, product_codes, payment, total_price, shipping_type, carrier, created_at`

func scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	err := row.Scan(&o.ID, &o.Email, &o.ProductIDs, &o.ProductCodes,
		&o.Billing.Payment, &o.Billing.TotalPrice,
		&o.Shipping.Type, &o.Shipping.Carrier, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// Create inserts o and fills in CreatedAt.
func (r *PostgresRepository) Create(ctx context.Context, o *models.Order) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	err := r.pool.QueryRow(ctx, `
		INSERT INTO orders (id, email, product_ids, product_codes, payment, total_price, shipping_type, carrier)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`,
		o.ID, o.Email, o.ProductIDs, o.ProductCodes, o.Billing.Payment, o.Billing.TotalPrice,
		o.Shipping.Type, o.Shipping.Carrier,
	).Scan(&o.CreatedAt)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, email, id string) (*models.Order, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	o, err := scanOrder(r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE email = $1 AND id = $2`, email, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	return o, nil
}

// ListByEmail returns the orders of one customer, newest first.
func (r *PostgresRepository) ListByEmail(ctx context.Context, email string) ([]*models.Order, error) {
	return r.list(ctx, `SELECT `+orderColumns+` FROM orders WHERE email = $1 ORDER BY created_at DESC, id`, email)
}

func (r *PostgresRepository) ListAll(ctx context.Context) ([]*models.Order, error) {
	return r.list(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC, id`)
}

func (r *PostgresRepository) list(ctx context.Context, q string, args ...any) ([]*models.Order, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Delete(ctx context.Context, email, id string) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `DELETE FROM orders WHERE email = $1 AND id = $2`, email, id)
	if err != nil {
		return fmt.Errorf("delete order %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) ProductsByIDs(ctx context.Context, ids []string) ([]models.ProductRef, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx, `SELECT id, code, price FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	defer rows.Close()

	var out []models.ProductRef
	for rows.Next() {
		var p models.ProductRef
		if err := rows.Scan(&p.ID, &p.Code, &p.Price); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
