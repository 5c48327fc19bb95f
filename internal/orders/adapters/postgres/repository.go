package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/dejobratic/laborders/internal/orders/domain"
	"github.com/dejobratic/laborders/internal/orders/ports"
)

const orderColumns = `id::text, lab, patient, customer, state, status, services, version, created_at, updated_at`

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// serviceDocument is the JSONB shape of a service item.
type serviceDocument struct {
	Name   string          `json:"name"`
	Value  decimal.Decimal `json:"value"`
	Status string          `json:"status"`
}

func (r *Repository) Create(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if err := order.Validate(); err != nil {
		return nil, fmt.Errorf("reject order: %w", err)
	}

	services, err := encodeServices(order.Services)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO orders (lab, patient, customer, state, status, services)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id::text, version, created_at, updated_at
	`

	err = r.pool.QueryRow(ctx, query,
		order.Lab,
		order.Patient,
		order.Customer,
		string(order.State),
		string(order.Status),
		services,
	).Scan(&order.ID, &order.Version, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	return &order, nil
}

func (r *Repository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ports.ErrNotFound
	}

	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("select order: %w", err)
	}

	return order, nil
}

// List reads the requested page and the matching count concurrently.
func (r *Repository) List(ctx context.Context, filter ports.ListFilter) (ports.ListResult, error) {
	var stateFilter *string
	if filter.State != nil {
		s := string(*filter.State)
		stateFilter = &s
	}

	var limit *int
	if filter.Limit > 0 {
		limit = &filter.Limit
	}

	skip := filter.Skip
	if skip < 0 {
		skip = 0
	}

	result := ports.ListResult{Items: []domain.Order{}}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		query := `
			SELECT ` + orderColumns + `
			FROM orders
			WHERE ($1::text IS NULL OR state = $1)
			ORDER BY created_at DESC, id DESC
			LIMIT $2 OFFSET $3
		`

		rows, err := r.pool.Query(gctx, query, stateFilter, limit, skip)
		if err != nil {
			return fmt.Errorf("query orders: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			order, err := scanOrder(rows)
			if err != nil {
				return fmt.Errorf("scan order: %w", err)
			}
			result.Items = append(result.Items, *order)
		}

		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate orders: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		query := `SELECT count(*) FROM orders WHERE ($1::text IS NULL OR state = $1)`

		var total int64
		if err := r.pool.QueryRow(gctx, query, stateFilter).Scan(&total); err != nil {
			return fmt.Errorf("count orders: %w", err)
		}
		result.Total = int(total)
		return nil
	})

	if err := g.Wait(); err != nil {
		return ports.ListResult{}, err
	}

	return result, nil
}

// Save writes the mutable fields of an order when its version is unchanged.
func (r *Repository) Save(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if err := order.Validate(); err != nil {
		return nil, fmt.Errorf("reject order: %w", err)
	}
	if _, err := uuid.Parse(order.ID); err != nil {
		return nil, ports.ErrNotFound
	}

	services, err := encodeServices(order.Services)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE orders
		SET state = $1, status = $2, services = $3, version = version + 1, updated_at = now()
		WHERE id = $4 AND version = $5
		RETURNING version, created_at, updated_at
	`

	err = r.pool.QueryRow(ctx, query,
		string(order.State),
		string(order.Status),
		services,
		order.ID,
		order.Version,
	).Scan(&order.Version, &order.CreatedAt, &order.UpdatedAt)
	if err == nil {
		return &order, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update order: %w", err)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, order.ID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check order existence: %w", err)
	}
	if !exists {
		return nil, ports.ErrNotFound
	}
	return nil, ports.ErrVersionConflict
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		order    domain.Order
		state    string
		status   string
		services []byte
	)

	if err := row.Scan(
		&order.ID,
		&order.Lab,
		&order.Patient,
		&order.Customer,
		&state,
		&status,
		&services,
		&order.Version,
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		return nil, err
	}

	order.State = domain.OrderState(state)
	order.Status = domain.OrderStatus(status)

	items, err := decodeServices(services)
	if err != nil {
		return nil, err
	}
	order.Services = items

	return &order, nil
}

func encodeServices(items []domain.ServiceItem) ([]byte, error) {
	docs := make([]serviceDocument, len(items))
	for i, item := range items {
		docs[i] = serviceDocument{
			Name:   item.Name,
			Value:  item.Value,
			Status: string(item.Status),
		}
	}

	data, err := json.Marshal(docs)
	if err != nil {
		return nil, fmt.Errorf("encode services: %w", err)
	}
	return data, nil
}

func decodeServices(data []byte) ([]domain.ServiceItem, error) {
	var docs []serviceDocument
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("decode services: %w", err)
	}

	items := make([]domain.ServiceItem, len(docs))
	for i, doc := range docs {
		items[i] = domain.ServiceItem{
			Name:   doc.Name,
			Value:  doc.Value,
			Status: domain.ServiceStatus(doc.Status),
		}
	}
	return items, nil
}

var _ ports.OrderRepository = (*Repository)(nil)
