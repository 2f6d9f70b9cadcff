package catalog

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryPort abstracts product persistence.
type RepositoryPort interface {
	Upsert(ctx context.Context, product Product) (Product, error)
	Get(ctx context.Context, id int64) (Product, error)
	List(ctx context.Context) ([]Product, error)
}

// Repository persists products in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Upsert inserts or updates a product keyed by SKU.
func (r *Repository) Upsert(ctx context.Context, product Product) (Product, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO products (sku, name, list_purchase_price)
VALUES ($1,$2,$3)
ON CONFLICT (sku) DO UPDATE SET name=EXCLUDED.name, list_purchase_price=EXCLUDED.list_purchase_price
RETURNING id`, product.SKU, product.Name, product.ListPurchasePrice).Scan(&product.ID)
	return product, err
}

// Get fetches a product by id.
func (r *Repository) Get(ctx context.Context, id int64) (Product, error) {
	var product Product
	err := r.pool.QueryRow(ctx, `SELECT id, sku, name, list_purchase_price::text FROM products WHERE id=$1`, id).
		Scan(&product.ID, &product.SKU, &product.Name, &product.ListPurchasePrice)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	return product, nil
}

// List fetches all products ordered by id.
func (r *Repository) List(ctx context.Context) ([]Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, sku, name, list_purchase_price::text FROM products ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var products []Product
	for rows.Next() {
		var product Product
		if err := rows.Scan(&product.ID, &product.SKU, &product.Name, &product.ListPurchasePrice); err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, rows.Err()
}

// MemoryRepository is the embedded counterpart used without a database.
type MemoryRepository struct {
	mu       sync.RWMutex
	products map[int64]Product
	bySKU    map[string]int64
	nextID   int64
}

// NewMemoryRepository builds an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{products: make(map[int64]Product), bySKU: make(map[string]int64)}
}

// Upsert inserts or updates a product keyed by SKU.
func (r *MemoryRepository) Upsert(ctx context.Context, product Product) (Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.bySKU[product.SKU]; ok {
		product.ID = id
	} else {
		r.nextID++
		product.ID = r.nextID
		r.bySKU[product.SKU] = product.ID
	}
	r.products[product.ID] = product
	return product, nil
}

// Get fetches a product by id.
func (r *MemoryRepository) Get(ctx context.Context, id int64) (Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	product, ok := r.products[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return product, nil
}

// List fetches all products ordered by id.
func (r *MemoryRepository) List(ctx context.Context) ([]Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	products := make([]Product, 0, len(r.products))
	for _, product := range r.products {
		products = append(products, product)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}
