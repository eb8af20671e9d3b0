package postgresql

import (
	"context"

	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/db"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/repository"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/storage"
)

type ProductRepo struct {
	db db.DB
}

func NewProductRepo(db db.DB) storage.ProductRepository {
	return &ProductRepo{db: db}
}

func (r *ProductRepo) List(ctx context.Context) ([]*repository.Product, error) {
	var products []*repository.Product
	err := r.db.Select(ctx, &products, `
        SELECT id, name, category_id, requires_setting, updated_at
        FROM products
        ORDER BY name ASC
    `)
	return products, err
}
