package store

import "context"

const getActiveProductByCode = `
SELECT id, code, name, description, amount, currency, stripe_price_id, active, created_at, updated_at
FROM products
WHERE code = $1 AND active = TRUE
`

// GetActiveProductByCode returns the active product with the given code.
// Inactive products are indistinguishable from missing ones so the catalog
// structure is not leaked to callers.
func (q *Queries) GetActiveProductByCode(ctx context.Context, code string) (Product, error) {
	row := q.db.QueryRow(ctx, getActiveProductByCode, code)
	var p Product
	err := row.Scan(
		&p.ID, &p.Code, &p.Name, &p.Description, &p.Amount, &p.Currency,
		&p.StripePriceID, &p.Active, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

const listActiveProducts = `
SELECT id, code, name, description, amount, currency, stripe_price_id, active, created_at, updated_at
FROM products
WHERE active = TRUE
ORDER BY code
LIMIT $1 OFFSET $2
`

// ListActiveProducts returns a page of active catalog products.
func (q *Queries) ListActiveProducts(ctx context.Context, limit, offset int32) ([]Product, error) {
	rows, err := q.db.Query(ctx, listActiveProducts, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(
			&p.ID, &p.Code, &p.Name, &p.Description, &p.Amount, &p.Currency,
			&p.StripePriceID, &p.Active, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}
