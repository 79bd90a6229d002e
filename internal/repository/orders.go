package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/Clark-Hu/moviestore/internal/domain"
)

// OrdersRepository stores orders with their items and runs the purchase
// aggregations.
type OrdersRepository struct {
	db dbtx
}

// OrderItemParams is one line of a new order. Price must already be the
// snapshot of the movie price.
type OrderItemParams struct {
	MovieID  int64
	Price    int
	Quantity int
}

// OrderCreateParams bundles an order header and its items.
type OrderCreateParams struct {
	UserID  string
	State   string
	Country string
	Items   []OrderItemParams
}

// PurchaseFilter restricts purchase counts to orders shipped to a state or a
// country. Both empty means every order. Limit <= 0 means no limit.
type PurchaseFilter struct {
	State   string
	Country string
	Limit   int
}

// Create inserts the order and all its items atomically. When called on a
// repository already bound to a transaction it uses a savepoint.
func (r *OrdersRepository) Create(ctx context.Context, params OrderCreateParams) (domain.Order, error) {
	if len(params.Items) == 0 {
		return domain.Order{}, fmt.Errorf("create order: %w", ErrConstraint)
	}

	total := 0
	for _, item := range params.Items {
		total += item.Price * item.Quantity
	}

	var order domain.Order
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		const orderQuery = `
            INSERT INTO orders (user_id, total, state, country)
            VALUES ($1,$2,$3,$4)
            RETURNING id, user_id, total, state, country, created_at
        `
		if err := tx.QueryRow(ctx, orderQuery, params.UserID, total, params.State, params.Country).Scan(
			&order.ID,
			&order.UserID,
			&order.Total,
			&order.State,
			&order.Country,
			&order.CreatedAt,
		); err != nil {
			return err
		}

		const itemQuery = `
            INSERT INTO items (order_id, movie_id, price, quantity)
            VALUES ($1,$2,$3,$4)
            RETURNING id
        `
		order.Items = make([]domain.Item, len(params.Items))
		batch := &pgx.Batch{}
		for i, p := range params.Items {
			order.Items[i] = domain.Item{
				OrderID:  order.ID,
				MovieID:  p.MovieID,
				Price:    p.Price,
				Quantity: p.Quantity,
			}
			item := &order.Items[i]
			batch.Queue(itemQuery, order.ID, p.MovieID, p.Price, p.Quantity).QueryRow(func(row pgx.Row) error {
				return row.Scan(&item.ID)
			})
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.Order{}, ErrNotFound
		}
		if isCheckViolation(err) {
			return domain.Order{}, ErrConstraint
		}
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}
	return order, nil
}

// ListByUser returns the user's orders, newest first, each with its items.
func (r *OrdersRepository) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	const orderQuery = `
        SELECT id, user_id, total, state, country, created_at
        FROM orders
        WHERE user_id = $1
        ORDER BY created_at DESC, id DESC
    `
	rows, err := r.db.Query(ctx, orderQuery, userID)
	if err != nil {
		return nil, err
	}
	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Order, error) {
		var o domain.Order
		err := row.Scan(&o.ID, &o.UserID, &o.Total, &o.State, &o.Country, &o.CreatedAt)
		return o, err
	})
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]int64, len(orders))
	index := make(map[int64]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
		orders[i].Items = make([]domain.Item, 0)
	}

	const itemQuery = `
        SELECT i.id, i.order_id, i.movie_id, m.name, i.price, i.quantity
        FROM items i
        JOIN movies m ON m.id = i.movie_id
        WHERE i.order_id = ANY($1)
        ORDER BY i.order_id, i.id
    `
	itemRows, err := r.db.Query(ctx, itemQuery, ids)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()
	for itemRows.Next() {
		var it domain.Item
		if err := itemRows.Scan(&it.ID, &it.OrderID, &it.MovieID, &it.MovieName, &it.Price, &it.Quantity); err != nil {
			return nil, err
		}
		pos := index[it.OrderID]
		orders[pos].Items = append(orders[pos].Items, it)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

// PurchaseCounts sums purchased quantity per movie over the orders matching
// filter. Movies without matching purchases are not returned. Rows come back
// ordered by count descending, then movie id ascending.
func (r *OrdersRepository) PurchaseCounts(ctx context.Context, filter PurchaseFilter) ([]domain.MoviePurchases, error) {
	where := make([]string, 0, 2)
	args := make([]any, 0, 2)
	if filter.State != "" {
		args = append(args, filter.State)
		where = append(where, fmt.Sprintf("o.state = $%d", len(args)))
	}
	if filter.Country != "" {
		args = append(args, filter.Country)
		where = append(where, fmt.Sprintf("o.country = $%d", len(args)))
	}

	var qb strings.Builder
	qb.WriteString(`
        SELECT m.id, m.name, m.price, m.description, m.image, m.created_at, m.updated_at,
               SUM(i.quantity)::int8 AS purchases
        FROM items i
        JOIN orders o ON o.id = i.order_id
        JOIN movies m ON m.id = i.movie_id`)
	if len(where) > 0 {
		qb.WriteString(" WHERE ")
		qb.WriteString(strings.Join(where, " AND "))
	}
	qb.WriteString(" GROUP BY m.id HAVING SUM(i.quantity) > 0 ORDER BY purchases DESC, m.id ASC")
	if filter.Limit > 0 {
		qb.WriteString(fmt.Sprintf(" LIMIT %d", filter.Limit))
	}

	rows, err := r.db.Query(ctx, qb.String(), args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.MoviePurchases, error) {
		var mp domain.MoviePurchases
		err := row.Scan(
			&mp.Movie.ID,
			&mp.Movie.Name,
			&mp.Movie.Price,
			&mp.Movie.Description,
			&mp.Movie.Image,
			&mp.Movie.CreatedAt,
			&mp.Movie.UpdatedAt,
			&mp.Purchases,
		)
		return mp, err
	})
}

// RegionalPurchaseCounts sums purchased quantity per (state, movie name) over
// orders that carry a non-blank state.
func (r *OrdersRepository) RegionalPurchaseCounts(ctx context.Context) ([]domain.RegionMovieCount, error) {
	const query = `
        SELECT o.state, m.name, SUM(i.quantity)::int8 AS purchases
        FROM orders o
        JOIN items i ON i.order_id = o.id
        JOIN movies m ON m.id = i.movie_id
        WHERE btrim(o.state) <> ''
        GROUP BY o.state, m.name
    `
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.RegionMovieCount, error) {
		var rc domain.RegionMovieCount
		err := row.Scan(&rc.State, &rc.MovieName, &rc.Count)
		return rc, err
	})
}
