package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"cediman-be/internal/db"
	"cediman-be/internal/logger"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

type Repository interface {
	Get(ctx context.Context, orderID string) (*Order, error)
	Create(ctx context.Context, o *Order) (string, error)
	UpdateStatus(ctx context.Context, orderID string, expected, next Status, tracking, note *string) error
	Delete(ctx context.Context, orderID string) error
	ListByUser(ctx context.Context, userID string) ([]*Order, error)
	FindByPaymentReference(ctx context.Context, reference string) (*Order, error)
	AttachPaymentReference(ctx context.Context, orderID, reference string) error
	BackfillUserID(ctx context.Context, email, userID string) (int64, error)
}

const (
	constraintOrdersPkey = "orders_pkey"
	maxTransientRetries  = 2
)

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

// Older documents kept the gateway reference inside the payment JSON; the
// coalesce below is the only place that knows about it.
const selectOrder = `
	SELECT
		o.id,
		o.status,
		o.user_id,
		o.guest_email,
		o.subtotal,
		o.shipping_cost,
		o.total,
		COALESCE(NULLIF(o.payment_reference, ''), o.payment->>'reference', ''),
		o.shipping,
		o.order_date,
		o.updated_at
	FROM orders o
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*Order, error) {
	var (
		o        Order
		userID   sql.NullString
		shipping []byte
	)

	err := row.Scan(
		&o.ID,
		&o.Status,
		&userID,
		&o.GuestEmail,
		&o.Subtotal,
		&o.ShippingCost,
		&o.Total,
		&o.PaymentReference,
		&shipping,
		&o.OrderDate,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if userID.Valid && userID.String != "" {
		o.UserID = &userID.String
	}
	if len(shipping) > 0 {
		if err := json.Unmarshal(shipping, &o.Shipping); err != nil {
			return nil, fmt.Errorf("decode shipping for %s: %w", o.ID, err)
		}
	}

	return &o, nil
}

func (r *repository) Get(ctx context.Context, orderID string) (*Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, selectOrder+` WHERE o.id = $1`, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := r.loadItems(ctx, []*Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *repository) FindByPaymentReference(ctx context.Context, reference string) (*Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx,
		selectOrder+` WHERE o.payment_reference = $1 OR o.payment->>'reference' = $1 LIMIT 1`,
		reference,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := r.loadItems(ctx, []*Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *repository) ListByUser(ctx context.Context, userID string) ([]*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "ListByUser"),
		zap.String("user_id", userID),
	)

	rows, err := r.db.QueryContext(ctx, selectOrder+` WHERE o.user_id = $1 ORDER BY o.order_date DESC`, userID)
	if err != nil {
		log.Error("failed to query orders", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	orders := []*Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			log.Error("failed to scan order row", zap.Error(err))
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		log.Error("rows iteration error", zap.Error(err))
		return nil, err
	}

	if err := r.loadItems(ctx, orders); err != nil {
		log.Error("failed to load order items", zap.Error(err))
		return nil, err
	}

	log.Debug("list orders success", zap.Int("count", len(orders)))
	return orders, nil
}

func (r *repository) loadItems(ctx context.Context, orders []*Order) error {
	if len(orders) == 0 {
		return nil
	}

	byID := make(map[string]*Order, len(orders))
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, product_id, name, quantity, unit_price
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`, pq.Array(ids))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID string
			item    Item
		)
		if err := rows.Scan(&orderID, &item.ProductID, &item.Name, &item.Quantity, &item.UnitPrice); err != nil {
			return err
		}
		if o, ok := byID[orderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	return rows.Err()
}

func (r *repository) Create(ctx context.Context, o *Order) (string, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "Create"),
		zap.String("order_id", o.ID),
		zap.Int("item_count", len(o.Items)),
	)

	shipping, err := json.Marshal(o.Shipping)
	if err != nil {
		return "", fmt.Errorf("encode shipping: %w", err)
	}

	err = db.WithRetry(ctx, r.db, maxTransientRetries, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orders (
				id, status, user_id, guest_email,
				subtotal, shipping_cost, total,
				payment_reference, shipping, order_date, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)
		`,
			o.ID,
			o.Status,
			nullString(o.UserID),
			o.GuestEmail,
			o.Subtotal,
			o.ShippingCost,
			o.Total,
			nullIfEmpty(o.PaymentReference),
			shipping,
			o.OrderDate,
		)
		if err != nil {
			return err
		}

		for i, item := range o.Items {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO order_items (
					order_id, position, product_id, name, quantity, unit_price
				) VALUES ($1,$2,$3,$4,$5,$6)
			`,
				o.ID,
				i,
				item.ProductID,
				item.Name,
				item.Quantity,
				item.UnitPrice,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if db.ViolatedConstraint(err) == constraintOrdersPkey {
			log.Warn("order id collision")
			return "", ErrDuplicateOrderID
		}
		if db.IsUniqueViolation(err) {
			log.Warn("duplicate payment reference", zap.String("reference", o.PaymentReference))
			return "", ErrDuplicateReference
		}
		log.Error("failed to create order", zap.Error(err))
		return "", fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}

	log.Info("order created")
	return o.ID, nil
}

// UpdateStatus writes next only while the stored status still equals expected.
func (r *repository) UpdateStatus(
	ctx context.Context,
	orderID string,
	expected, next Status,
	tracking, note *string,
) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "UpdateStatus"),
		zap.String("order_id", orderID),
		zap.String("from", string(expected)),
		zap.String("to", string(next)),
	)

	err := db.WithRetry(ctx, r.db, maxTransientRetries, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE orders
			SET status = $1, updated_at = NOW()
			WHERE id = $2 AND status = $3
		`, next, orderID, expected)
		if err != nil {
			return err
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			var exists bool
			if err := tx.QueryRowContext(ctx,
				`SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, orderID,
			).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return ErrOrderNotFound
			}
			return ErrStatusConflict
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_status_history (
				order_id, from_status, to_status, tracking_info, note
			) VALUES ($1,$2,$3,$4,$5)
		`, orderID, expected, next, tracking, note)
		return err
	})

	switch {
	case err == nil:
		log.Info("order status updated")
		return nil
	case errors.Is(err, ErrOrderNotFound), errors.Is(err, ErrStatusConflict):
		log.Warn("order status not updated", zap.Error(err))
		return err
	default:
		log.Error("failed to update order status", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}
}

func (r *repository) Delete(ctx context.Context, orderID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// AttachPaymentReference binds reference to an unpaid order. Once an order has
// a different reference or has left confirmed, the binding is fixed.
func (r *repository) AttachPaymentReference(ctx context.Context, orderID, reference string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_reference = $1, updated_at = NOW()
		WHERE id = $2
		  AND status = $3
		  AND COALESCE(NULLIF(payment_reference, ''), payment->>'reference', '') IN ('', $1)
	`, reference, orderID, StatusConfirmed)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicateReference
		}
		return fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}

	if affected, _ := res.RowsAffected(); affected > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, orderID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}
	if !exists {
		return ErrOrderNotFound
	}
	return ErrReferenceLocked
}

// BackfillUserID claims guest orders placed with email for userID. Orders that
// already belong to an account are left alone.
func (r *repository) BackfillUserID(ctx context.Context, email, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET user_id = $1, updated_at = NOW()
		WHERE user_id IS NULL
		  AND (lower(guest_email) = lower($2) OR lower(shipping->>'email') = lower($2))
	`, userID, email)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}
	return affected, nil
}

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
