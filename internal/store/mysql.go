package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/SigNoz/checkout-service/internal/db"
	"github.com/SigNoz/checkout-service/internal/metrics"
	"github.com/SigNoz/checkout-service/internal/models"
)

// MySQL is the production Store. Row locks come from SELECT ... FOR UPDATE
// inside the transaction opened by WithTx.
type MySQL struct {
	mysqlReader
	db *db.DB
}

// NewMySQL creates a store over an instrumented connection pool.
func NewMySQL(database *db.DB, m *metrics.AppMetrics) *MySQL {
	return &MySQL{
		mysqlReader: mysqlReader{q: database.DB, metrics: m},
		db:          database,
	}
}

// WithTx runs fn in a transaction, committing only if fn returns nil.
func (s *MySQL) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&mysqlTx{mysqlReader{q: tx, metrics: s.metrics}}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

type mysqlReader struct {
	q       querier
	metrics *metrics.AppMetrics
}

func (r mysqlReader) exec(ctx context.Context, op, table, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := r.q.ExecContext(ctx, query, args...)
	r.metrics.RecordDBQuery(ctx, op, table, query, start, err == nil)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", op, table, err)
	}
	return res, nil
}

// execOne is exec that treats zero affected rows as not found.
func (r mysqlReader) execOne(ctx context.Context, op, table, query string, args ...any) error {
	res, err := r.exec(ctx, op, table, query, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s %s: %w", op, table, models.ErrNotFound)
	}
	return nil
}

func (r mysqlReader) query(ctx context.Context, table, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := r.q.QueryContext(ctx, query, args...)
	r.metrics.RecordDBQuery(ctx, "SELECT", table, query, start, err == nil)
	if err != nil {
		return nil, fmt.Errorf("SELECT %s: %w", table, err)
	}
	return rows, nil
}

// queryRow runs a single-row SELECT and maps sql.ErrNoRows to ErrNotFound.
func (r mysqlReader) queryRow(ctx context.Context, table, query string, args []any, scan func(scanner) error) error {
	start := time.Now()
	err := scan(r.q.QueryRowContext(ctx, query, args...))
	r.metrics.RecordDBQuery(ctx, "SELECT", table, query, start, err == nil || errors.Is(err, sql.ErrNoRows))
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", table, models.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("SELECT %s: %w", table, err)
	}
	return nil
}

// ---- products ----

const productColumns = "id, name, code, base_price, stock_quantity, updated_at"

func scanProduct(s scanner) (*models.Product, error) {
	var p models.Product
	if err := s.Scan(&p.ID, &p.Name, &p.Code, &p.BasePrice, &p.StockQuantity, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r mysqlReader) getProduct(ctx context.Context, id uuid.UUID, suffix string) (*models.Product, error) {
	var p *models.Product
	err := r.queryRow(ctx, "products", "SELECT "+productColumns+" FROM products WHERE id = ?"+suffix, []any{id},
		func(s scanner) (err error) {
			p, err = scanProduct(s)
			return err
		})
	return p, err
}

func (r mysqlReader) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	return r.getProduct(ctx, id, "")
}

func (r mysqlReader) DimensionRules(ctx context.Context, productID uuid.UUID) ([]models.DimensionRule, error) {
	rows, err := r.query(ctx, "dimension_rules",
		`SELECT id, product_id, min_length, max_length, min_breadth, max_breadth, min_height, max_height, price, multiplier, add_on
		FROM dimension_rules WHERE product_id = ?`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []models.DimensionRule
	for rows.Next() {
		var rule models.DimensionRule
		var price decimal.NullDecimal
		if err := rows.Scan(&rule.ID, &rule.ProductID, &rule.MinLength, &rule.MaxLength, &rule.MinBreadth, &rule.MaxBreadth,
			&rule.MinHeight, &rule.MaxHeight, &price, &rule.Multiplier, &rule.AddOn); err != nil {
			return nil, fmt.Errorf("failed to scan dimension rule: %w", err)
		}
		if price.Valid {
			rule.Price = &price.Decimal
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// ---- orders ----

const orderColumns = `id, user_id, guest_email, guest_phone, guest_session_key, status, total_amount, discount_amount,
	address_line1, address_city, address_state, address_zip, payment_method, stock_reserved, created_at, updated_at`

func scanOrder(s scanner) (*models.Order, error) {
	var o models.Order
	var userID uuid.NullUUID
	var email, phone, session sql.NullString
	if err := s.Scan(&o.ID, &userID, &email, &phone, &session, &o.Status, &o.TotalAmount, &o.DiscountAmount,
		&o.ShippingAddress.Line1, &o.ShippingAddress.City, &o.ShippingAddress.State, &o.ShippingAddress.ZipCode,
		&o.PaymentMethod, &o.StockReserved, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	if userID.Valid {
		o.UserID = &userID.UUID
	}
	if email.Valid {
		o.Guest = &models.GuestContact{Email: email.String, Phone: phone.String}
	}
	o.SessionKey = session.String
	return &o, nil
}

func (r mysqlReader) getOrder(ctx context.Context, id uuid.UUID, suffix string) (*models.Order, error) {
	var o *models.Order
	err := r.queryRow(ctx, "orders", "SELECT "+orderColumns+" FROM orders WHERE id = ?"+suffix, []any{id},
		func(s scanner) (err error) {
			o, err = scanOrder(s)
			return err
		})
	if err != nil {
		return nil, err
	}

	rows, err := r.query(ctx, "order_items",
		`SELECT id, order_id, product_id, product_name, product_code, length, breadth, height, unit_price, quantity
		FROM order_items WHERE order_id = ? ORDER BY product_id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var it models.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.ProductCode,
			&it.Dims.Length, &it.Dims.Breadth, &it.Dims.Height, &it.UnitPrice, &it.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		o.Items = append(o.Items, it)
	}
	return o, rows.Err()
}

func (r mysqlReader) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.getOrder(ctx, id, "")
}

// ---- payments ----

const paymentColumns = "id, order_id, gateway_order_id, gateway_payment_id, signature, amount, currency, status, created_at, updated_at"

func scanPayment(s scanner) (*models.Payment, error) {
	var p models.Payment
	var paymentID, signature sql.NullString
	if err := s.Scan(&p.ID, &p.OrderID, &p.GatewayOrderID, &paymentID, &signature, &p.Amount, &p.Currency,
		&p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.GatewayPaymentID = paymentID.String
	p.Signature = signature.String
	return &p, nil
}

func (r mysqlReader) getPayment(ctx context.Context, where string, arg any) (*models.Payment, error) {
	var p *models.Payment
	err := r.queryRow(ctx, "payments", "SELECT "+paymentColumns+" FROM payments WHERE "+where, []any{arg},
		func(s scanner) (err error) {
			p, err = scanPayment(s)
			return err
		})
	return p, err
}

func (r mysqlReader) GetPaymentByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	return r.getPayment(ctx, "order_id = ?", orderID)
}

func (r mysqlReader) GetPaymentByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Payment, error) {
	return r.getPayment(ctx, "gateway_order_id = ?", gatewayOrderID)
}

func (r mysqlReader) ListStalePayments(ctx context.Context, createdBefore time.Time, limit int) ([]models.Payment, error) {
	rows, err := r.query(ctx, "payments",
		"SELECT "+paymentColumns+" FROM payments WHERE status = ? AND created_at < ? ORDER BY created_at LIMIT ?",
		models.PaymentCreated, createdBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r mysqlReader) ListPaymentAttempts(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	rows, err := r.query(ctx, "payment_attempts",
		`SELECT id, order_id, gateway_order_id, gateway_payment_id, amount, currency, status, created_at
		FROM payment_attempts WHERE order_id = ? ORDER BY created_at`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Payment
	for rows.Next() {
		var p models.Payment
		var paymentID sql.NullString
		if err := rows.Scan(&p.ID, &p.OrderID, &p.GatewayOrderID, &paymentID, &p.Amount, &p.Currency, &p.Status, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment attempt: %w", err)
		}
		p.GatewayPaymentID = paymentID.String
		out = append(out, p)
	}
	return out, rows.Err()
}

// ---- carts ----

func ownerClause(owner models.CartOwner) (string, any) {
	if owner.UserID != nil {
		return "user_id = ?", *owner.UserID
	}
	return "session_key = ?", owner.SessionKey
}

func (r mysqlReader) getCart(ctx context.Context, owner models.CartOwner, suffix string) (*models.Cart, error) {
	where, arg := ownerClause(owner)
	var c models.Cart
	err := r.queryRow(ctx, "carts",
		"SELECT id, user_id, session_key, promo_code_id, created_at, updated_at FROM carts WHERE "+where+suffix, []any{arg},
		func(s scanner) error {
			var userID, promoID uuid.NullUUID
			var session sql.NullString
			if err := s.Scan(&c.ID, &userID, &session, &promoID, &c.CreatedAt, &c.UpdatedAt); err != nil {
				return err
			}
			if userID.Valid {
				c.Owner.UserID = &userID.UUID
			}
			c.Owner.SessionKey = session.String
			if promoID.Valid {
				c.PromoCodeID = &promoID.UUID
			}
			return nil
		})
	if err != nil {
		return nil, err
	}

	rows, err := r.query(ctx, "cart_items",
		"SELECT id, cart_id, product_id, length, breadth, height, quantity, created_at FROM cart_items WHERE cart_id = ? ORDER BY created_at",
		c.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var it models.CartItem
		if err := rows.Scan(&it.ID, &it.CartID, &it.ProductID, &it.Dims.Length, &it.Dims.Breadth, &it.Dims.Height,
			&it.Quantity, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		c.Items = append(c.Items, it)
	}
	return &c, rows.Err()
}

func (r mysqlReader) GetCart(ctx context.Context, owner models.CartOwner) (*models.Cart, error) {
	return r.getCart(ctx, owner, "")
}

// ---- promos ----

const promoColumns = `id, code, discount_type, discount_value, max_discount_amount, min_order_amount,
	valid_from, valid_until, usage_limit, usage_count, per_user_limit, is_active`

func scanPromo(s scanner) (*models.PromoCode, error) {
	var p models.PromoCode
	var maxDiscount decimal.NullDecimal
	var usageLimit sql.NullInt64
	if err := s.Scan(&p.ID, &p.Code, &p.DiscountType, &p.DiscountValue, &maxDiscount, &p.MinOrderAmount,
		&p.ValidFrom, &p.ValidUntil, &usageLimit, &p.UsageCount, &p.PerUserLimit, &p.IsActive); err != nil {
		return nil, err
	}
	if maxDiscount.Valid {
		p.MaxDiscountAmount = &maxDiscount.Decimal
	}
	if usageLimit.Valid {
		limit := int(usageLimit.Int64)
		p.UsageLimit = &limit
	}
	return &p, nil
}

func (r mysqlReader) getPromo(ctx context.Context, where string, arg any) (*models.PromoCode, error) {
	var p *models.PromoCode
	err := r.queryRow(ctx, "promo_codes", "SELECT "+promoColumns+" FROM promo_codes WHERE "+where, []any{arg},
		func(s scanner) (err error) {
			p, err = scanPromo(s)
			return err
		})
	return p, err
}

func (r mysqlReader) GetPromo(ctx context.Context, id uuid.UUID) (*models.PromoCode, error) {
	return r.getPromo(ctx, "id = ?", id)
}

// GetPromoByCode matches case-insensitively under the default collation.
func (r mysqlReader) GetPromoByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	return r.getPromo(ctx, "code = ?", code)
}

func (r mysqlReader) CountPromoUsage(ctx context.Context, promoID, userID uuid.UUID) (int, error) {
	var n int
	err := r.queryRow(ctx, "promo_usages", "SELECT COUNT(*) FROM promo_usages WHERE promo_id = ? AND user_id = ?",
		[]any{promoID, userID}, func(s scanner) error { return s.Scan(&n) })
	return n, err
}

func (r mysqlReader) ListAudit(ctx context.Context, resourceID string) ([]models.AuditEntry, error) {
	rows, err := r.query(ctx, "audit_log",
		`SELECT id, action, resource_type, resource_id, actor_id, actor_role, reason, request_id, created_at
		FROM audit_log WHERE resource_id = ? ORDER BY created_at`, resourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var actor uuid.NullUUID
		if err := rows.Scan(&e.ID, &e.Action, &e.ResourceType, &e.ResourceID, &actor, &e.ActorRole, &e.Reason,
			&e.RequestID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if actor.Valid {
			e.ActorID = &actor.UUID
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ---- transaction ----

type mysqlTx struct {
	mysqlReader
}

const forUpdate = " FOR UPDATE"

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (t *mysqlTx) LockProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	return t.getProduct(ctx, id, forUpdate)
}

func (t *mysqlTx) SetStock(ctx context.Context, id uuid.UUID, qty int) error {
	return t.execOne(ctx, "UPDATE", "products", "UPDATE products SET stock_quantity = ? WHERE id = ?", qty, id)
}

func (t *mysqlTx) InsertOrder(ctx context.Context, o *models.Order) error {
	var email, phone sql.NullString
	if o.Guest != nil {
		email, phone = nullString(o.Guest.Email), nullString(o.Guest.Phone)
	}
	_, err := t.exec(ctx, "INSERT", "orders",
		`INSERT INTO orders (id, user_id, guest_email, guest_phone, guest_session_key, status, total_amount, discount_amount,
		address_line1, address_city, address_state, address_zip, payment_method, stock_reserved, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, nullUUID(o.UserID), email, phone, nullString(o.SessionKey), o.Status, o.TotalAmount, o.DiscountAmount,
		o.ShippingAddress.Line1, o.ShippingAddress.City, o.ShippingAddress.State, o.ShippingAddress.ZipCode,
		o.PaymentMethod, o.StockReserved, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return err
	}

	const itemQuery = `INSERT INTO order_items (id, order_id, product_id, product_name, product_code, length, breadth, height, unit_price, quantity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for _, it := range o.Items {
		if _, err := t.exec(ctx, "INSERT", "order_items", itemQuery, it.ID, o.ID, it.ProductID, it.ProductName, it.ProductCode,
			it.Dims.Length, it.Dims.Breadth, it.Dims.Height, it.UnitPrice, it.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func (t *mysqlTx) LockOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return t.getOrder(ctx, id, forUpdate)
}

func (t *mysqlTx) UpdateOrderStatus(ctx context.Context, o *models.Order) error {
	return t.execOne(ctx, "UPDATE", "orders", "UPDATE orders SET status = ?, stock_reserved = ?, updated_at = ? WHERE id = ?",
		o.Status, o.StockReserved, o.UpdatedAt, o.ID)
}

func (t *mysqlTx) SetStockReserved(ctx context.Context, orderID uuid.UUID, reserved bool) error {
	return t.execOne(ctx, "UPDATE", "orders", "UPDATE orders SET stock_reserved = ? WHERE id = ?", reserved, orderID)
}

func (t *mysqlTx) InsertPayment(ctx context.Context, p *models.Payment) error {
	_, err := t.exec(ctx, "INSERT", "payments",
		`INSERT INTO payments (id, order_id, gateway_order_id, gateway_payment_id, signature, amount, currency, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.OrderID, p.GatewayOrderID, nullString(p.GatewayPaymentID), nullString(p.Signature), p.Amount, p.Currency,
		p.Status, p.CreatedAt, p.UpdatedAt)
	return err
}

func (t *mysqlTx) LockPaymentByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	return t.getPayment(ctx, "order_id = ?"+forUpdate, orderID)
}

func (t *mysqlTx) UpdatePayment(ctx context.Context, p *models.Payment) error {
	return t.execOne(ctx, "UPDATE", "payments",
		"UPDATE payments SET gateway_payment_id = ?, signature = ?, status = ?, updated_at = ? WHERE id = ?",
		nullString(p.GatewayPaymentID), nullString(p.Signature), p.Status, p.UpdatedAt, p.ID)
}

func (t *mysqlTx) ArchivePayment(ctx context.Context, p *models.Payment) error {
	if _, err := t.exec(ctx, "INSERT", "payment_attempts",
		`INSERT INTO payment_attempts (id, order_id, gateway_order_id, gateway_payment_id, amount, currency, status, created_at)
		SELECT id, order_id, gateway_order_id, gateway_payment_id, amount, currency, status, created_at FROM payments WHERE id = ?`,
		p.ID); err != nil {
		return err
	}
	return t.execOne(ctx, "DELETE", "payments", "DELETE FROM payments WHERE id = ?", p.ID)
}

func (t *mysqlTx) LockCart(ctx context.Context, owner models.CartOwner) (*models.Cart, error) {
	return t.getCart(ctx, owner, forUpdate)
}

func (t *mysqlTx) CreateCart(ctx context.Context, c *models.Cart) error {
	if err := c.Owner.Validate(); err != nil {
		return err
	}
	_, err := t.exec(ctx, "INSERT", "carts",
		"INSERT INTO carts (id, user_id, session_key, promo_code_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		c.ID, nullUUID(c.Owner.UserID), nullString(c.Owner.SessionKey), nullUUID(c.PromoCodeID), c.CreatedAt, c.UpdatedAt)
	return err
}

func (t *mysqlTx) SaveCartItem(ctx context.Context, it *models.CartItem) error {
	_, err := t.exec(ctx, "INSERT", "cart_items",
		`INSERT INTO cart_items (id, cart_id, product_id, length, breadth, height, quantity, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?) ON DUPLICATE KEY UPDATE quantity = VALUES(quantity)`,
		it.ID, it.CartID, it.ProductID, it.Dims.Length, it.Dims.Breadth, it.Dims.Height, it.Quantity, it.CreatedAt)
	return err
}

func (t *mysqlTx) DeleteCartItem(ctx context.Context, cartID, itemID uuid.UUID) error {
	return t.execOne(ctx, "DELETE", "cart_items", "DELETE FROM cart_items WHERE id = ? AND cart_id = ?", itemID, cartID)
}

func (t *mysqlTx) SetCartPromo(ctx context.Context, cartID uuid.UUID, promoID *uuid.UUID) error {
	_, err := t.exec(ctx, "UPDATE", "carts", "UPDATE carts SET promo_code_id = ? WHERE id = ?", nullUUID(promoID), cartID)
	return err
}

func (t *mysqlTx) ClearCart(ctx context.Context, cartID uuid.UUID) error {
	if _, err := t.exec(ctx, "DELETE", "cart_items", "DELETE FROM cart_items WHERE cart_id = ?", cartID); err != nil {
		return err
	}
	_, err := t.exec(ctx, "UPDATE", "carts", "UPDATE carts SET promo_code_id = NULL WHERE id = ?", cartID)
	return err
}

func (t *mysqlTx) DeleteCart(ctx context.Context, cartID uuid.UUID) error {
	return t.execOne(ctx, "DELETE", "carts", "DELETE FROM carts WHERE id = ?", cartID)
}

func (t *mysqlTx) LockPromo(ctx context.Context, id uuid.UUID) (*models.PromoCode, error) {
	return t.getPromo(ctx, "id = ?"+forUpdate, id)
}

func (t *mysqlTx) IncrementPromoUsage(ctx context.Context, id uuid.UUID) error {
	return t.execOne(ctx, "UPDATE", "promo_codes", "UPDATE promo_codes SET usage_count = usage_count + 1 WHERE id = ?", id)
}

func (t *mysqlTx) InsertPromoUsage(ctx context.Context, u *models.PromoUsage) error {
	_, err := t.exec(ctx, "INSERT", "promo_usages",
		"INSERT INTO promo_usages (id, promo_id, user_id, order_id, discount_amount, used_at) VALUES (?, ?, ?, ?, ?, ?)",
		u.ID, u.PromoID, nullUUID(u.UserID), u.OrderID, u.DiscountAmount, u.UsedAt)
	return err
}

func (t *mysqlTx) AppendAudit(ctx context.Context, e *models.AuditEntry) error {
	_, err := t.exec(ctx, "INSERT", "audit_log",
		`INSERT INTO audit_log (id, action, resource_type, resource_id, actor_id, actor_role, reason, request_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Action, e.ResourceType, e.ResourceID, nullUUID(e.ActorID), e.ActorRole, e.Reason, e.RequestID, e.CreatedAt)
	return err
}
