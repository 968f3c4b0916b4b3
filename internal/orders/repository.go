package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/records"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrOrderNotFound        = errors.New("order not found")
	ErrDuplicateTransaction = errors.New("order for this transaction already exists")
	ErrIllegalTransition    = errors.New("illegal order status transition")
	ErrNoLines              = errors.New("order has no lines")
)

// Repository maps orders and order_items onto the record store.
type Repository struct {
	store records.Store
	now   func() time.Time
}

func NewRepository(store records.Store) *Repository {
	return &Repository{
		store: store,
		now:   time.Now,
	}
}

// CreateHeader inserts the order header. ID and CreatedAt are assigned when
// empty; Status defaults to pending.
func (r *Repository) CreateHeader(ctx context.Context, o *domain.Order) (*domain.Order, error) {
	header := *o
	header.Lines = nil
	if header.ID == "" {
		header.ID = uuid.NewString()
	}
	if header.CreatedAt.IsZero() {
		header.CreatedAt = r.now()
	}
	if header.Status == "" {
		header.Status = domain.OrderStatusPending
	}

	address, err := json.Marshal(header.ShippingAddress)
	if err != nil {
		return nil, fmt.Errorf("marshal shipping address: %w", err)
	}

	row, err := r.store.Insert(ctx, records.TableOrders, records.Row{
		"id":               header.ID,
		"user_id":          header.UserID,
		"subtotal":         header.Subtotal,
		"discount_amount":  header.DiscountAmount,
		"shipping_fee":     header.ShippingFee,
		"total_amount":     header.TotalAmount,
		"promo_code":       header.PromoCode,
		"payment_method":   string(header.PaymentMethod),
		"payment_status":   string(header.PaymentStatus),
		"status":           string(header.Status),
		"shipping_address": string(address),
		"transaction_id":   header.TransactionID,
		"created_at":       header.CreatedAt,
		"updated_at":       header.CreatedAt,
	})
	if err != nil {
		if errors.Is(err, records.ErrUniqueViolation) && header.TransactionID != nil {
			return nil, ErrDuplicateTransaction
		}
		return nil, fmt.Errorf("insert order: %w", err)
	}

	return orderFromRow(row)
}

// CreateLines writes every line of an order in a single statement.
func (r *Repository) CreateLines(ctx context.Context, orderID string, lines []domain.OrderLine) ([]domain.OrderLine, error) {
	if len(lines) == 0 {
		return nil, ErrNoLines
	}

	rows := make([]records.Row, 0, len(lines))
	for _, l := range lines {
		rows = append(rows, records.Row{
			"id":         uuid.NewString(),
			"order_id":   orderID,
			"product_id": l.ProductID,
			"quantity":   l.Quantity,
			"price":      l.UnitPriceAtPurchase,
		})
	}

	stored, err := r.store.InsertMany(ctx, records.TableOrderItems, rows)
	if err != nil {
		return nil, fmt.Errorf("insert order items: %w", err)
	}
	return linesFromRows(stored)
}

func (r *Repository) Get(ctx context.Context, id string) (*domain.Order, error) {
	return r.findOne(ctx, records.Filter{"id": id})
}

func (r *Repository) FindByTransactionID(ctx context.Context, transactionID string) (*domain.Order, error) {
	return r.findOne(ctx, records.Filter{"transaction_id": transactionID})
}

func (r *Repository) Lines(ctx context.Context, orderID string) ([]domain.OrderLine, error) {
	rows, err := r.store.Select(ctx, records.TableOrderItems, records.Filter{"order_id": orderID})
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	return linesFromRows(rows)
}

// ListByUser returns the user's orders, newest first, with their lines.
func (r *Repository) ListByUser(ctx context.Context, userID string) ([]*domain.Order, error) {
	return r.list(ctx, records.Filter{"user_id": userID})
}

// ListAll returns every order, newest first, with their lines.
func (r *Repository) ListAll(ctx context.Context) ([]*domain.Order, error) {
	return r.list(ctx, nil)
}

// UpdateStatus moves an order along its lifecycle.
func (r *Repository) UpdateStatus(ctx context.Context, id string, to domain.OrderStatus) (*domain.Order, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrIllegalTransition, to)
	}

	order, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransitionOrder(order.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, order.Status, to)
	}

	n, err := r.store.Update(ctx, records.TableOrders,
		records.Filter{"id": id, "status": string(order.Status)},
		records.Row{"status": string(to), "updated_at": r.now()})
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}
	if n == 0 {
		// status changed underneath us
		return nil, fmt.Errorf("%w: %s is no longer %s", ErrIllegalTransition, id, order.Status)
	}

	order.Status = to
	return order, nil
}

// UpdateTotal overwrites the recorded total of an order.
func (r *Repository) UpdateTotal(ctx context.Context, id string, total decimal.Decimal) error {
	n, err := r.store.Update(ctx, records.TableOrders,
		records.Filter{"id": id},
		records.Row{"total_amount": total, "updated_at": r.now()})
	if err != nil {
		return fmt.Errorf("update order total: %w", err)
	}
	if n == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *Repository) findOne(ctx context.Context, filter records.Filter) (*domain.Order, error) {
	rows, err := r.store.Select(ctx, records.TableOrders, filter)
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrOrderNotFound
	}

	order, err := orderFromRow(rows[0])
	if err != nil {
		return nil, err
	}
	if order.Lines, err = r.Lines(ctx, order.ID); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *Repository) list(ctx context.Context, filter records.Filter) ([]*domain.Order, error) {
	rows, err := r.store.Select(ctx, records.TableOrders, filter, records.Desc("created_at"))
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}

	orders := make([]*domain.Order, 0, len(rows))
	for _, row := range rows {
		order, err := orderFromRow(row)
		if err != nil {
			return nil, err
		}
		if order.Lines, err = r.Lines(ctx, order.ID); err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func orderFromRow(row records.Row) (*domain.Order, error) {
	o := &domain.Order{
		ID:            row.String("id"),
		UserID:        row.String("user_id"),
		PromoCode:     row.String("promo_code"),
		PaymentMethod: domain.PaymentMethod(row.String("payment_method")),
		PaymentStatus: domain.PaymentStatus(row.String("payment_status")),
		Status:        domain.OrderStatus(row.String("status")),
		TransactionID: row.NullString("transaction_id"),
	}

	var err error
	if o.Subtotal, err = row.Decimal("subtotal"); err != nil {
		return nil, fmt.Errorf("order %s: %w", o.ID, err)
	}
	if o.DiscountAmount, err = row.Decimal("discount_amount"); err != nil {
		return nil, fmt.Errorf("order %s: %w", o.ID, err)
	}
	if o.ShippingFee, err = row.Decimal("shipping_fee"); err != nil {
		return nil, fmt.Errorf("order %s: %w", o.ID, err)
	}
	if o.TotalAmount, err = row.Decimal("total_amount"); err != nil {
		return nil, fmt.Errorf("order %s: %w", o.ID, err)
	}
	if o.CreatedAt, err = row.Time("created_at"); err != nil {
		return nil, fmt.Errorf("order %s: %w", o.ID, err)
	}

	if address := row.String("shipping_address"); address != "" {
		if err := json.Unmarshal([]byte(address), &o.ShippingAddress); err != nil {
			return nil, fmt.Errorf("unmarshal shipping address: %w", err)
		}
	}
	return o, nil
}

func linesFromRows(rows []records.Row) ([]domain.OrderLine, error) {
	lines := make([]domain.OrderLine, 0, len(rows))
	for _, row := range rows {
		qty, err := row.Int("quantity")
		if err != nil {
			return nil, err
		}
		price, err := row.Decimal("price")
		if err != nil {
			return nil, err
		}
		lines = append(lines, domain.OrderLine{
			OrderID:             row.String("order_id"),
			ProductID:           row.String("product_id"),
			Quantity:            qty,
			UnitPriceAtPurchase: price,
		})
	}
	return lines, nil
}
