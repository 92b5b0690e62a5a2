package repositories

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/wooconduit/conduit/pkg/database"
	"github.com/wooconduit/conduit/pkg/models"
	"github.com/wooconduit/conduit/pkg/tracing"
)

const paymentsTable = "payment_entries"

var paymentStruct = database.NewStruct(new(models.PaymentEntry))

// PaymentRepository handles database operations for payment entries
type PaymentRepository struct {
	*Repository
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db database.DB, logger ectologger.Logger) *PaymentRepository {
	return &PaymentRepository{
		Repository: NewRepository(db, logger),
	}
}

// Create creates a payment entry
func (r *PaymentRepository) Create(ctx context.Context, payment *models.PaymentEntry) error {
	ctx, span := tracing.StartSpan(ctx, "PaymentRepository.Create")
	defer span.End()

	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(paymentsTable).
		Cols("id", "order_id", "bank_account", "method", "amount", "currency", "paid_at", "reference", "created_at").
		Values(payment.ID, payment.OrderID, payment.BankAccount, payment.Method, payment.Amount, payment.Currency,
			payment.PaidAt, payment.Reference, sqlbuilder.Raw("NOW()")).
		Returning("created_at")

	query, args := ib.Build()
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&payment.CreatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"order_id": payment.OrderID,
		}).Error("failed to create payment entry")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create payment entry")
	}

	return nil
}

// ExistsForOrder reports whether the order already has a payment linked
func (r *PaymentRepository) ExistsForOrder(ctx context.Context, orderID uuid.UUID) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "PaymentRepository.ExistsForOrder")
	defer span.End()

	var count int
	query := `SELECT COUNT(1) FROM payment_entries WHERE order_id = $1`
	if err := r.DB().GetContext(ctx, &count, query, orderID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"order_id": orderID,
		}).Error("failed to count payment entries")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count payment entries")
	}

	return count > 0, nil
}

// ListByOrder returns the payment entries for an order
func (r *PaymentRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.PaymentEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "PaymentRepository.ListByOrder")
	defer span.End()

	sb := paymentStruct.SelectFrom(paymentsTable)
	sb.Where(sb.Equal("order_id", orderID))
	sb.OrderBy("paid_at")

	query, args := sb.Build()
	payments := []models.PaymentEntry{}
	if err := r.DB().SelectContext(ctx, &payments, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"order_id": orderID,
		}).Error("failed to list payment entries")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list payment entries")
	}

	return payments, nil
}
