/*
sales.go - Sale events feeding the points ledger

PURPOSE:
  Thin trigger that converts a recorded sale into an earn entry, and a
  cancelled sale into the matching negative adjustment. Sales themselves
  live in an external system; this recorder only sees the event.

CONVERSION:
  points = floor(sale amount * rate). A sale too small to reach one
  point earns nothing and appends no entry.

REVERSAL:
  Cancelling recomputes the original earn from the same sale data and
  adjusts it away. If the user already spent those points the adjustment
  fails with InvalidAdjustment; the caller decides how to settle.
*/
package loyalty

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Sale is the event handed in by the sales subsystem.
type Sale struct {
	ID          string
	UserID      string
	Amount      decimal.Decimal
	Description string
}

// SaleResult reports the ledger movement a sale event produced.
type SaleResult struct {
	SaleID      string
	UserID      string
	PointsMoved int // negative for cancellations
	Balance     int
}

// SaleRecorder turns sale events into points ledger entries.
type SaleRecorder struct {
	points *PointsLedger
	rate   decimal.Decimal // points earned per currency unit
	log    *zap.Logger
}

// DefaultPointsRate awards one point per currency unit.
var DefaultPointsRate = decimal.NewFromInt(1)

func NewSaleRecorder(points *PointsLedger, rate decimal.Decimal, log *zap.Logger) *SaleRecorder {
	if log == nil {
		log = zap.NewNop()
	}
	if !rate.IsPositive() {
		rate = DefaultPointsRate
	}
	return &SaleRecorder{points: points, rate: rate, log: log}
}

// RecordSale awards points for a completed sale.
func (r *SaleRecorder) RecordSale(ctx context.Context, sale Sale) (*SaleResult, error) {
	if err := validateSale(sale); err != nil {
		return nil, err
	}

	earned := int(sale.Amount.Mul(r.rate).IntPart())
	if earned == 0 {
		account, err := r.points.Account(ctx, sale.UserID)
		if err != nil {
			return nil, err
		}
		return &SaleResult{SaleID: sale.ID, UserID: sale.UserID, PointsMoved: 0, Balance: account.Balance}, nil
	}

	desc := sale.Description
	if desc == "" {
		desc = "sale " + sale.ID
	}
	account, err := r.points.Earn(ctx, sale.UserID, earned, "sale", sale.ID, desc)
	if err != nil {
		return nil, err
	}
	return &SaleResult{SaleID: sale.ID, UserID: sale.UserID, PointsMoved: earned, Balance: account.Balance}, nil
}

// CancelSale reverses the points a completed sale earned.
func (r *SaleRecorder) CancelSale(ctx context.Context, sale Sale) (*SaleResult, error) {
	if err := validateSale(sale); err != nil {
		return nil, err
	}

	earned := int(sale.Amount.Mul(r.rate).IntPart())
	if earned == 0 {
		account, err := r.points.Account(ctx, sale.UserID)
		if err != nil {
			return nil, err
		}
		return &SaleResult{SaleID: sale.ID, UserID: sale.UserID, PointsMoved: 0, Balance: account.Balance}, nil
	}

	account, err := r.points.Adjust(ctx, sale.UserID, -earned, "sale", sale.ID, "sale cancelled")
	if err != nil {
		return nil, err
	}

	r.log.Info("sale reversal recorded",
		zap.String("sale_id", sale.ID),
		zap.String("user_id", sale.UserID),
		zap.Int("points", -earned))
	return &SaleResult{SaleID: sale.ID, UserID: sale.UserID, PointsMoved: -earned, Balance: account.Balance}, nil
}

func validateSale(sale Sale) error {
	if sale.ID == "" {
		return &ValidationError{Field: "sale_id", Reason: "must not be empty"}
	}
	if sale.UserID == "" {
		return &ValidationError{Field: "user_id", Reason: "must not be empty"}
	}
	if !sale.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	return nil
}
