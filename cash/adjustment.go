/*
adjustment.go - Bill adjustment chain

PURPOSE:
  Derives the net amount a customer pays from the bill amount and the
  adjustments an operator enters at the counter.

EVALUATION ORDER (fixed):
  gross -> discount% -> discount amount -> grand total -> round-off
        -> scrap deduction -> sales-return deduction -> net amount

  1. DiscountAmount = round2(BillAmount × DiscountPercent / 100)
  2. GrandTotal     = BillAmount − DiscountAmount
  3. NetAmount      = round2(GrandTotal + RoundOff − ScrapAmount − SalesReturnAmount)

RECOMPUTATION:
  A change to a field re-runs every step downstream of it and never touches
  anything upstream. Recompute(state) is RecomputeFrom(state, FieldBillAmount)
  and is idempotent.

ROUNDING:
  Half away from zero at 2 places (decimal.Round). Negative net amounts are
  refunds and are never clamped.

SEE ALSO:
  - session.go: Feeds NetAmount into the tender balance
*/
package cash

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// BillState is the full set of inputs and derived values of the chain.
type BillState struct {
	BillAmount        decimal.Decimal
	DiscountPercent   decimal.Decimal
	DiscountAmount    decimal.Decimal
	GrandTotal        decimal.Decimal
	RoundOff          decimal.Decimal
	ScrapAmount       decimal.Decimal
	SalesReturnAmount decimal.Decimal
	NetAmount         decimal.Decimal
}

// NewBillState returns the derived state for a bill with no adjustments.
func NewBillState(billAmount decimal.Decimal) BillState {
	return Recompute(BillState{BillAmount: billAmount})
}

// Field names an input of the adjustment chain.
type Field string

const (
	FieldBillAmount        Field = "bill_amount"
	FieldDiscountPercent   Field = "discount_percent"
	FieldDiscountAmount    Field = "discount_amount"
	FieldRoundOff          Field = "round_off"
	FieldScrapAmount       Field = "scrap_amount"
	FieldSalesReturnAmount Field = "sales_return_amount"
)

// step returns the first rule (1..3) a change to f must re-run.
func (f Field) step() (int, bool) {
	switch f {
	case FieldBillAmount, FieldDiscountPercent:
		return 1, true
	case FieldDiscountAmount:
		return 2, true
	case FieldRoundOff, FieldScrapAmount, FieldSalesReturnAmount:
		return 3, true
	}
	return 0, false
}

// ParseField validates an externally supplied field name.
func ParseField(s string) (Field, error) {
	f := Field(s)
	if _, ok := f.step(); !ok {
		return "", &ValidationError{Field: "field", Value: s, Reason: "unknown adjustment field"}
	}
	return f, nil
}

// Recompute re-derives every value from BillAmount onwards.
func Recompute(s BillState) BillState {
	return RecomputeFrom(s, FieldBillAmount)
}

// RecomputeFrom re-derives the values downstream of changed.
func RecomputeFrom(s BillState, changed Field) BillState {
	from, ok := changed.step()
	if !ok {
		from = 1
	}
	if from <= 1 {
		s.DiscountAmount = round2(s.BillAmount.Mul(s.DiscountPercent).Div(hundred))
	}
	if from <= 2 {
		s.GrandTotal = s.BillAmount.Sub(s.DiscountAmount)
	}
	s.NetAmount = round2(s.GrandTotal.Add(s.RoundOff).Sub(s.ScrapAmount).Sub(s.SalesReturnAmount))
	return s
}

// Apply sets one input field and recomputes downstream of it.
//
// Bill amount, discount and deduction amounts must be non-negative; round-off
// may be negative.
func Apply(s BillState, field Field, value decimal.Decimal) (BillState, error) {
	if field != FieldRoundOff && value.IsNegative() {
		return s, &ValidationError{Field: string(field), Value: value.String(), Reason: "must not be negative"}
	}
	switch field {
	case FieldBillAmount:
		s.BillAmount = value
	case FieldDiscountPercent:
		if value.GreaterThan(hundred) {
			return s, &ValidationError{Field: string(field), Value: value.String(), Reason: "must not exceed 100"}
		}
		s.DiscountPercent = value
	case FieldDiscountAmount:
		s.DiscountAmount = round2(value)
	case FieldRoundOff:
		s.RoundOff = round2(value)
	case FieldScrapAmount:
		s.ScrapAmount = round2(value)
	case FieldSalesReturnAmount:
		s.SalesReturnAmount = round2(value)
	default:
		return s, &ValidationError{Field: "field", Value: string(field), Reason: "unknown adjustment field"}
	}
	return RecomputeFrom(s, field), nil
}

// DeductionKind selects which deduction a referenced bill settles.
type DeductionKind string

const (
	DeductionScrap       DeductionKind = "scrap"
	DeductionSalesReturn DeductionKind = "sales_return"
)

func (k DeductionKind) field() (Field, error) {
	switch k {
	case DeductionScrap:
		return FieldScrapAmount, nil
	case DeductionSalesReturn:
		return FieldSalesReturnAmount, nil
	}
	return "", &ValidationError{Field: "kind", Value: string(k), Reason: "expected scrap or sales_return"}
}

// ResolveDeduction looks up the tendered amount of a scrap or sales-return
// bill and applies it as a deduction.
func ResolveDeduction(ctx context.Context, bills BillSource, s BillState, kind DeductionKind, refBillNo string) (BillState, error) {
	field, err := kind.field()
	if err != nil {
		return s, err
	}
	if refBillNo == "" {
		return s, &ValidationError{Field: "ref_bill_no", Reason: "required"}
	}
	amount, err := bills.TenderAmountForBill(ctx, refBillNo)
	if err != nil {
		return s, fmt.Errorf("resolve %s deduction %s: %w", kind, refBillNo, err)
	}
	return Apply(s, field, amount)
}

func round2(d decimal.Decimal) decimal.Decimal { return d.Round(2) }
