/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the cash domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Amounts go out as fixed two-decimal strings ("900.00"). Amounts come in as
  JSON numbers or strings; shopspring/decimal accepts both.

COUNTS:
  Denomination counts are JSON objects keyed by face value:
    {"500": 2, "100": 5}

VALIDATION:
  Request shape is checked with go-playground/validator struct tags. The
  cash package re-validates domain rules (denomination membership,
  non-negative counts, percent <= 100).

SEE ALSO:
  - handlers.go: Uses these types
  - validation.go: Validator setup
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/tender-engine/cash"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }

// =============================================================================
// DRAWERS
// =============================================================================

// DrawerKeyDTO identifies a till for one store/company/day.
type DrawerKeyDTO struct {
	StoreCode   string `json:"store_code" validate:"required,max=32"`
	CompanyCode string `json:"company_code" validate:"required,max=32"`
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
}

func (d DrawerKeyDTO) key() (cash.DrawerKey, error) {
	date, err := cash.ParseBusinessDate(d.Date)
	if err != nil {
		return cash.DrawerKey{}, err
	}
	return cash.DrawerKey{StoreCode: d.StoreCode, CompanyCode: d.CompanyCode, Date: date}, nil
}

func toDrawerKeyDTO(k cash.DrawerKey) DrawerKeyDTO {
	return DrawerKeyDTO{StoreCode: k.StoreCode, CompanyCode: k.CompanyCode, Date: k.Date.String()}
}

// DrawerDTO is the live till.
type DrawerDTO struct {
	DrawerKeyDTO
	Available cash.Counts `json:"available"`
	Total     string      `json:"total"`
	Version   int64       `json:"version"`
}

func toDrawerDTO(s cash.DrawerSnapshot) DrawerDTO {
	return DrawerDTO{
		DrawerKeyDTO: toDrawerKeyDTO(s.Key),
		Available:    s.Available,
		Total:        money(s.Available.Total()),
		Version:      s.Version,
	}
}

// DenominationsDTO lists the configured note/coin values, largest first.
type DenominationsDTO struct {
	Denominations []int64 `json:"denominations"`
}

// =============================================================================
// BILLS
// =============================================================================

// CreateBillRequest registers a bill header.
type CreateBillRequest struct {
	BillNo       string          `json:"bill_no" validate:"required,max=64"`
	SalesmanName string          `json:"salesman_name" validate:"max=128"`
	Date         string          `json:"date" validate:"required,datetime=2006-01-02"`
	Amount       decimal.Decimal `json:"amount"`
}

// BillDTO is a bill header.
type BillDTO struct {
	BillNo       string `json:"bill_no"`
	SalesmanName string `json:"salesman_name,omitempty"`
	Date         string `json:"date"`
	Amount       string `json:"amount"`
}

func toBillDTO(b cash.Bill) BillDTO {
	return BillDTO{BillNo: b.BillNo, SalesmanName: b.SalesmanName, Date: b.Date.String(), Amount: money(b.Amount)}
}

// =============================================================================
// TENDER SESSIONS
// =============================================================================

// OpenTenderRequest opens a session for a bill against a drawer.
type OpenTenderRequest struct {
	BillNo string `json:"bill_no" validate:"required,max=64"`
	DrawerKeyDTO
}

// CollectionRequest records collected notes. Either a single
// denomination/count pair or a counts object.
type CollectionRequest struct {
	Denomination *int64      `json:"denomination" validate:"required_without=Counts,omitempty,gt=0"`
	Count        *int64      `json:"count" validate:"required_with=Denomination,omitempty,gte=0,lte=1000000"`
	Counts       cash.Counts `json:"counts" validate:"required_without=Denomination,omitempty,dive,lte=1000000"`
}

func (r CollectionRequest) entries() cash.Counts {
	if r.Denomination != nil && r.Count != nil {
		return cash.Counts{cash.Denomination(*r.Denomination): *r.Count}
	}
	return r.Counts
}

// AdjustmentRequest changes one input of the adjustment chain.
type AdjustmentRequest struct {
	Field string          `json:"field" validate:"required,oneof=bill_amount discount_percent discount_amount round_off scrap_amount sales_return_amount"`
	Value decimal.Decimal `json:"value"`
}

// DeductionRequest settles a scrap or sales-return bill against this one.
type DeductionRequest struct {
	Kind      string `json:"kind" validate:"required,oneof=scrap sales_return"`
	RefBillNo string `json:"ref_bill_no" validate:"required,max=64"`
}

// InstrumentsRequest sets non-cash payments. Omitted fields are unchanged.
type InstrumentsRequest struct {
	UPI  *decimal.Decimal `json:"upi"`
	Card *decimal.Decimal `json:"card"`
}

// BillStateDTO is the adjustment chain.
type BillStateDTO struct {
	BillAmount        string `json:"bill_amount"`
	DiscountPercent   string `json:"discount_percent"`
	DiscountAmount    string `json:"discount_amount"`
	GrandTotal        string `json:"grand_total"`
	RoundOff          string `json:"round_off"`
	ScrapAmount       string `json:"scrap_amount"`
	SalesReturnAmount string `json:"sales_return_amount"`
	NetAmount         string `json:"net_amount"`
}

func toBillStateDTO(b cash.BillState) BillStateDTO {
	return BillStateDTO{
		BillAmount:        money(b.BillAmount),
		DiscountPercent:   money(b.DiscountPercent),
		DiscountAmount:    money(b.DiscountAmount),
		GrandTotal:        money(b.GrandTotal),
		RoundOff:          money(b.RoundOff),
		ScrapAmount:       money(b.ScrapAmount),
		SalesReturnAmount: money(b.SalesReturnAmount),
		NetAmount:         money(b.NetAmount),
	}
}

// TenderSessionDTO is the full state of an open (or just closed) session.
type TenderSessionDTO struct {
	ID                string       `json:"id"`
	BillNo            string       `json:"bill_no"`
	Drawer            DrawerKeyDTO `json:"drawer"`
	State             string       `json:"state"`
	Bill              BillStateDTO `json:"bill"`
	UPI               string       `json:"upi"`
	Card              string       `json:"card"`
	CashDue           string       `json:"cash_due"`
	CollectedTotal    string       `json:"collected_total"`
	Balance           string       `json:"balance"`
	IssuedTotal       string       `json:"issued_total"`
	Shortfall         string       `json:"shortfall"`
	ShortfallAccepted bool         `json:"shortfall_accepted"`
	Collected         cash.Counts  `json:"collected"`
	Issue             cash.Counts  `json:"issue"`
	Closing           cash.Counts  `json:"closing"`
	LedgerVersion     int64        `json:"ledger_version"`
	LedgerFetchedAt   string       `json:"ledger_fetched_at,omitempty"`
}

func toSessionDTO(id string, s *cash.TenderSession) TenderSessionDTO {
	dto := TenderSessionDTO{
		ID:                id,
		BillNo:            s.BillNo(),
		Drawer:            toDrawerKeyDTO(s.Drawer()),
		State:             string(s.State()),
		Bill:              toBillStateDTO(s.Bill()),
		UPI:               money(s.UPIAmount()),
		Card:              money(s.CardAmount()),
		CashDue:           money(s.CashDue()),
		CollectedTotal:    money(s.CollectedTotal()),
		Balance:           money(s.Balance()),
		IssuedTotal:       money(s.IssuedTotal()),
		Shortfall:         money(s.Shortfall()),
		ShortfallAccepted: s.ShortfallAccepted(),
		Collected:         s.Collected(),
		Issue:             s.Issue(),
		Closing:           s.Closing(),
	}
	if ledger, ok := s.Ledger(); ok {
		dto.LedgerVersion = ledger.Version
		dto.LedgerFetchedAt = ledger.FetchedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

// TenderRecordDTO is a finalized tender.
type TenderRecordDTO struct {
	ID             string       `json:"id"`
	BillNo         string       `json:"bill_no"`
	Drawer         DrawerKeyDTO `json:"drawer"`
	NetAmount      string       `json:"net_amount"`
	CollectedTotal string       `json:"collected_total"`
	IssuedTotal    string       `json:"issued_total"`
	UPI            string       `json:"upi"`
	Card           string       `json:"card"`
	Shortfall      string       `json:"shortfall"`
	Collected      cash.Counts  `json:"collected"`
	Issue          cash.Counts  `json:"issue"`
	ClosingLedger  cash.Counts  `json:"closing_ledger"`
	LedgerVersion  int64        `json:"ledger_version"`
	FinalizedAt    string       `json:"finalized_at"`
}

func toRecordDTO(r cash.TenderRecord) TenderRecordDTO {
	return TenderRecordDTO{
		ID:             r.ID,
		BillNo:         r.BillNo,
		Drawer:         toDrawerKeyDTO(r.Drawer),
		NetAmount:      money(r.NetAmount),
		CollectedTotal: money(r.CollectedTotal),
		IssuedTotal:    money(r.IssuedTotal),
		UPI:            money(r.UPIAmount),
		Card:           money(r.CardAmount),
		Shortfall:      money(r.Shortfall),
		Collected:      r.Collected,
		Issue:          r.Issue,
		ClosingLedger:  r.ClosingLedger,
		LedgerVersion:  r.LedgerVersion,
		FinalizedAt:    r.FinalizedAt.UTC().Format(time.RFC3339),
	}
}

// =============================================================================
// DAY CASH
// =============================================================================

// DayCashRequest posts an opening or closing count.
type DayCashRequest struct {
	DrawerKeyDTO
	Counts     cash.Counts `json:"counts" validate:"required"`
	RecordedBy string      `json:"recorded_by" validate:"max=64"`
}

// DayCashDTO is a day's counts and their reconciliation.
type DayCashDTO struct {
	DrawerKeyDTO
	Opening         cash.Counts `json:"opening,omitempty"`
	Closing         cash.Counts `json:"closing,omitempty"`
	OpeningRevision int         `json:"opening_revision"`
	ClosingRevision int         `json:"closing_revision"`
	OpeningTotal    string      `json:"opening_total"`
	ClosingTotal    string      `json:"closing_total"`
	Variance        string      `json:"variance"`
	// Discrepancy is closing minus live drawer per denomination; present only
	// when both exist and disagree.
	Discrepancy cash.Counts `json:"discrepancy,omitempty"`
	DrawerTotal string      `json:"drawer_total,omitempty"`
}

func toDayCashDTO(rec *cash.DayCashRecord) DayCashDTO {
	sum := rec.Summary()
	return DayCashDTO{
		DrawerKeyDTO:    toDrawerKeyDTO(rec.Key),
		Opening:         rec.Opening,
		Closing:         rec.Closing,
		OpeningRevision: rec.OpeningRevision,
		ClosingRevision: rec.ClosingRevision,
		OpeningTotal:    money(sum.OpeningTotal),
		ClosingTotal:    money(sum.ClosingTotal),
		Variance:        money(sum.Variance),
	}
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}
