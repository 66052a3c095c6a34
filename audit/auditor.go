package audit

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"vaultcore/crypto"
	"vaultcore/native/token"
	"vaultcore/native/vault"
)

// Anomaly types emitted by the auditor.
const (
	AnomalyConservationBreach = "conservation_breach"
	AnomalyCustodyShortfall   = "custody_shortfall"
	AnomalyPriceBelowFloor    = "price_below_floor"
	AnomalyAdminMismatch      = "admin_mismatch"
	AnomalyRedemptionOverflow = "redemption_overflow"
)

// Source is the read surface the auditor walks. The state manager satisfies
// it directly, so the auditor runs against a node's database without a node.
type Source interface {
	VaultState() (*vault.VaultState, bool, error)
	VaultDeposit(owner crypto.Address) (*vault.VaultDeposit, bool, error)
	Depositors() ([]crypto.Address, error)
	Balance(symbol string, addr crypto.Address) (uint64, error)
	Supply(symbol string) (uint64, error)
}

// Row is one deposit record joined with its owner's token balances and the
// redemption value at the stored price.
type Row struct {
	Owner              string
	DepositedAmount    uint64
	ReceiptTokenAmount uint64
	RedemptionValue    uint64
	ReceiptBalance     uint64
	BaseBalance        uint64
}

// Anomaly flags one failed invariant with enough context to chase it down.
type Anomaly struct {
	ID     uuid.UUID `json:"id"`
	Type   string    `json:"type"`
	Detail string    `json:"detail"`
}

// Report is the outcome of one audit run over a vault database.
type Report struct {
	RunID       uuid.UUID `json:"runId"`
	GeneratedAt time.Time `json:"generatedAt"`

	Price       uint64 `json:"price"`
	PriceScale  uint64 `json:"priceScale"`
	LastUpdated int64  `json:"lastUpdated"`
	Admin       string `json:"admin"`

	TotalReceipts   uint64 `json:"totalReceipts"`
	ReceiptSupply   uint64 `json:"receiptSupply"`
	TotalRedemption uint64 `json:"totalRedemption"`
	CustodyBalance  uint64 `json:"custodyBalance"`

	Rows      []Row     `json:"-"`
	RowCount  int       `json:"rows"`
	Anomalies []Anomaly `json:"anomalies"`
}

// Clean reports whether every checked invariant held.
func (r *Report) Clean() bool {
	return len(r.Anomalies) == 0
}

// Auditor recomputes the vault's books from a state source and checks the
// conservation and custody invariants the engine is supposed to maintain.
type Auditor struct {
	source Source
	now    func() time.Time
	logger *slog.Logger
}

// NewAuditor builds an auditor over the given source.
func NewAuditor(source Source, logger *slog.Logger) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{source: source, now: time.Now, logger: logger}
}

// SetNow overrides the run timestamp source.
func (a *Auditor) SetNow(now func() time.Time) {
	if now != nil {
		a.now = now
	}
}

func (a *Auditor) flag(report *Report, kind, format string, args ...interface{}) {
	anomaly := Anomaly{ID: uuid.New(), Type: kind, Detail: fmt.Sprintf(format, args...)}
	report.Anomalies = append(report.Anomalies, anomaly)
	a.logger.Warn("audit anomaly", "type", kind, "detail", anomaly.Detail)
}

// Run walks every deposit record, recomputes redemption values at the stored
// price and checks the global invariants. It only returns an error when the
// database itself cannot be read; broken invariants land in the report.
func (a *Auditor) Run(expectedAdmin string) (*Report, error) {
	state, ok, err := a.source.VaultState()
	if err != nil {
		return nil, fmt.Errorf("audit: load vault state: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("audit: vault state not initialised in this database")
	}

	report := &Report{
		RunID:       uuid.New(),
		GeneratedAt: a.now().UTC(),
		Price:       uint64(state.Price),
		PriceScale:  vault.PriceScale,
		LastUpdated: state.LastUpdated,
		Admin:       state.Admin.String(),
	}

	if uint64(state.Price) < vault.PriceScale {
		a.flag(report, AnomalyPriceBelowFloor, "price %d below scale %d", state.Price, vault.PriceScale)
	}
	if expectedAdmin != "" && expectedAdmin != report.Admin {
		a.flag(report, AnomalyAdminMismatch, "stored admin %s, expected %s", report.Admin, expectedAdmin)
	}

	owners, err := a.source.Depositors()
	if err != nil {
		return nil, fmt.Errorf("audit: list depositors: %w", err)
	}
	for _, owner := range owners {
		dep, ok, err := a.source.VaultDeposit(owner)
		if err != nil {
			return nil, fmt.Errorf("audit: load deposit %s: %w", owner.String(), err)
		}
		if !ok {
			// Indexed but absent means a torn write; surface loudly.
			return nil, fmt.Errorf("audit: depositor index names %s but no record exists", owner.String())
		}
		row := Row{
			Owner:              dep.Owner.String(),
			DepositedAmount:    dep.DepositedAmount,
			ReceiptTokenAmount: dep.ReceiptTokenAmount,
		}
		if value, err := state.Price.Redeem(dep.ReceiptTokenAmount); err != nil {
			a.flag(report, AnomalyRedemptionOverflow, "record %s: %v", row.Owner, err)
		} else {
			row.RedemptionValue = value
			report.TotalRedemption += value
		}
		if balance, err := a.source.Balance(token.ReceiptSymbol, dep.Owner); err == nil {
			row.ReceiptBalance = balance
		}
		if balance, err := a.source.Balance(token.BaseSymbol, dep.Owner); err == nil {
			row.BaseBalance = balance
		}
		report.TotalReceipts += dep.ReceiptTokenAmount
		report.Rows = append(report.Rows, row)
	}
	report.RowCount = len(report.Rows)

	supply, err := a.source.Supply(token.ReceiptSymbol)
	if err != nil {
		return nil, fmt.Errorf("audit: load receipt supply: %w", err)
	}
	report.ReceiptSupply = supply
	if report.TotalReceipts != supply {
		a.flag(report, AnomalyConservationBreach,
			"sum of record receipts %d does not equal outstanding supply %d", report.TotalReceipts, supply)
	}

	custody, err := a.source.Balance(token.BaseSymbol, vault.DeriveAuthority(token.BaseSymbol))
	if err != nil {
		return nil, fmt.Errorf("audit: load custody balance: %w", err)
	}
	report.CustodyBalance = custody
	if custody < report.TotalRedemption {
		a.flag(report, AnomalyCustodyShortfall,
			"custody holds %d base units, full redemption needs %d", custody, report.TotalRedemption)
	}

	a.logger.Info("audit run complete",
		"runId", report.RunID.String(),
		"rows", report.RowCount,
		"anomalies", len(report.Anomalies))
	return report, nil
}
