package token

import (
	"errors"
	"math"

	"vaultcore/core/events"
	"vaultcore/crypto"
	nativecommon "vaultcore/native/common"
)

const (
	// ModuleName tags token operations in pause views, logs and metrics.
	ModuleName = "token"

	// BaseSymbol is the deposited currency, a 6-decimal fungible unit.
	BaseSymbol = "VUSD"
	// ReceiptSymbol is the vault claim token, minted 1:1 against deposits.
	ReceiptSymbol = "SVUSD"
	// Decimals applies to both assets.
	Decimals = 6
)

var (
	// ErrInvalidAmount rejects zero-amount moves.
	ErrInvalidAmount = errors.New("token ledger: amount must be positive")
	// ErrUnknownAsset rejects symbols outside {VUSD, SVUSD}.
	ErrUnknownAsset = errors.New("token ledger: unknown asset")
	// ErrInsufficientBalance rejects debits beyond the holder's balance.
	ErrInsufficientBalance = errors.New("token ledger: insufficient balance")
	// ErrAuthorityMismatch rejects mints and custody releases that do not
	// present the canonical vault authority.
	ErrAuthorityMismatch = errors.New("token ledger: vault authority required")
	// ErrSupplyOverflow fails closed when outstanding supply would exceed
	// the representable range.
	ErrSupplyOverflow = errors.New("token ledger: supply overflow")
	// ErrBalanceOverflow fails closed when a credit would push the
	// recipient's balance past the representable range.
	ErrBalanceOverflow = errors.New("token ledger: balance overflow")
	// ErrSupplyUnderflow signals a burn against corrupted supply accounting.
	ErrSupplyUnderflow = errors.New("token ledger: supply underflow")

	errNilState = errors.New("token ledger: state not configured")
)

// State is the balance store the ledger runs against. Balances and supplies
// default to zero; only vault records carry initialisation semantics.
type State interface {
	Balance(symbol string, addr crypto.Address) (uint64, error)
	SetBalance(symbol string, addr crypto.Address, amount uint64) error
	Supply(symbol string) (uint64, error)
	SetSupply(symbol string, amount uint64) error
}

// Ledger executes balance moves for the two vault assets. Each method either
// fully succeeds or reports an error having written nothing, which is what
// lets the vault engine treat ledger failures as clean aborts.
type Ledger struct {
	state     State
	authority crypto.Address
	emitter   events.Emitter
	pauses    nativecommon.PauseView
}

// NewLedger binds the ledger to its balance store and the canonical custody
// authority that mints and custody releases must present.
func NewLedger(state State, authority crypto.Address) *Ledger {
	return &Ledger{
		state:     state,
		authority: authority,
		emitter:   events.NoopEmitter{},
	}
}

// SetEmitter configures the event sink. Passing nil restores the no-op sink.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if l == nil {
		return
	}
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// SetPauses wires the administrative pause view consulted by Transfer.
// Custody legs driven by the vault engine stay exempt; the engine carries its
// own guard.
func (l *Ledger) SetPauses(p nativecommon.PauseView) {
	if l == nil {
		return
	}
	l.pauses = p
}

// Authority returns the custody authority the ledger honours.
func (l *Ledger) Authority() crypto.Address { return l.authority }

func (l *Ledger) emit(evt events.Event) {
	if l.emitter == nil {
		return
	}
	l.emitter.Emit(evt)
}

func knownAsset(symbol string) bool {
	return symbol == BaseSymbol || symbol == ReceiptSymbol
}

// Transfer moves amount units of the named asset between two holders. Either
// asset may circulate freely; transferring receipts does not touch the
// sender's vault record, so a later burn can still fail against the token
// balance even when the record shows enough receipts.
func (l *Ledger) Transfer(symbol string, from, to crypto.Address, amount uint64) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(l.pauses, ModuleName); err != nil {
		return err
	}
	return l.move(symbol, from, to, amount)
}

func (l *Ledger) move(symbol string, from, to crypto.Address, amount uint64) error {
	if !knownAsset(symbol) {
		return ErrUnknownAsset
	}
	if amount == 0 {
		return ErrInvalidAmount
	}
	fromBalance, err := l.state.Balance(symbol, from)
	if err != nil {
		return err
	}
	if fromBalance < amount {
		return ErrInsufficientBalance
	}
	toBalance, err := l.state.Balance(symbol, to)
	if err != nil {
		return err
	}
	if amount > math.MaxUint64-toBalance {
		return ErrBalanceOverflow
	}
	if err := l.state.SetBalance(symbol, from, fromBalance-amount); err != nil {
		return err
	}
	if err := l.state.SetBalance(symbol, to, toBalance+amount); err != nil {
		return err
	}
	l.emit(events.TokenTransferred{Asset: symbol, From: from, To: to, Amount: amount})
	return nil
}

// TransferBase moves base units between holders. This is the deposit leg the
// vault engine uses to pull principal into custody.
func (l *Ledger) TransferBase(from, to crypto.Address, amount uint64) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	return l.move(BaseSymbol, from, to, amount)
}

// ReleaseCustody moves base units out of the custody account. The presented
// authority must equal the canonical derivation; a user key can never release
// custody funds.
func (l *Ledger) ReleaseCustody(authority, to crypto.Address, amount uint64) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if !authority.Equal(l.authority) {
		return ErrAuthorityMismatch
	}
	return l.move(BaseSymbol, l.authority, to, amount)
}

// MintReceipts issues receipt tokens to a depositor under the vault
// authority, growing outstanding supply by the same amount.
func (l *Ledger) MintReceipts(authority, to crypto.Address, amount uint64) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if !authority.Equal(l.authority) {
		return ErrAuthorityMismatch
	}
	if amount == 0 {
		return ErrInvalidAmount
	}
	supply, err := l.state.Supply(ReceiptSymbol)
	if err != nil {
		return err
	}
	if amount > math.MaxUint64-supply {
		return ErrSupplyOverflow
	}
	balance, err := l.state.Balance(ReceiptSymbol, to)
	if err != nil {
		return err
	}
	if amount > math.MaxUint64-balance {
		return ErrBalanceOverflow
	}
	if err := l.state.SetBalance(ReceiptSymbol, to, balance+amount); err != nil {
		return err
	}
	if err := l.state.SetSupply(ReceiptSymbol, supply+amount); err != nil {
		return err
	}
	l.emit(events.TokenMinted{Asset: ReceiptSymbol, To: to, Amount: amount, Authority: authority})
	return nil
}

// BurnReceipts destroys receipt tokens held by the caller, shrinking
// outstanding supply. The holder burns only its own balance, so no authority
// is required.
func (l *Ledger) BurnReceipts(from crypto.Address, amount uint64) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if amount == 0 {
		return ErrInvalidAmount
	}
	balance, err := l.state.Balance(ReceiptSymbol, from)
	if err != nil {
		return err
	}
	if balance < amount {
		return ErrInsufficientBalance
	}
	supply, err := l.state.Supply(ReceiptSymbol)
	if err != nil {
		return err
	}
	if supply < amount {
		return ErrSupplyUnderflow
	}
	if err := l.state.SetBalance(ReceiptSymbol, from, balance-amount); err != nil {
		return err
	}
	if err := l.state.SetSupply(ReceiptSymbol, supply-amount); err != nil {
		return err
	}
	l.emit(events.TokenBurned{Asset: ReceiptSymbol, From: from, Amount: amount})
	return nil
}

// BaseBalance reports the base-asset balance of a holder. The engine uses it
// to verify custody sufficiency before releasing a payout.
func (l *Ledger) BaseBalance(addr crypto.Address) (uint64, error) {
	if l == nil || l.state == nil {
		return 0, errNilState
	}
	return l.state.Balance(BaseSymbol, addr)
}

// BalanceOf reports any holder's balance for the named asset.
func (l *Ledger) BalanceOf(symbol string, addr crypto.Address) (uint64, error) {
	if l == nil || l.state == nil {
		return 0, errNilState
	}
	if !knownAsset(symbol) {
		return 0, ErrUnknownAsset
	}
	return l.state.Balance(symbol, addr)
}

// SupplyOf reports outstanding supply for the named asset. Base supply is
// fixed by genesis; receipt supply floats with mints and burns.
func (l *Ledger) SupplyOf(symbol string) (uint64, error) {
	if l == nil || l.state == nil {
		return 0, errNilState
	}
	if !knownAsset(symbol) {
		return 0, ErrUnknownAsset
	}
	return l.state.Supply(symbol)
}
