package vault

import (
	"time"

	"vaultcore/core/events"
	"vaultcore/crypto"
	nativecommon "vaultcore/native/common"
)

// engineState is the record store the engine runs against. Absent records are
// reported with ok == false, never as zero values.
type engineState interface {
	VaultState() (*VaultState, bool, error)
	PutVaultState(*VaultState) error
	VaultDeposit(owner crypto.Address) (*VaultDeposit, bool, error)
	PutVaultDeposit(*VaultDeposit) error
}

// TokenLedger executes the token movements the engine has validated. Every
// call is atomic: it fully succeeds or reports an error with no partial
// effect, and any reported error aborts the whole operation.
type TokenLedger interface {
	TransferBase(from, to crypto.Address, amount uint64) error
	ReleaseCustody(authority, to crypto.Address, amount uint64) error
	MintReceipts(authority, to crypto.Address, amount uint64) error
	BurnReceipts(from crypto.Address, amount uint64) error
	BaseBalance(addr crypto.Address) (uint64, error)
}

// InitializeVaultStateRequest creates the accounting singleton. The caller
// becomes the immutable admin.
type InitializeVaultStateRequest struct {
	Caller crypto.Address
}

// InitializeDepositRequest creates the caller's ledger record with zero
// balances.
type InitializeDepositRequest struct {
	Caller crypto.Address
}

// DepositRequest moves Amount base units from the caller into vault custody
// and mints receipts 1:1. The record target and the signing authority are
// explicit typed fields; nothing is inferred from ambient state.
type DepositRequest struct {
	Caller    crypto.Address
	Owner     crypto.Address
	Amount    uint64
	Authority crypto.Address
}

// WithdrawRequest burns ReceiptAmount receipts from the targeted record and
// releases the redemption value from custody.
type WithdrawRequest struct {
	Caller        crypto.Address
	Owner         crypto.Address
	ReceiptAmount uint64
	Authority     crypto.Address
}

// UpdatePriceRequest applies the growth formula. Admin only.
type UpdatePriceRequest struct {
	Caller crypto.Address
}

// SetLastUpdatedRequest overwrites the accrual anchor. Only honoured by
// engines built with backdating enabled; see Engine.AllowBackdate.
type SetLastUpdatedRequest struct {
	Caller      crypto.Address
	LastUpdated int64
}

// WithdrawResult reports a settled redemption.
type WithdrawResult struct {
	Deposit *VaultDeposit
	Payout  uint64
	Price   FixedPointPrice
}

// Engine orchestrates every vault state transition. It holds no record state
// of its own: records come from engineState, token movement goes through the
// TokenLedger, and the host serialises operations touching the same records.
// Validation runs front to back; the first failing check aborts the operation
// before anything is written.
type Engine struct {
	state         engineState
	ledger        TokenLedger
	authority     crypto.Address
	emitter       events.Emitter
	nowFn         func() int64
	pauses        nativecommon.PauseView
	allowBackdate bool
}

// NewEngine constructs an engine bound to the canonical custody authority,
// normally DeriveAuthority(token.BaseSymbol).
func NewEngine(authority crypto.Address) *Engine {
	return &Engine{
		authority: authority,
		emitter:   events.NoopEmitter{},
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger wires the engine to the external token ledger.
func (e *Engine) SetLedger(ledger TokenLedger) { e.ledger = ledger }

// SetEmitter configures the event sink. Passing nil restores the no-op sink.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the wall clock used for accrual anchors.
func (e *Engine) SetNowFunc(now func() int64) {
	if e == nil {
		return
	}
	e.nowFn = now
}

// SetPauses wires the administrative pause view consulted before mutations.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// AllowBackdate enables the development-only SetLastUpdated operation.
func (e *Engine) AllowBackdate(allow bool) {
	if e == nil {
		return
	}
	e.allowBackdate = allow
}

// Authority returns the canonical custody authority the engine was built with.
func (e *Engine) Authority() crypto.Address { return e.authority }

func (e *Engine) now() int64 {
	if e.nowFn != nil {
		return e.nowFn()
	}
	return time.Now().Unix()
}

func (e *Engine) emit(evt events.Event) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}

// InitializeVaultState creates the deployment singleton with price 1.0 and
// the caller as admin. Creation is not idempotent: a second call fails with
// ErrAlreadyInitialized.
func (e *Engine) InitializeVaultState(req InitializeVaultStateRequest) (*VaultState, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	if req.Caller.IsZero() {
		return nil, ErrUnauthorized
	}
	if _, ok, err := e.state.VaultState(); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrAlreadyInitialized
	}
	state := &VaultState{
		Price:       InitialPrice(),
		LastUpdated: e.now(),
		Admin:       req.Caller,
	}
	if err := e.state.PutVaultState(state); err != nil {
		return nil, err
	}
	e.emit(events.VaultStateInitialized{
		Admin:       state.Admin,
		Price:       uint64(state.Price),
		LastUpdated: state.LastUpdated,
	})
	return state.Clone(), nil
}

// InitializeDeposit creates the caller's record with zero balances. One
// record per owner; the record is never destroyed afterwards.
func (e *Engine) InitializeDeposit(req InitializeDepositRequest) (*VaultDeposit, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	if req.Caller.IsZero() {
		return nil, ErrUnauthorized
	}
	if _, ok, err := e.state.VaultDeposit(req.Caller); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrAlreadyInitialized
	}
	deposit := &VaultDeposit{Owner: req.Caller}
	if err := e.state.PutVaultDeposit(deposit); err != nil {
		return nil, err
	}
	e.emit(events.VaultDepositInitialized{Owner: deposit.Owner})
	return deposit.Clone(), nil
}

// Deposit moves amount base units from the caller into vault custody and
// mints receipts 1:1. Issuance ignores the current price; price only shapes
// redemption.
func (e *Engine) Deposit(req DepositRequest) (*VaultDeposit, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.ledger == nil {
		return nil, errNilLedger
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	if req.Amount == 0 {
		return nil, ErrZeroAmount
	}
	deposit, ok, err := e.state.VaultDeposit(req.Owner)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	if !deposit.Owner.Equal(req.Caller) {
		return nil, ErrUnauthorized
	}
	if !req.Authority.Equal(e.authority) {
		return nil, ErrConstraintViolation
	}
	newPrincipal, err := addChecked(deposit.DepositedAmount, req.Amount)
	if err != nil {
		return nil, err
	}
	newReceipts, err := addChecked(deposit.ReceiptTokenAmount, req.Amount)
	if err != nil {
		return nil, err
	}
	if err := e.ledger.TransferBase(req.Caller, e.authority, req.Amount); err != nil {
		return nil, err
	}
	deposit.DepositedAmount = newPrincipal
	deposit.ReceiptTokenAmount = newReceipts
	if err := e.state.PutVaultDeposit(deposit); err != nil {
		return nil, err
	}
	if err := e.ledger.MintReceipts(e.authority, req.Caller, req.Amount); err != nil {
		return nil, err
	}
	e.emit(events.VaultDeposited{
		Owner:          deposit.Owner,
		Amount:         req.Amount,
		Minted:         req.Amount,
		LifetimeTotal:  deposit.DepositedAmount,
		ReceiptBalance: deposit.ReceiptTokenAmount,
	})
	return deposit.Clone(), nil
}

// Withdraw burns receipts from the targeted record and releases
// payout = receipts * price / PriceScale from custody. Ownership is
// authorised against the stored record only, never against the accounts a
// request supplies. The lifetime principal field is deliberately left
// untouched.
func (e *Engine) Withdraw(req WithdrawRequest) (*WithdrawResult, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.ledger == nil {
		return nil, errNilLedger
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	if req.ReceiptAmount == 0 {
		return nil, ErrZeroAmount
	}
	state, ok, err := e.state.VaultState()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	deposit, ok, err := e.state.VaultDeposit(req.Owner)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	if !deposit.Owner.Equal(req.Caller) {
		return nil, ErrUnauthorized
	}
	if req.ReceiptAmount > deposit.ReceiptTokenAmount {
		return nil, ErrInsufficientFunds
	}
	if !req.Authority.Equal(e.authority) {
		return nil, ErrConstraintViolation
	}
	payout, err := state.Price.Redeem(req.ReceiptAmount)
	if err != nil {
		return nil, err
	}
	custody, err := e.ledger.BaseBalance(e.authority)
	if err != nil {
		return nil, err
	}
	if custody < payout {
		return nil, ErrCustodyShortfall
	}
	newReceipts, err := subChecked(deposit.ReceiptTokenAmount, req.ReceiptAmount)
	if err != nil {
		return nil, err
	}
	deposit.ReceiptTokenAmount = newReceipts
	if err := e.state.PutVaultDeposit(deposit); err != nil {
		return nil, err
	}
	if err := e.ledger.BurnReceipts(req.Caller, req.ReceiptAmount); err != nil {
		return nil, err
	}
	if err := e.ledger.ReleaseCustody(e.authority, req.Caller, payout); err != nil {
		return nil, err
	}
	e.emit(events.VaultWithdrawn{
		Owner:          deposit.Owner,
		Receipts:       req.ReceiptAmount,
		Payout:         payout,
		Price:          uint64(state.Price),
		ReceiptBalance: deposit.ReceiptTokenAmount,
	})
	return &WithdrawResult{Deposit: deposit.Clone(), Payout: payout, Price: state.Price}, nil
}

// UpdatePrice applies the simple-interest growth step over the seconds since
// LastUpdated. Only the stored admin may trigger it; a regressed clock fails
// closed rather than shrinking the price.
func (e *Engine) UpdatePrice(req UpdatePriceRequest) (*VaultState, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	state, ok, err := e.state.VaultState()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	if !state.Admin.Equal(req.Caller) {
		return nil, ErrUnauthorized
	}
	now := e.now()
	if now < state.LastUpdated {
		return nil, ErrArithmeticUnderflow
	}
	elapsed := now - state.LastUpdated
	grown, err := state.Price.Grow(elapsed)
	if err != nil {
		return nil, err
	}
	oldPrice := state.Price
	state.Price = grown
	state.LastUpdated = now
	if err := e.state.PutVaultState(state); err != nil {
		return nil, err
	}
	e.emit(events.VaultPriceUpdated{
		OldPrice:    uint64(oldPrice),
		NewPrice:    uint64(state.Price),
		Elapsed:     elapsed,
		LastUpdated: state.LastUpdated,
	})
	return state.Clone(), nil
}

// SetLastUpdated overwrites the accrual anchor so drills can simulate the
// passage of time. Engines refuse it unless backdating was enabled at
// construction; production deployments never enable it.
func (e *Engine) SetLastUpdated(req SetLastUpdatedRequest) (*VaultState, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if !e.allowBackdate {
		return nil, ErrBackdateDisabled
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	if req.LastUpdated < 0 {
		return nil, ErrArithmeticUnderflow
	}
	state, ok, err := e.state.VaultState()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	if !state.Admin.Equal(req.Caller) {
		return nil, ErrUnauthorized
	}
	state.LastUpdated = req.LastUpdated
	if err := e.state.PutVaultState(state); err != nil {
		return nil, err
	}
	e.emit(events.VaultLastUpdatedOverridden{
		Admin:       state.Admin,
		LastUpdated: state.LastUpdated,
	})
	return state.Clone(), nil
}

// State returns a snapshot of the vault singleton.
func (e *Engine) State() (*VaultState, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	state, ok, err := e.state.VaultState()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	return state.Clone(), nil
}

// DepositOf returns a snapshot of the owner's ledger record.
func (e *Engine) DepositOf(owner crypto.Address) (*VaultDeposit, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	deposit, ok, err := e.state.VaultDeposit(owner)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	return deposit.Clone(), nil
}

// PreviewRedeem prices a receipt amount at the current stored price without
// touching any record.
func (e *Engine) PreviewRedeem(receipts uint64) (uint64, error) {
	state, err := e.State()
	if err != nil {
		return 0, err
	}
	return state.Price.Redeem(receipts)
}
