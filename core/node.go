package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"vaultcore/core/events"
	"vaultcore/core/state"
	"vaultcore/crypto"
	nativecommon "vaultcore/native/common"
	"vaultcore/native/token"
	"vaultcore/native/vault"
	"vaultcore/observability"
	"vaultcore/observability/metrics"
	"vaultcore/storage"
)

var (
	// ErrHalted is returned for every operation once a commit failure has
	// left durability in doubt. The daemon is expected to exit and restart
	// from the last committed state.
	ErrHalted = errors.New("node: state halted after failed commit")
	// ErrNonceReplayed rejects a signed request whose nonce does not
	// advance past the caller's last committed nonce.
	ErrNonceReplayed = errors.New("node: nonce already used")
)

// Operation labels used for metrics and logs.
const (
	opInitializeState   = "initialize_state"
	opInitializeDeposit = "initialize_deposit"
	opDeposit           = "deposit"
	opWithdraw          = "withdraw"
	opUpdatePrice       = "update_price"
	opSetLastUpdated    = "set_last_updated"
	opTransfer          = "transfer"
)

// Node owns the vault state machine: one state manager over the database, the
// token ledger and vault engine bound to it, and the event broker fed after
// every successful commit. All mutating operations are serialised behind
// stateMu and either commit atomically or leave no trace.
type Node struct {
	db     storage.Database
	state  *state.Manager
	ledger *token.Ledger
	engine *vault.Engine

	buffer *events.Buffer
	broker *events.Broker

	logger  *slog.Logger
	metrics *metrics.VaultMetrics

	stateMu sync.Mutex
	halted  bool
}

// NodeOptions carry the boot-time switches resolved from configuration.
type NodeOptions struct {
	Pauses        nativecommon.PauseView
	AllowBackdate bool
	Logger        *slog.Logger
}

// NewNode wires the ledger and engine to a fresh state manager over db. The
// custody authority is derived from the base asset symbol, never configured.
func NewNode(db storage.Database, opts NodeOptions) *Node {
	manager := state.NewManager(db)
	authority := vault.DeriveAuthority(token.BaseSymbol)

	ledger := token.NewLedger(manager, authority)
	ledger.SetPauses(opts.Pauses)

	engine := vault.NewEngine(authority)
	engine.SetState(manager)
	engine.SetLedger(ledger)
	engine.SetPauses(opts.Pauses)
	engine.AllowBackdate(opts.AllowBackdate)

	buffer := events.NewBuffer()
	engine.SetEmitter(buffer)
	ledger.SetEmitter(buffer)

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Node{
		db:      db,
		state:   manager,
		ledger:  ledger,
		engine:  engine,
		buffer:  buffer,
		broker:  events.NewBroker(),
		logger:  logger,
		metrics: metrics.Vault(),
	}
}

// Authority returns the derived custody authority address.
func (n *Node) Authority() crypto.Address {
	return n.engine.Authority()
}

// ApplyGenesis funds the configured base-asset balances exactly once. It
// reports whether this call performed the write.
func (n *Node) ApplyGenesis(allocs []state.GenesisAlloc) (bool, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if n.halted {
		return false, ErrHalted
	}

	applied, err := n.state.GenesisApplied()
	if err != nil {
		return false, err
	}
	if applied {
		return false, nil
	}
	if err := n.state.ApplyGenesis(token.BaseSymbol, allocs); err != nil {
		n.state.Discard()
		return false, err
	}
	if err := n.commit("genesis"); err != nil {
		return false, err
	}
	n.logger.Info("genesis applied", "allocations", len(allocs))
	return true, nil
}

// consumeNonce stages the caller's nonce bump. The bump commits or discards
// together with the operation, so a failed operation does not burn its nonce.
func (n *Node) consumeNonce(caller crypto.Address, nonce uint64) error {
	current, err := n.state.AccountNonce(caller)
	if err != nil {
		return err
	}
	if nonce <= current {
		return fmt.Errorf("%w: nonce %d, last %d", ErrNonceReplayed, nonce, current)
	}
	return n.state.SetAccountNonce(caller, nonce)
}

func (n *Node) abort(op string, err error) error {
	n.state.Discard()
	n.buffer.Reset()
	n.metrics.ObserveOperation(op, err)
	return err
}

func (n *Node) commit(op string) error {
	if err := n.state.Commit(); err != nil {
		n.halted = true
		n.buffer.Reset()
		n.logger.Error("state commit failed, halting node", "operation", op, "error", err)
		return fmt.Errorf("%w: %v", ErrHalted, err)
	}
	n.flushEvents()
	return nil
}

func (n *Node) flushEvents() {
	for _, env := range n.buffer.Drain() {
		n.broker.Publish(env)
		observability.Events().RecordEvent(env.Type)
		if env.Type == events.TypeTokenTransferred {
			observability.Events().RecordTransfer(env.Attributes["asset"])
		}
	}
}

func (n *Node) refreshGauges() {
	if st, err := n.engine.State(); err == nil {
		n.metrics.SetPrice(uint64(st.Price))
	}
	if supply, err := n.ledger.SupplyOf(token.ReceiptSymbol); err == nil {
		n.metrics.SetReceiptSupply(supply)
	}
	if balance, err := n.ledger.BaseBalance(n.engine.Authority()); err == nil {
		n.metrics.SetCustodyBalance(balance)
	}
}

// InitializeVaultState creates the accounting singleton with the caller as
// admin.
func (n *Node) InitializeVaultState(req vault.InitializeVaultStateRequest, nonce uint64) (*vault.VaultState, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if n.halted {
		return nil, ErrHalted
	}
	if err := n.consumeNonce(req.Caller, nonce); err != nil {
		return nil, n.abort(opInitializeState, err)
	}
	st, err := n.engine.InitializeVaultState(req)
	if err != nil {
		return nil, n.abort(opInitializeState, err)
	}
	if err := n.commit(opInitializeState); err != nil {
		return nil, err
	}
	n.metrics.ObserveOperation(opInitializeState, nil)
	n.refreshGauges()
	n.logger.Info("vault state initialised", "admin", req.Caller.String())
	return st, nil
}

// InitializeDeposit creates the caller's empty deposit record.
func (n *Node) InitializeDeposit(req vault.InitializeDepositRequest, nonce uint64) (*vault.VaultDeposit, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if n.halted {
		return nil, ErrHalted
	}
	if err := n.consumeNonce(req.Caller, nonce); err != nil {
		return nil, n.abort(opInitializeDeposit, err)
	}
	dep, err := n.engine.InitializeDeposit(req)
	if err != nil {
		return nil, n.abort(opInitializeDeposit, err)
	}
	if err := n.commit(opInitializeDeposit); err != nil {
		return nil, err
	}
	n.metrics.ObserveOperation(opInitializeDeposit, nil)
	return dep, nil
}

// Deposit moves principal into custody and mints receipts.
func (n *Node) Deposit(req vault.DepositRequest, nonce uint64) (*vault.VaultDeposit, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if n.halted {
		return nil, ErrHalted
	}
	if err := n.consumeNonce(req.Caller, nonce); err != nil {
		return nil, n.abort(opDeposit, err)
	}
	dep, err := n.engine.Deposit(req)
	if err != nil {
		return nil, n.abort(opDeposit, err)
	}
	if err := n.commit(opDeposit); err != nil {
		return nil, err
	}
	n.metrics.ObserveOperation(opDeposit, nil)
	n.refreshGauges()
	return dep, nil
}

// Withdraw burns receipts and releases the redemption value from custody.
func (n *Node) Withdraw(req vault.WithdrawRequest, nonce uint64) (*vault.WithdrawResult, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if n.halted {
		return nil, ErrHalted
	}
	if err := n.consumeNonce(req.Caller, nonce); err != nil {
		return nil, n.abort(opWithdraw, err)
	}
	res, err := n.engine.Withdraw(req)
	if err != nil {
		return nil, n.abort(opWithdraw, err)
	}
	if err := n.commit(opWithdraw); err != nil {
		return nil, err
	}
	n.metrics.ObserveOperation(opWithdraw, nil)
	n.metrics.ObservePayout(res.Payout)
	n.refreshGauges()
	return res, nil
}

// UpdatePrice accrues interest up to the current wall clock. Admin only.
func (n *Node) UpdatePrice(req vault.UpdatePriceRequest, nonce uint64) (*vault.VaultState, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if n.halted {
		return nil, ErrHalted
	}
	if err := n.consumeNonce(req.Caller, nonce); err != nil {
		return nil, n.abort(opUpdatePrice, err)
	}
	st, err := n.engine.UpdatePrice(req)
	if err != nil {
		return nil, n.abort(opUpdatePrice, err)
	}
	if err := n.commit(opUpdatePrice); err != nil {
		return nil, err
	}
	n.metrics.ObserveOperation(opUpdatePrice, nil)
	n.refreshGauges()
	return st, nil
}

// SetLastUpdated overrides the accrual anchor. Admin only, and only on nodes
// booted with backdating enabled.
func (n *Node) SetLastUpdated(req vault.SetLastUpdatedRequest, nonce uint64) (*vault.VaultState, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if n.halted {
		return nil, ErrHalted
	}
	if err := n.consumeNonce(req.Caller, nonce); err != nil {
		return nil, n.abort(opSetLastUpdated, err)
	}
	st, err := n.engine.SetLastUpdated(req)
	if err != nil {
		return nil, n.abort(opSetLastUpdated, err)
	}
	if err := n.commit(opSetLastUpdated); err != nil {
		return nil, err
	}
	n.metrics.ObserveOperation(opSetLastUpdated, nil)
	n.logger.Warn("accrual anchor overridden", "lastUpdated", req.LastUpdated, "admin", req.Caller.String())
	return st, nil
}

// TransferToken moves base or receipt units between holders on a signed user
// request.
func (n *Node) TransferToken(symbol string, from, to crypto.Address, amount, nonce uint64) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if n.halted {
		return ErrHalted
	}
	if err := n.consumeNonce(from, nonce); err != nil {
		return n.abort(opTransfer, err)
	}
	if err := n.ledger.Transfer(symbol, from, to, amount); err != nil {
		return n.abort(opTransfer, err)
	}
	if err := n.commit(opTransfer); err != nil {
		return err
	}
	n.metrics.ObserveOperation(opTransfer, nil)
	n.refreshGauges()
	return nil
}

// VaultState reports the accounting singleton.
func (n *Node) VaultState() (*vault.VaultState, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.State()
}

// VaultDeposit reports the deposit record for owner.
func (n *Node) VaultDeposit(owner crypto.Address) (*vault.VaultDeposit, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.DepositOf(owner)
}

// PreviewRedeem quotes the payout for burning receipts at the current price
// without mutating anything.
func (n *Node) PreviewRedeem(receipts uint64) (uint64, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.PreviewRedeem(receipts)
}

// TokenBalance reports a holder's balance for the named asset.
func (n *Node) TokenBalance(symbol string, addr crypto.Address) (uint64, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.ledger.BalanceOf(symbol, addr)
}

// TokenSupply reports the outstanding supply of the named asset.
func (n *Node) TokenSupply(symbol string) (uint64, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.ledger.SupplyOf(symbol)
}

// AccountNonce reports the caller's last committed nonce.
func (n *Node) AccountNonce(addr crypto.Address) (uint64, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state.AccountNonce(addr)
}

// SubscribeEvents attaches a subscriber to the committed-event stream. The
// returned backlog replays recent history for reconnecting clients.
func (n *Node) SubscribeEvents(ctx context.Context) (<-chan events.Envelope, func(), []events.Envelope) {
	return n.broker.Subscribe(ctx)
}

// Halted reports whether a failed commit has poisoned the node.
func (n *Node) Halted() bool {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.halted
}
