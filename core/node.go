package core

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"stablevault/core/events"
	"stablevault/core/state"
	"stablevault/crypto"
	"stablevault/native/common"
	"stablevault/observability"
	"stablevault/storage"
)

// Node is the execution host for the native contracts. It serialises every
// top-level call, runs it against a buffered state overlay and commits the
// overlay only when the call succeeds.
type Node struct {
	db        storage.Database
	state     *state.Manager
	roles     common.RoleSet
	contracts *Registry
	emitter   events.Emitter
	clock     func() time.Time
	logger    *slog.Logger

	stateMu sync.Mutex
	system  *System
}

// NewNode wires a node over db. roles is the capability set shared by every
// contract the node deploys.
func NewNode(db storage.Database, roles common.RoleSet) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("core: database required")
	}
	if err := roles.Validate(); err != nil {
		return nil, err
	}
	return &Node{
		db:        db,
		state:     state.NewManager(db),
		roles:     roles,
		contracts: NewRegistry(),
		emitter:   events.NoopEmitter{},
		clock:     time.Now,
		logger:    slog.Default(),
	}, nil
}

// SetEmitter replaces the sink committed events are published to.
func (n *Node) SetEmitter(e events.Emitter) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if e == nil {
		e = events.NoopEmitter{}
	}
	n.emitter = e
}

// SetClock overrides the time source stamped on each call.
func (n *Node) SetClock(clock func() time.Time) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if clock == nil {
		clock = time.Now
	}
	n.clock = clock
}

// SetLogger replaces the node logger.
func (n *Node) SetLogger(logger *slog.Logger) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if logger == nil {
		logger = slog.Default()
	}
	n.logger = logger
}

// Roles returns the shared capability set.
func (n *Node) Roles() common.RoleSet { return n.roles }

// Contracts exposes the address registry.
func (n *Node) Contracts() *Registry { return n.contracts }

// Database returns the backing store.
func (n *Node) Database() storage.Database { return n.db }

// Execute runs fn as one atomic top-level call made by caller. State written
// by fn is committed only if fn returns nil, and the events it emitted are
// published after the commit.
func (n *Node) Execute(method string, caller crypto.Address, fn func(*common.Context) error) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.execute(method, caller, fn)
}

func (n *Node) execute(method string, caller crypto.Address, fn func(*common.Context) error) (err error) {
	start := time.Now()
	defer func() {
		observability.Ledger().ObserveCall(method, time.Since(start), err)
	}()

	// A panicking call must not leave its writes in the overlay for the next
	// commit to pick up.
	defer func() {
		if r := recover(); r != nil {
			n.state.Discard()
			n.logger.Error("call panicked",
				slog.String("method", method),
				slog.String("caller", caller.String()),
				slog.Any("panic", r))
			panic(r)
		}
	}()

	ctx := common.NewContext(caller, n.state, n.clock())
	if err = fn(ctx); err != nil {
		n.state.Discard()
		n.logger.Debug("call rejected",
			slog.String("method", method),
			slog.String("caller", caller.String()),
			slog.String("error", err.Error()))
		return err
	}
	if err = n.state.Commit(); err != nil {
		n.state.Discard()
		n.logger.Error("commit failed",
			slog.String("method", method),
			slog.String("error", err.Error()))
		return fmt.Errorf("core: commit: %w", err)
	}
	for _, e := range ctx.Events() {
		observability.Events().RecordPublished(e.EventType())
		n.emitter.Emit(e)
	}
	n.recordGauges()
	return nil
}

// Query runs fn against the committed state and discards anything it writes.
func (n *Node) Query(caller crypto.Address, fn func(*common.Context) error) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	defer n.state.Discard()
	return fn(common.NewContext(caller, n.state, n.clock()))
}

// recordGauges refreshes the ledger gauges from committed state. Callers hold
// stateMu.
func (n *Node) recordGauges() {
	if n.system == nil {
		return
	}
	sys := n.system
	defer n.state.Discard()
	ctx := common.NewContext(sys.Owner, n.state, n.clock())
	metrics := observability.Ledger()
	if v, err := n.contracts.Vault(sys.Vault); err == nil {
		if totals, err := v.Totals(ctx); err == nil {
			metrics.RecordTotals(totals.Positions, totals.Collateral, totals.Debt)
		}
		metrics.SetPause(v.Paused(ctx))
	}
	if o, err := n.oracleContract(); err == nil {
		if reading, err := o.Reading(ctx); err == nil {
			metrics.RecordPrice(reading.Price)
		}
	}
}
