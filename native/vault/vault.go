// Package vault implements the collateralised debt position ledger. Each
// position is represented by an ownership token; whoever holds the token owns
// the position.
package vault

import (
	"fmt"
	"math/big"

	"stablevault/crypto"
	"stablevault/native/access"
	"stablevault/native/common"
	"stablevault/native/measurer"
	"stablevault/native/nft"
)

const moduleName = "vault"

var (
	ErrPositionNotFound  = fmt.Errorf("vault: position: %w", common.ErrNotFound)
	ErrNotPositionOwner  = fmt.Errorf("vault: %w", common.ErrNotOwner)
	ErrPositionNotEmpty  = fmt.Errorf("vault: %w", common.ErrNotEmpty)
	ErrCollateralBelow   = fmt.Errorf("vault: debt would exceed the debt ceiling: %w", common.ErrInsufficientCollateral)
	ErrPositionHealthy   = fmt.Errorf("vault: position is below its debt ceiling: %w", common.ErrPositionHealthy)
	errCollateralMove    = fmt.Errorf("vault: collateral %w", common.ErrTransferFailed)
	errControllerMissing = fmt.Errorf("vault: controller not configured: %w", common.ErrNotInitialized)
	errNotInitialized    = fmt.Errorf("vault: %w", common.ErrNotInitialized)
)

// TokenLedger is the fungible ledger surface the vault drives.
type TokenLedger interface {
	Transfer(ctx *common.Context, to crypto.Address, amount *big.Int) error
	TransferFrom(ctx *common.Context, from, to crypto.Address, amount *big.Int) error
	Mint(ctx *common.Context, to crypto.Address, amount *big.Int) error
	Burn(ctx *common.Context, from crypto.Address, amount *big.Int) error
}

// RiskController answers debt ceiling questions for a collateral amount.
type RiskController interface {
	Assess(ctx *common.Context, collateral *big.Int) (measurer.Assessment, error)
}

// Directory resolves the contracts the vault is bound to.
type Directory interface {
	TokenLedger(addr crypto.Address) (TokenLedger, error)
	RiskController(addr crypto.Address) (RiskController, error)
}

// Vault is the position ledger contract.
type Vault struct {
	addr      crypto.Address
	access    *access.Control
	positions *nft.Registry
	contracts Directory
}

// New binds a vault ledger to addr.
func New(addr crypto.Address, roles common.RoleSet, contracts Directory) *Vault {
	return &Vault{
		addr:      addr,
		access:    access.New(addr, roles),
		positions: nft.NewRegistry(addr),
		contracts: contracts,
	}
}

// Address returns the vault contract address.
func (v *Vault) Address() crypto.Address { return v.addr }

func (v *Vault) headerKey() []byte { return common.Key(v.addr, "header") }

func (v *Vault) positionKey(id uint64) []byte {
	return common.Key(v.addr, "position", common.U64(id))
}

// Init records the owner and the oracle and asset contracts the ledger uses.
// The controller is bound later with SetControllerAddress.
func (v *Vault) Init(ctx *common.Context, owner, oracle, collateralToken, stableToken crypto.Address) error {
	if oracle.IsZero() || collateralToken.IsZero() || stableToken.IsZero() {
		return fmt.Errorf("vault: bindings: %w", common.ErrZeroAddress)
	}
	if err := v.access.InitOwner(ctx, owner); err != nil {
		return err
	}
	header := &ledgerState{
		Oracle:          oracle,
		CollateralToken: collateralToken,
		StableToken:     stableToken,
		LastAccrual:     ctx.Timestamp(),
	}
	header.normalize()
	return v.putHeader(ctx, header)
}

func (v *Vault) header(ctx *common.Context) (*ledgerState, error) {
	header := new(ledgerState)
	ok, err := ctx.State().KVGet(v.headerKey(), header)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errNotInitialized
	}
	header.normalize()
	return header, nil
}

func (v *Vault) putHeader(ctx *common.Context, header *ledgerState) error {
	return ctx.State().KVPut(v.headerKey(), header)
}

// accruedHeader loads the header with interest advanced to the call time.
func (v *Vault) accruedHeader(ctx *common.Context) (*ledgerState, error) {
	header, err := v.header(ctx)
	if err != nil {
		return nil, err
	}
	accrue(header, ctx.Timestamp())
	return header, nil
}

func (v *Vault) position(ctx *common.Context, id uint64) (*Position, error) {
	pos := new(Position)
	ok, err := ctx.State().KVGet(v.positionKey(id), pos)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPositionNotFound
	}
	pos.normalize()
	return pos, nil
}

func (v *Vault) putPosition(ctx *common.Context, id uint64, pos *Position) error {
	return ctx.State().KVPut(v.positionKey(id), pos)
}

// ownedPosition loads id and checks the caller holds its ownership token.
func (v *Vault) ownedPosition(ctx *common.Context, id uint64) (*Position, crypto.Address, error) {
	pos, err := v.position(ctx, id)
	if err != nil {
		return nil, crypto.Address{}, err
	}
	holder, err := v.positions.OwnerOf(ctx, id)
	if err != nil {
		return nil, crypto.Address{}, ErrPositionNotFound
	}
	if !holder.Equal(ctx.Caller()) {
		return nil, crypto.Address{}, ErrNotPositionOwner
	}
	return pos, holder, nil
}

func (v *Vault) ledger(addr crypto.Address) (TokenLedger, error) {
	if v.contracts == nil {
		return nil, fmt.Errorf("vault: token %s: %w", addr, common.ErrNotFound)
	}
	return v.contracts.TokenLedger(addr)
}

// assess asks the bound controller for the risk view of collateral and records
// the borrowing rate it reports for subsequent accrual.
func (v *Vault) assess(ctx *common.Context, header *ledgerState, collateral *big.Int) (measurer.Assessment, error) {
	if header.Controller.IsZero() || v.contracts == nil {
		return measurer.Assessment{}, errControllerMissing
	}
	controller, err := v.contracts.RiskController(header.Controller)
	if err != nil {
		return measurer.Assessment{}, fmt.Errorf("%w: %v", errControllerMissing, err)
	}
	var out measurer.Assessment
	if err := ctx.Call(v.addr, func(inner *common.Context) error {
		var aerr error
		out, aerr = controller.Assess(inner, collateral)
		return aerr
	}); err != nil {
		return measurer.Assessment{}, err
	}
	if out.InterestRateE12 != nil {
		header.InterestRateE12 = new(big.Int).Set(out.InterestRateE12)
	}
	return out, nil
}
