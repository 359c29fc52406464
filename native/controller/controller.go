// Package controller binds a vault ledger to its risk measurer and owns the
// rate parameters the measurer applies.
package controller

import (
	"fmt"
	"math/big"

	"stablevault/core/events"
	"stablevault/crypto"
	"stablevault/native/access"
	"stablevault/native/common"
	"stablevault/native/measurer"
)

var (
	errUnknownMeasurer = fmt.Errorf("controller: measurer not registered: %w", common.ErrOracleUnavailable)
	errUnknownStable   = fmt.Errorf("controller: stable token: %w", common.ErrNotFound)
	errStableUnbound   = fmt.Errorf("controller: stable token not bound: %w", common.ErrNotInitialized)
	errNotInitialized  = fmt.Errorf("controller: %w", common.ErrNotInitialized)
)

// RiskMeasurer is the measurer surface the controller delegates to.
type RiskMeasurer interface {
	ComputeRatio(ctx *common.Context, collateral *big.Int, params measurer.RateParameters) (measurer.Assessment, error)
}

// StableToken is the stable asset surface the controller steers.
type StableToken interface {
	SetInterestRate(ctx *common.Context, rateE12 *big.Int) error
}

// Directory resolves measurer and stable token addresses.
type Directory interface {
	RiskMeasurer(addr crypto.Address) (RiskMeasurer, error)
	StableToken(addr crypto.Address) (StableToken, error)
}

type bindings struct {
	Measurer crypto.Address
	Vault    crypto.Address
}

// Controller is the vault controller contract.
type Controller struct {
	addr      crypto.Address
	roles     common.RoleSet
	access    *access.Control
	contracts Directory
}

// New binds a controller to addr.
func New(addr crypto.Address, roles common.RoleSet, contracts Directory) *Controller {
	return &Controller{addr: addr, roles: roles, access: access.New(addr, roles), contracts: contracts}
}

// Address returns the controller contract address.
func (c *Controller) Address() crypto.Address { return c.addr }

func (c *Controller) bindingsKey() []byte { return common.Key(c.addr, "bindings") }
func (c *Controller) paramsKey() []byte   { return common.Key(c.addr, "params") }
func (c *Controller) stableKey() []byte   { return common.Key(c.addr, "stable") }

// Init records the measurer and vault the controller serves, its owner and
// the initial rate parameters.
func (c *Controller) Init(ctx *common.Context, measurerAddr, vaultAddr, owner crypto.Address, params measurer.RateParameters) error {
	if measurerAddr.IsZero() || vaultAddr.IsZero() {
		return fmt.Errorf("controller: bindings: %w", common.ErrZeroAddress)
	}
	if err := params.Validate(); err != nil {
		return err
	}
	if err := c.access.InitOwner(ctx, owner); err != nil {
		return err
	}
	if err := ctx.State().KVPut(c.bindingsKey(), bindings{Measurer: measurerAddr, Vault: vaultAddr}); err != nil {
		return err
	}
	return ctx.State().KVPut(c.paramsKey(), params.Normalize())
}

func (c *Controller) bindings(ctx *common.Context) (bindings, error) {
	var b bindings
	ok, err := ctx.State().KVGet(c.bindingsKey(), &b)
	if err != nil {
		return bindings{}, err
	}
	if !ok {
		return bindings{}, errNotInitialized
	}
	return b, nil
}

// Owner returns the controller owner.
func (c *Controller) Owner(ctx *common.Context) (crypto.Address, error) {
	return c.access.Owner(ctx)
}

// VaultAddress returns the vault ledger this controller serves.
func (c *Controller) VaultAddress(ctx *common.Context) (crypto.Address, error) {
	b, err := c.bindings(ctx)
	if err != nil {
		return crypto.Address{}, err
	}
	return b.Vault, nil
}

// MeasurerAddress returns the risk measurer in use.
func (c *Controller) MeasurerAddress(ctx *common.Context) (crypto.Address, error) {
	b, err := c.bindings(ctx)
	if err != nil {
		return crypto.Address{}, err
	}
	return b.Measurer, nil
}

func (c *Controller) rebind(ctx *common.Context, kind string, target crypto.Address, apply func(*bindings)) error {
	if err := c.access.OnlyOwner(ctx); err != nil {
		return err
	}
	if target.IsZero() {
		return fmt.Errorf("controller: %s: %w", kind, common.ErrZeroAddress)
	}
	b, err := c.bindings(ctx)
	if err != nil {
		return err
	}
	apply(&b)
	if err := ctx.State().KVPut(c.bindingsKey(), b); err != nil {
		return err
	}
	ctx.Emit(events.BindingUpdated{Contract: c.addr, Kind: kind, Target: target})
	return nil
}

// SetVaultAddress re-points the controller at another vault. Owner only.
func (c *Controller) SetVaultAddress(ctx *common.Context, vault crypto.Address) error {
	return c.rebind(ctx, "vault", vault, func(b *bindings) { b.Vault = vault })
}

// SetMeasurerAddress re-points the controller at another measurer. Owner only.
func (c *Controller) SetMeasurerAddress(ctx *common.Context, m crypto.Address) error {
	return c.rebind(ctx, "measurer", m, func(b *bindings) { b.Measurer = m })
}

// StableAddress returns the stable token whose holder rate the controller
// sets.
func (c *Controller) StableAddress(ctx *common.Context) (crypto.Address, error) {
	var stable crypto.Address
	ok, err := ctx.State().KVGet(c.stableKey(), &stable)
	if err != nil {
		return crypto.Address{}, err
	}
	if !ok || stable.IsZero() {
		return crypto.Address{}, errStableUnbound
	}
	return stable, nil
}

// SetStableAddress binds the stable token. Owner only.
func (c *Controller) SetStableAddress(ctx *common.Context, stable crypto.Address) error {
	if err := c.access.OnlyOwner(ctx); err != nil {
		return err
	}
	if stable.IsZero() {
		return fmt.Errorf("controller: stable: %w", common.ErrZeroAddress)
	}
	if _, err := c.bindings(ctx); err != nil {
		return err
	}
	if err := ctx.State().KVPut(c.stableKey(), stable); err != nil {
		return err
	}
	ctx.Emit(events.BindingUpdated{Contract: c.addr, Kind: "stable", Target: stable})
	return nil
}

// RateParameters returns the current curve parameters.
func (c *Controller) RateParameters(ctx *common.Context) (measurer.RateParameters, error) {
	var params measurer.RateParameters
	ok, err := ctx.State().KVGet(c.paramsKey(), &params)
	if err != nil {
		return measurer.RateParameters{}, err
	}
	if !ok {
		return measurer.RateParameters{}, errNotInitialized
	}
	return params.Normalize(), nil
}

// SetRateParameters replaces the curve parameters. The owner and holders of
// the Setter role may call it.
func (c *Controller) SetRateParameters(ctx *common.Context, params measurer.RateParameters) error {
	if err := c.access.OnlyOwnerOrRole(ctx, c.roles.Setter); err != nil {
		return err
	}
	if err := params.Validate(); err != nil {
		return err
	}
	params = params.Normalize()
	if err := ctx.State().KVPut(c.paramsKey(), params); err != nil {
		return err
	}
	ctx.Emit(events.RateParametersUpdated{
		Controller:                     c.addr,
		InterestRateStepE12:            params.InterestRateStepE12,
		MaximumCollateralCoefficientE6: params.MaximumCollateralCoefficientE6,
		CollateralStepValueE6:          params.CollateralStepValueE6,
		Sender:                         ctx.Caller(),
	})
	return nil
}

// SetupRole grants role on the controller. Admin or owner only.
func (c *Controller) SetupRole(ctx *common.Context, role common.Role, account crypto.Address) error {
	return c.access.Grant(ctx, role, account)
}

// HasRole reports whether account holds role on the controller.
func (c *Controller) HasRole(ctx *common.Context, role common.Role, account crypto.Address) bool {
	return c.access.HasRole(ctx, role, account)
}

// Assess asks the bound measurer for the risk view of collateral under the
// current rate parameters.
func (c *Controller) Assess(ctx *common.Context, collateral *big.Int) (measurer.Assessment, error) {
	b, err := c.bindings(ctx)
	if err != nil {
		return measurer.Assessment{}, err
	}
	params, err := c.RateParameters(ctx)
	if err != nil {
		return measurer.Assessment{}, err
	}
	if c.contracts == nil {
		return measurer.Assessment{}, errUnknownMeasurer
	}
	m, err := c.contracts.RiskMeasurer(b.Measurer)
	if err != nil {
		return measurer.Assessment{}, fmt.Errorf("%w: %v", errUnknownMeasurer, err)
	}
	var out measurer.Assessment
	err = ctx.Call(c.addr, func(inner *common.Context) error {
		var cerr error
		out, cerr = m.ComputeRatio(inner, collateral, params)
		return cerr
	})
	return out, err
}

// ControlStable reads the holder rate the curve yields for the current
// stability measure and pushes it into the bound stable token. Anyone may
// call it; the controller itself must hold the Setter role on the token.
func (c *Controller) ControlStable(ctx *common.Context) (*big.Int, error) {
	stableAddr, err := c.StableAddress(ctx)
	if err != nil {
		return nil, err
	}
	assessment, err := c.Assess(ctx, big.NewInt(0))
	if err != nil {
		return nil, err
	}
	if c.contracts == nil {
		return nil, errUnknownStable
	}
	stable, err := c.contracts.StableToken(stableAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errUnknownStable, err)
	}
	rate := common.Copy(assessment.HolderRateE12)
	if err := ctx.Call(c.addr, func(inner *common.Context) error {
		return stable.SetInterestRate(inner, rate)
	}); err != nil {
		return nil, err
	}
	return rate, nil
}
