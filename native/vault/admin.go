package vault

import (
	"fmt"
	"math/big"

	"stablevault/core/events"
	"stablevault/crypto"
	"stablevault/native/common"
)

// Owner returns the administrator recorded at Init.
func (v *Vault) Owner(ctx *common.Context) (crypto.Address, error) {
	return v.access.Owner(ctx)
}

// SetControllerAddress rebinds the controller the ledger consults before
// risk-sensitive operations. Owner only.
func (v *Vault) SetControllerAddress(ctx *common.Context, controller crypto.Address) error {
	if err := v.access.OnlyOwner(ctx); err != nil {
		return err
	}
	if controller.IsZero() {
		return fmt.Errorf("vault: controller: %w", common.ErrZeroAddress)
	}
	header, err := v.accruedHeader(ctx)
	if err != nil {
		return err
	}
	header.Controller = controller
	if err := v.putHeader(ctx, header); err != nil {
		return err
	}
	ctx.Emit(events.ControllerUpdated{Vault: v.addr, Controller: controller})
	return nil
}

// Pause blocks new borrowing until Unpause is called. Owner only.
func (v *Vault) Pause(ctx *common.Context) error { return v.setPaused(ctx, true) }

// Unpause lifts a previous Pause. Owner only.
func (v *Vault) Unpause(ctx *common.Context) error { return v.setPaused(ctx, false) }

func (v *Vault) setPaused(ctx *common.Context, paused bool) error {
	if err := v.access.OnlyOwner(ctx); err != nil {
		return err
	}
	if err := common.SetPaused(ctx, v.addr, moduleName, paused); err != nil {
		return err
	}
	ctx.Emit(events.VaultPaused{Paused: paused, By: ctx.Caller()})
	return nil
}

// Paused reports whether borrowing is currently blocked.
func (v *Vault) Paused(ctx *common.Context) bool {
	return common.Pauses(ctx, v.addr).IsPaused(moduleName)
}

// ControllerAddress returns the bound controller, zero until configured.
func (v *Vault) ControllerAddress(ctx *common.Context) (crypto.Address, error) {
	header, err := v.header(ctx)
	if err != nil {
		return crypto.Address{}, err
	}
	return header.Controller, nil
}

// OracleAddress returns the oracle recorded at Init.
func (v *Vault) OracleAddress(ctx *common.Context) (crypto.Address, error) {
	header, err := v.header(ctx)
	if err != nil {
		return crypto.Address{}, err
	}
	return header.Oracle, nil
}

// CollateralTokenAddress returns the collateral asset ledger.
func (v *Vault) CollateralTokenAddress(ctx *common.Context) (crypto.Address, error) {
	header, err := v.header(ctx)
	if err != nil {
		return crypto.Address{}, err
	}
	return header.CollateralToken, nil
}

// StableTokenAddress returns the stable asset ledger.
func (v *Vault) StableTokenAddress(ctx *common.Context) (crypto.Address, error) {
	header, err := v.header(ctx)
	if err != nil {
		return crypto.Address{}, err
	}
	return header.StableToken, nil
}

// Totals aggregates collateral and debt across all open positions. Interest is
// folded into the debt total when a position is next touched.
func (v *Vault) Totals(ctx *common.Context) (Totals, error) {
	header, err := v.accruedHeader(ctx)
	if err != nil {
		return Totals{}, err
	}
	open, err := v.positions.TotalSupply(ctx)
	if err != nil {
		return Totals{}, err
	}
	return Totals{
		Positions:       open,
		Collateral:      common.Copy(header.TotalCollateral),
		Debt:            common.Copy(header.TotalDebt),
		AccruedInterest: common.Copy(header.StoredInterest),
	}, nil
}

// TotalCollateral returns the collateral held for every open position.
func (v *Vault) TotalCollateral(ctx *common.Context) (*big.Int, error) {
	totals, err := v.Totals(ctx)
	if err != nil {
		return nil, err
	}
	return totals.Collateral, nil
}

// TotalDebt returns the stable asset owed across every open position.
func (v *Vault) TotalDebt(ctx *common.Context) (*big.Int, error) {
	totals, err := v.Totals(ctx)
	if err != nil {
		return nil, err
	}
	return totals.Debt, nil
}
