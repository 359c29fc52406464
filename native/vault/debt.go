package vault

import (
	"fmt"
	"math/big"

	"stablevault/core/events"
	"stablevault/crypto"
	"stablevault/native/common"
)

// Borrow mints amount of the stable asset to the position owner against the
// position's collateral. The resulting debt must stay strictly below the
// debt ceiling the controller reports for the current collateral.
func (v *Vault) Borrow(ctx *common.Context, id uint64, amount *big.Int) error {
	if err := common.Guard(common.Pauses(ctx, v.addr), moduleName); err != nil {
		return err
	}
	if err := common.RequirePositive(amount); err != nil {
		return fmt.Errorf("vault: borrow: %w", err)
	}
	header, err := v.accruedHeader(ctx)
	if err != nil {
		return err
	}
	pos, owner, err := v.ownedPosition(ctx, id)
	if err != nil {
		return err
	}
	settle(header, pos)

	assessment, err := v.assess(ctx, header, pos.Collateral)
	if err != nil {
		return err
	}
	debt := new(big.Int).Add(pos.Debt, amount)
	if debt.Cmp(assessment.DebtCeiling) >= 0 {
		return ErrCollateralBelow
	}
	stable, err := v.ledger(header.StableToken)
	if err != nil {
		return err
	}
	if err := ctx.Call(v.addr, func(inner *common.Context) error {
		return stable.Mint(inner, owner, amount)
	}); err != nil {
		return fmt.Errorf("vault: mint stable: %w", err)
	}

	pos.Debt = debt
	header.TotalDebt.Add(header.TotalDebt, amount)
	if err := v.putPosition(ctx, id, pos); err != nil {
		return err
	}
	if err := v.putHeader(ctx, header); err != nil {
		return err
	}
	ctx.Emit(events.DebtBorrowed{ID: id, Owner: owner, Amount: common.Copy(amount), Debt: common.Copy(debt)})
	return nil
}

// PayBack burns up to amount of the owner's stable asset against the
// position's debt. Amounts above the outstanding debt are clamped. The amount
// actually repaid is returned.
func (v *Vault) PayBack(ctx *common.Context, id uint64, amount *big.Int) (*big.Int, error) {
	if err := common.RequirePositive(amount); err != nil {
		return nil, fmt.Errorf("vault: pay back: %w", err)
	}
	header, err := v.accruedHeader(ctx)
	if err != nil {
		return nil, err
	}
	pos, owner, err := v.ownedPosition(ctx, id)
	if err != nil {
		return nil, err
	}
	settle(header, pos)

	paid := common.Min(amount, pos.Debt)
	if err := v.repay(ctx, header, pos, id, owner, paid); err != nil {
		return nil, err
	}
	return paid, nil
}

// repay burns paid stable from payer and lowers the position debt.
func (v *Vault) repay(ctx *common.Context, header *ledgerState, pos *Position, id uint64, payer crypto.Address, paid *big.Int) error {
	if paid.Sign() > 0 {
		stable, err := v.ledger(header.StableToken)
		if err != nil {
			return err
		}
		if err := ctx.Call(v.addr, func(inner *common.Context) error {
			return stable.Burn(inner, payer, paid)
		}); err != nil {
			return fmt.Errorf("vault: burn stable: %w", err)
		}
	}
	pos.Debt = new(big.Int).Sub(pos.Debt, paid)
	header.TotalDebt.Sub(header.TotalDebt, paid)
	if header.TotalDebt.Sign() < 0 {
		header.TotalDebt.SetInt64(0)
	}
	if err := v.putPosition(ctx, id, pos); err != nil {
		return err
	}
	if err := v.putHeader(ctx, header); err != nil {
		return err
	}
	ctx.Emit(events.DebtRepaid{ID: id, Payer: payer, Amount: common.Copy(paid), Debt: common.Copy(pos.Debt)})
	return nil
}

// BuyRiskyVault lets any caller take over a position whose debt has reached
// its debt ceiling. The buyer burns debt - ceiling + 1 from their own stable
// balance, which leaves the position one unit below its ceiling, and
// receives the ownership token.
func (v *Vault) BuyRiskyVault(ctx *common.Context, id uint64) (*big.Int, error) {
	header, err := v.accruedHeader(ctx)
	if err != nil {
		return nil, err
	}
	pos, err := v.position(ctx, id)
	if err != nil {
		return nil, err
	}
	previous, err := v.positions.OwnerOf(ctx, id)
	if err != nil {
		return nil, ErrPositionNotFound
	}
	settle(header, pos)

	assessment, err := v.assess(ctx, header, pos.Collateral)
	if err != nil {
		return nil, err
	}
	if pos.Debt.Sign() == 0 || pos.Debt.Cmp(assessment.DebtCeiling) < 0 {
		return nil, ErrPositionHealthy
	}
	buyer := ctx.Caller()
	shortfall := new(big.Int).Sub(pos.Debt, assessment.DebtCeiling)
	shortfall.Add(shortfall, big.NewInt(1))
	shortfall = common.Min(shortfall, pos.Debt)
	if err := v.repay(ctx, header, pos, id, buyer, shortfall); err != nil {
		return nil, err
	}
	if err := v.positions.Move(ctx, id, buyer); err != nil {
		return nil, err
	}
	ctx.Emit(events.VaultTransferred{ID: id, From: previous, To: buyer})
	ctx.Emit(events.RiskyVaultBought{ID: id, Buyer: buyer, PreviousOwner: previous, Paid: common.Copy(shortfall)})
	return shortfall, nil
}

// DebtCeiling reports the most the position may owe at the current price.
func (v *Vault) DebtCeiling(ctx *common.Context, id uint64) (*big.Int, error) {
	header, err := v.accruedHeader(ctx)
	if err != nil {
		return nil, err
	}
	pos, err := v.position(ctx, id)
	if err != nil {
		return nil, err
	}
	assessment, err := v.assess(ctx, header, pos.Collateral)
	if err != nil {
		return nil, err
	}
	return common.Copy(assessment.DebtCeiling), nil
}
