package vault

import (
	"fmt"
	"math/big"

	"stablevault/core/events"
	"stablevault/native/common"
)

// CreateVault opens an empty position owned by the caller and returns its id.
// Ids start at zero and are never reused.
func (v *Vault) CreateVault(ctx *common.Context) (uint64, error) {
	header, err := v.accruedHeader(ctx)
	if err != nil {
		return 0, err
	}
	id := header.NextID
	owner := ctx.Caller()
	if err := v.positions.Mint(ctx, owner, id); err != nil {
		return 0, err
	}
	pos := &Position{
		Collateral:          big.NewInt(0),
		Debt:                big.NewInt(0),
		InterestSnapshotE12: new(big.Int).Set(header.InterestCoefficientE12),
	}
	if err := v.putPosition(ctx, id, pos); err != nil {
		return 0, err
	}
	header.NextID++
	if err := v.putHeader(ctx, header); err != nil {
		return 0, err
	}
	ctx.Emit(events.VaultCreated{ID: id, Owner: owner})
	return id, nil
}

// DepositCollateral pulls amount of the collateral asset from the caller into
// the ledger and credits position id. Anyone may top up any open position;
// the caller must have approved the ledger for at least amount.
func (v *Vault) DepositCollateral(ctx *common.Context, id uint64, amount *big.Int) error {
	if err := common.RequirePositive(amount); err != nil {
		return fmt.Errorf("vault: deposit: %w", err)
	}
	header, err := v.accruedHeader(ctx)
	if err != nil {
		return err
	}
	pos, err := v.position(ctx, id)
	if err != nil {
		return err
	}
	collateral, err := v.ledger(header.CollateralToken)
	if err != nil {
		return err
	}
	depositor := ctx.Caller()
	if err := ctx.Call(v.addr, func(inner *common.Context) error {
		return collateral.TransferFrom(inner, depositor, v.addr, amount)
	}); err != nil {
		return fmt.Errorf("%w: %w", errCollateralMove, err)
	}

	pos.Collateral = new(big.Int).Add(pos.Collateral, amount)
	header.TotalCollateral.Add(header.TotalCollateral, amount)
	if err := v.putPosition(ctx, id, pos); err != nil {
		return err
	}
	if err := v.putHeader(ctx, header); err != nil {
		return err
	}
	ctx.Emit(events.CollateralDeposited{ID: id, From: depositor, Amount: common.Copy(amount)})
	return nil
}

// WithdrawCollateral returns up to amount of collateral to the position owner.
// Requests above the deposited balance are clamped to the full balance. When
// the position carries debt the remaining collateral must still cover it.
// The amount actually withdrawn is returned.
func (v *Vault) WithdrawCollateral(ctx *common.Context, id uint64, amount *big.Int) (*big.Int, error) {
	if err := common.RequirePositive(amount); err != nil {
		return nil, fmt.Errorf("vault: withdraw: %w", err)
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

	withdrawn := common.Min(amount, pos.Collateral)
	remaining := new(big.Int).Sub(pos.Collateral, withdrawn)
	if pos.Debt.Sign() > 0 {
		assessment, err := v.assess(ctx, header, remaining)
		if err != nil {
			return nil, err
		}
		if pos.Debt.Cmp(assessment.DebtCeiling) >= 0 {
			return nil, ErrCollateralBelow
		}
	}

	pos.Collateral = remaining
	header.TotalCollateral.Sub(header.TotalCollateral, withdrawn)
	if err := v.putPosition(ctx, id, pos); err != nil {
		return nil, err
	}
	if err := v.putHeader(ctx, header); err != nil {
		return nil, err
	}
	if withdrawn.Sign() > 0 {
		collateral, err := v.ledger(header.CollateralToken)
		if err != nil {
			return nil, err
		}
		if err := ctx.Call(v.addr, func(inner *common.Context) error {
			return collateral.Transfer(inner, owner, withdrawn)
		}); err != nil {
			return nil, fmt.Errorf("%w: %w", errCollateralMove, err)
		}
	}
	ctx.Emit(events.CollateralWithdrawn{ID: id, Owner: owner, Amount: common.Copy(withdrawn)})
	return withdrawn, nil
}

// DestroyVault closes an empty position and burns its ownership token.
func (v *Vault) DestroyVault(ctx *common.Context, id uint64) error {
	header, err := v.accruedHeader(ctx)
	if err != nil {
		return err
	}
	pos, owner, err := v.ownedPosition(ctx, id)
	if err != nil {
		return err
	}
	settle(header, pos)
	if pos.Collateral.Sign() != 0 || pos.Debt.Sign() != 0 {
		return ErrPositionNotEmpty
	}
	if err := v.positions.Burn(ctx, id); err != nil {
		return err
	}
	if err := ctx.State().KVDelete(v.positionKey(id)); err != nil {
		return err
	}
	if err := v.putHeader(ctx, header); err != nil {
		return err
	}
	ctx.Emit(events.VaultDestroyed{ID: id, Owner: owner})
	return nil
}

// GetVaultDetails returns the collateral and debt of position id, with debt
// including interest accrued up to the call time.
func (v *Vault) GetVaultDetails(ctx *common.Context, id uint64) (Details, error) {
	header, err := v.accruedHeader(ctx)
	if err != nil {
		return Details{}, err
	}
	pos, err := v.position(ctx, id)
	if err != nil {
		return Details{}, err
	}
	owner, err := v.positions.OwnerOf(ctx, id)
	if err != nil {
		return Details{}, ErrPositionNotFound
	}
	return Details{
		ID:         id,
		Owner:      owner,
		Collateral: common.Copy(pos.Collateral),
		Debt:       currentDebt(header, pos),
	}, nil
}
