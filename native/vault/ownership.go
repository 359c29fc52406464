package vault

import (
	"stablevault/core/events"
	"stablevault/crypto"
	"stablevault/native/common"
)

// OwnerOf returns the holder of the ownership token for id.
func (v *Vault) OwnerOf(ctx *common.Context, id uint64) (crypto.Address, error) {
	holder, err := v.positions.OwnerOf(ctx, id)
	if err != nil {
		return crypto.Address{}, ErrPositionNotFound
	}
	return holder, nil
}

// BalanceOf counts the positions held by holder.
func (v *Vault) BalanceOf(ctx *common.Context, holder crypto.Address) (uint64, error) {
	return v.positions.BalanceOf(ctx, holder)
}

// TotalSupply counts the ownership tokens in circulation, i.e. open positions.
func (v *Vault) TotalSupply(ctx *common.Context) (uint64, error) {
	return v.positions.TotalSupply(ctx)
}

// VaultsOf lists the position ids held by holder.
func (v *Vault) VaultsOf(ctx *common.Context, holder crypto.Address) ([]uint64, error) {
	return v.positions.TokensOf(ctx, holder)
}

// TransferVault hands the position to a new owner. The caller must hold the
// ownership token or be approved for it.
func (v *Vault) TransferVault(ctx *common.Context, to crypto.Address, id uint64) error {
	if to.IsZero() {
		return common.ErrZeroAddress
	}
	previous, err := v.positions.Transfer(ctx, to, id)
	if err != nil {
		return err
	}
	ctx.Emit(events.VaultTransferred{ID: id, From: previous, To: to})
	return nil
}

// ApproveVault lets operator transfer the position once. A zero operator
// clears the approval.
func (v *Vault) ApproveVault(ctx *common.Context, operator crypto.Address, id uint64) error {
	return v.positions.Approve(ctx, operator, id)
}

// ApprovedFor returns the operator currently approved for id.
func (v *Vault) ApprovedFor(ctx *common.Context, id uint64) (crypto.Address, error) {
	return v.positions.Approved(ctx, id)
}
