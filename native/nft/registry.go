// Package nft tracks ownership tokens: one non-fungible id per position, held
// by exactly one account at a time.
package nft

import (
	"fmt"

	"stablevault/crypto"
	"stablevault/native/common"
)

var (
	ErrTokenExists   = fmt.Errorf("nft: token already minted: %w", common.ErrInvalidAmount)
	ErrTokenNotFound = fmt.Errorf("nft: token: %w", common.ErrNotFound)
	ErrNotApproved   = fmt.Errorf("nft: caller is neither holder nor approved: %w", common.ErrNotOwner)
	errZeroHolder    = fmt.Errorf("nft: holder: %w", common.ErrZeroAddress)
)

// Registry stores holders of ownership tokens under a contract's namespace.
// It carries no access policy of its own; the embedding contract decides who
// may mint and burn.
type Registry struct {
	scope crypto.Address
}

// NewRegistry binds a registry to scope.
func NewRegistry(scope crypto.Address) *Registry {
	return &Registry{scope: scope}
}

func (r *Registry) holderKey(id uint64) []byte {
	return common.Key(r.scope, "nft/holder", common.U64(id))
}

func (r *Registry) approvalKey(id uint64) []byte {
	return common.Key(r.scope, "nft/approval", common.U64(id))
}

func (r *Registry) indexKey(holder crypto.Address) []byte {
	return common.Key(r.scope, "nft/index", holder.Bytes())
}

func (r *Registry) supplyKey() []byte {
	return common.Key(r.scope, "nft/supply")
}

// OwnerOf returns the holder of id.
func (r *Registry) OwnerOf(ctx *common.Context, id uint64) (crypto.Address, error) {
	var holder crypto.Address
	ok, err := ctx.State().KVGet(r.holderKey(id), &holder)
	if err != nil {
		return crypto.Address{}, err
	}
	if !ok || holder.IsZero() {
		return crypto.Address{}, ErrTokenNotFound
	}
	return holder, nil
}

// Exists reports whether id is currently minted.
func (r *Registry) Exists(ctx *common.Context, id uint64) (bool, error) {
	return ctx.State().KVGet(r.holderKey(id), nil)
}

// TotalSupply returns the number of live tokens.
func (r *Registry) TotalSupply(ctx *common.Context) (uint64, error) {
	var supply uint64
	if _, err := ctx.State().KVGet(r.supplyKey(), &supply); err != nil {
		return 0, err
	}
	return supply, nil
}

// TokensOf lists the ids held by holder in acquisition order.
func (r *Registry) TokensOf(ctx *common.Context, holder crypto.Address) ([]uint64, error) {
	var raw [][]byte
	if err := ctx.State().KVGetList(r.indexKey(holder), &raw); err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(raw))
	for _, item := range raw {
		if id, ok := common.ParseU64(item); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// BalanceOf returns how many tokens holder owns.
func (r *Registry) BalanceOf(ctx *common.Context, holder crypto.Address) (uint64, error) {
	ids, err := r.TokensOf(ctx, holder)
	if err != nil {
		return 0, err
	}
	return uint64(len(ids)), nil
}

// Approved returns the account allowed to move id, if any.
func (r *Registry) Approved(ctx *common.Context, id uint64) (crypto.Address, error) {
	var approved crypto.Address
	if _, err := ctx.State().KVGet(r.approvalKey(id), &approved); err != nil {
		return crypto.Address{}, err
	}
	return approved, nil
}

func (r *Registry) setSupply(ctx *common.Context, delta int) error {
	supply, err := r.TotalSupply(ctx)
	if err != nil {
		return err
	}
	if delta < 0 {
		supply--
	} else {
		supply++
	}
	return ctx.State().KVPut(r.supplyKey(), supply)
}

// Mint assigns a new token id to holder.
func (r *Registry) Mint(ctx *common.Context, holder crypto.Address, id uint64) error {
	if holder.IsZero() {
		return errZeroHolder
	}
	exists, err := r.Exists(ctx, id)
	if err != nil {
		return err
	}
	if exists {
		return ErrTokenExists
	}
	if err := ctx.State().KVPut(r.holderKey(id), holder); err != nil {
		return err
	}
	if err := ctx.State().KVAppend(r.indexKey(holder), common.U64(id)); err != nil {
		return err
	}
	return r.setSupply(ctx, 1)
}

// Burn removes id from circulation.
func (r *Registry) Burn(ctx *common.Context, id uint64) error {
	holder, err := r.OwnerOf(ctx, id)
	if err != nil {
		return err
	}
	if err := ctx.State().KVDelete(r.holderKey(id)); err != nil {
		return err
	}
	if err := ctx.State().KVDelete(r.approvalKey(id)); err != nil {
		return err
	}
	if err := ctx.State().KVRemove(r.indexKey(holder), common.U64(id)); err != nil {
		return err
	}
	return r.setSupply(ctx, -1)
}

// Approve lets operator move id once. Only the holder may approve.
func (r *Registry) Approve(ctx *common.Context, operator crypto.Address, id uint64) error {
	holder, err := r.OwnerOf(ctx, id)
	if err != nil {
		return err
	}
	if !holder.Equal(ctx.Caller()) {
		return ErrNotApproved
	}
	if operator.IsZero() {
		return ctx.State().KVDelete(r.approvalKey(id))
	}
	return ctx.State().KVPut(r.approvalKey(id), operator)
}

// Transfer moves id to to. The caller must hold the token or be approved for it.
func (r *Registry) Transfer(ctx *common.Context, to crypto.Address, id uint64) (crypto.Address, error) {
	holder, err := r.OwnerOf(ctx, id)
	if err != nil {
		return crypto.Address{}, err
	}
	caller := ctx.Caller()
	if !holder.Equal(caller) {
		approved, err := r.Approved(ctx, id)
		if err != nil {
			return crypto.Address{}, err
		}
		if approved.IsZero() || !approved.Equal(caller) {
			return crypto.Address{}, ErrNotApproved
		}
	}
	return holder, r.Move(ctx, id, to)
}

// Move reassigns id to to without any authorisation check. Embedding
// contracts use it when their own rules already allow the change.
func (r *Registry) Move(ctx *common.Context, id uint64, to crypto.Address) error {
	if to.IsZero() {
		return errZeroHolder
	}
	holder, err := r.OwnerOf(ctx, id)
	if err != nil {
		return err
	}
	if holder.Equal(to) {
		return nil
	}
	if err := ctx.State().KVRemove(r.indexKey(holder), common.U64(id)); err != nil {
		return err
	}
	if err := ctx.State().KVAppend(r.indexKey(to), common.U64(id)); err != nil {
		return err
	}
	if err := ctx.State().KVDelete(r.approvalKey(id)); err != nil {
		return err
	}
	return ctx.State().KVPut(r.holderKey(id), to)
}
