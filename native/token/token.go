// Package token implements a role-gated fungible asset ledger. The stable
// asset and the collateral asset are both instances of it.
package token

import (
	"fmt"
	"math/big"

	"stablevault/core/events"
	"stablevault/crypto"
	"stablevault/native/access"
	"stablevault/native/common"
)

var (
	errInvalidMetadata       = fmt.Errorf("token: name and symbol required: %w", common.ErrInvalidAmount)
	errSupplyOverflow        = fmt.Errorf("token: total supply exceeds 256 bits: %w", common.ErrInvalidAmount)
	errInsufficientBalance   = fmt.Errorf("token: %w", common.ErrInsufficientBalance)
	errInsufficientAllowance = fmt.Errorf("token: insufficient allowance: %w", common.ErrTransferFailed)
	errZeroRecipient         = fmt.Errorf("token: recipient: %w", common.ErrZeroAddress)
	errNotInitialized        = fmt.Errorf("token: %w", common.ErrNotInitialized)
)

// Token is a fungible ledger bound to a contract address.
type Token struct {
	addr   crypto.Address
	roles  common.RoleSet
	access *access.Control
}

// New binds a token ledger to addr using the supplied role tags.
func New(addr crypto.Address, roles common.RoleSet) *Token {
	return &Token{addr: addr, roles: roles, access: access.New(addr, roles)}
}

// Address returns the contract address of the ledger.
func (t *Token) Address() crypto.Address { return t.addr }

func (t *Token) headerKey() []byte { return common.Key(t.addr, "header") }

func (t *Token) balanceKey(owner crypto.Address) []byte {
	return common.Key(t.addr, "balance", owner.Bytes())
}

func (t *Token) allowanceKey(owner, spender crypto.Address) []byte {
	return common.Key(t.addr, "allowance", owner.Bytes(), spender.Bytes())
}

// Init records metadata and makes owner the contract owner and admin.
func (t *Token) Init(ctx *common.Context, meta Metadata, owner crypto.Address) error {
	meta = meta.Normalize()
	if meta.Name == "" || meta.Symbol == "" {
		return errInvalidMetadata
	}
	if err := t.access.InitOwner(ctx, owner); err != nil {
		return err
	}
	return t.putHeader(ctx, &ledgerState{Meta: meta, TotalSupply: big.NewInt(0), InterestRate: big.NewInt(0)})
}

func (t *Token) header(ctx *common.Context) (*ledgerState, error) {
	header := new(ledgerState)
	ok, err := ctx.State().KVGet(t.headerKey(), header)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errNotInitialized
	}
	if header.TotalSupply == nil {
		header.TotalSupply = big.NewInt(0)
	}
	if header.InterestRate == nil {
		header.InterestRate = big.NewInt(0)
	}
	return header, nil
}

func (t *Token) putHeader(ctx *common.Context, header *ledgerState) error {
	return ctx.State().KVPut(t.headerKey(), header)
}

// Metadata returns the name, symbol and decimals of the asset.
func (t *Token) Metadata(ctx *common.Context) (Metadata, error) {
	header, err := t.header(ctx)
	if err != nil {
		return Metadata{}, err
	}
	return header.Meta, nil
}

// TotalSupply returns the sum of all balances.
func (t *Token) TotalSupply(ctx *common.Context) (*big.Int, error) {
	header, err := t.header(ctx)
	if err != nil {
		return nil, err
	}
	return common.Copy(header.TotalSupply), nil
}

// BalanceOf returns the balance held by owner.
func (t *Token) BalanceOf(ctx *common.Context, owner crypto.Address) (*big.Int, error) {
	balance := new(big.Int)
	ok, err := ctx.State().KVGet(t.balanceKey(owner), balance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}

func (t *Token) setBalance(ctx *common.Context, owner crypto.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return ctx.State().KVDelete(t.balanceKey(owner))
	}
	return ctx.State().KVPut(t.balanceKey(owner), amount)
}

// Allowance returns how much spender may move out of owner's balance.
func (t *Token) Allowance(ctx *common.Context, owner, spender crypto.Address) (*big.Int, error) {
	allowance := new(big.Int)
	ok, err := ctx.State().KVGet(t.allowanceKey(owner, spender), allowance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return allowance, nil
}

func (t *Token) setAllowance(ctx *common.Context, owner, spender crypto.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		if err := ctx.State().KVDelete(t.allowanceKey(owner, spender)); err != nil {
			return err
		}
	} else if err := ctx.State().KVPut(t.allowanceKey(owner, spender), amount); err != nil {
		return err
	}
	ctx.Emit(events.TokenApproval{Token: t.addr, Owner: owner, Spender: spender, Amount: common.Copy(amount)})
	return nil
}

func (t *Token) move(ctx *common.Context, from, to crypto.Address, amount *big.Int) error {
	if to.IsZero() {
		return errZeroRecipient
	}
	if amount == nil || amount.Sign() < 0 {
		return common.ErrInvalidAmount
	}
	header, err := t.header(ctx)
	if err != nil {
		return err
	}
	fromBalance, err := t.BalanceOf(ctx, from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return errInsufficientBalance
	}
	if err := t.setBalance(ctx, from, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	toBalance, err := t.BalanceOf(ctx, to)
	if err != nil {
		return err
	}
	if err := t.setBalance(ctx, to, new(big.Int).Add(toBalance, amount)); err != nil {
		return err
	}
	ctx.Emit(events.TokenTransfer{Token: t.addr, Symbol: header.Meta.Symbol, From: from, To: to, Amount: common.Copy(amount)})
	return nil
}

// Transfer moves amount from the caller to to.
func (t *Token) Transfer(ctx *common.Context, to crypto.Address, amount *big.Int) error {
	return t.move(ctx, ctx.Caller(), to, amount)
}

// Approve sets the caller's allowance for spender to amount.
func (t *Token) Approve(ctx *common.Context, spender crypto.Address, amount *big.Int) error {
	if spender.IsZero() {
		return fmt.Errorf("token: spender: %w", common.ErrZeroAddress)
	}
	if amount == nil || amount.Sign() < 0 {
		return common.ErrInvalidAmount
	}
	return t.setAllowance(ctx, ctx.Caller(), spender, amount)
}

// IncreaseAllowance raises the caller's allowance for spender by delta.
func (t *Token) IncreaseAllowance(ctx *common.Context, spender crypto.Address, delta *big.Int) error {
	if err := common.RequirePositive(delta); err != nil {
		return err
	}
	current, err := t.Allowance(ctx, ctx.Caller(), spender)
	if err != nil {
		return err
	}
	return t.Approve(ctx, spender, current.Add(current, delta))
}

// DecreaseAllowance lowers the caller's allowance for spender by delta.
func (t *Token) DecreaseAllowance(ctx *common.Context, spender crypto.Address, delta *big.Int) error {
	if err := common.RequirePositive(delta); err != nil {
		return err
	}
	current, err := t.Allowance(ctx, ctx.Caller(), spender)
	if err != nil {
		return err
	}
	if current.Cmp(delta) < 0 {
		return errInsufficientAllowance
	}
	return t.Approve(ctx, spender, current.Sub(current, delta))
}

// TransferFrom moves amount from from to to on behalf of the caller, spending
// the caller's allowance.
func (t *Token) TransferFrom(ctx *common.Context, from, to crypto.Address, amount *big.Int) error {
	spender := ctx.Caller()
	if amount == nil || amount.Sign() < 0 {
		return common.ErrInvalidAmount
	}
	allowance, err := t.Allowance(ctx, from, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return errInsufficientAllowance
	}
	if err := t.setAllowance(ctx, from, spender, allowance.Sub(allowance, amount)); err != nil {
		return err
	}
	return t.move(ctx, from, to, amount)
}

// Mint creates amount new units for to. Minter role only.
func (t *Token) Mint(ctx *common.Context, to crypto.Address, amount *big.Int) error {
	if err := t.access.OnlyRole(ctx, t.roles.Minter); err != nil {
		return fmt.Errorf("token: mint: %w", err)
	}
	if to.IsZero() {
		return errZeroRecipient
	}
	if err := common.RequirePositive(amount); err != nil {
		return err
	}
	header, err := t.header(ctx)
	if err != nil {
		return err
	}
	supply := new(big.Int).Add(header.TotalSupply, amount)
	if !common.Fits256(supply) {
		return errSupplyOverflow
	}
	balance, err := t.BalanceOf(ctx, to)
	if err != nil {
		return err
	}
	if err := t.setBalance(ctx, to, balance.Add(balance, amount)); err != nil {
		return err
	}
	header.TotalSupply = supply
	if err := t.putHeader(ctx, header); err != nil {
		return err
	}
	ctx.Emit(events.TokenTransfer{Token: t.addr, Symbol: header.Meta.Symbol, To: to, Amount: common.Copy(amount)})
	return nil
}

// Burn destroys amount units held by from. Burner role only.
func (t *Token) Burn(ctx *common.Context, from crypto.Address, amount *big.Int) error {
	if err := t.access.OnlyRole(ctx, t.roles.Burner); err != nil {
		return fmt.Errorf("token: burn: %w", err)
	}
	if err := common.RequirePositive(amount); err != nil {
		return err
	}
	header, err := t.header(ctx)
	if err != nil {
		return err
	}
	balance, err := t.BalanceOf(ctx, from)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return errInsufficientBalance
	}
	if err := t.setBalance(ctx, from, balance.Sub(balance, amount)); err != nil {
		return err
	}
	header.TotalSupply = new(big.Int).Sub(header.TotalSupply, amount)
	if err := t.putHeader(ctx, header); err != nil {
		return err
	}
	ctx.Emit(events.TokenTransfer{Token: t.addr, Symbol: header.Meta.Symbol, From: from, Amount: common.Copy(amount)})
	return nil
}

// SetupRole grants role to account. Callers must hold the admin role or own
// the token.
func (t *Token) SetupRole(ctx *common.Context, role common.Role, account crypto.Address) error {
	return t.access.Grant(ctx, role, account)
}

// RevokeRole removes role from account.
func (t *Token) RevokeRole(ctx *common.Context, role common.Role, account crypto.Address) error {
	return t.access.Revoke(ctx, role, account)
}

// RenounceRole drops role from the caller.
func (t *Token) RenounceRole(ctx *common.Context, role common.Role) error {
	return t.access.Renounce(ctx, role)
}

// HasRole reports whether account holds role on this token.
func (t *Token) HasRole(ctx *common.Context, role common.Role, account crypto.Address) bool {
	return t.access.HasRole(ctx, role, account)
}

// RoleMembers lists the holders of role.
func (t *Token) RoleMembers(ctx *common.Context, role common.Role) ([]crypto.Address, error) {
	return t.access.Members(ctx, role)
}

// Owner returns the token owner.
func (t *Token) Owner(ctx *common.Context) (crypto.Address, error) {
	return t.access.Owner(ctx)
}

// SetInterestRate records the yearly holder rate (e12). Setter role only.
func (t *Token) SetInterestRate(ctx *common.Context, rateE12 *big.Int) error {
	if err := t.access.OnlyRole(ctx, t.roles.Setter); err != nil {
		return fmt.Errorf("token: set interest rate: %w", err)
	}
	if rateE12 == nil || rateE12.Sign() < 0 {
		return common.ErrInvalidAmount
	}
	header, err := t.header(ctx)
	if err != nil {
		return err
	}
	header.InterestRate = common.Copy(rateE12)
	if err := t.putHeader(ctx, header); err != nil {
		return err
	}
	ctx.Emit(events.InterestRateUpdated{Token: t.addr, RateE12: common.Copy(rateE12), Setter: ctx.Caller()})
	return nil
}

// InterestRate returns the configured yearly holder rate (e12).
func (t *Token) InterestRate(ctx *common.Context) (*big.Int, error) {
	header, err := t.header(ctx)
	if err != nil {
		return nil, err
	}
	return common.Copy(header.InterestRate), nil
}
