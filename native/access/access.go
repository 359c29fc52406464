// Package access implements contract ownership and role-based access control
// persisted under the owning contract's namespace.
package access

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"stablevault/core/events"
	"stablevault/crypto"
	"stablevault/native/common"
)

var (
	errNotContractOwner = fmt.Errorf("access: caller is not the contract owner: %w", common.ErrUnauthorized)
	errMissingRole      = fmt.Errorf("access: caller is missing role: %w", common.ErrUnauthorized)
	errNotAdmin         = fmt.Errorf("access: caller cannot administer roles: %w", common.ErrUnauthorized)
	errZeroAccount      = fmt.Errorf("access: account must be set: %w", common.ErrZeroAddress)
)

// Control bundles ownership and role grants for one contract.
type Control struct {
	contract crypto.Address
	roles    common.RoleSet
}

// New binds access control to the contract at addr.
func New(contract crypto.Address, roles common.RoleSet) *Control {
	return &Control{contract: contract, roles: roles}
}

// Roles returns the role set the control was built with.
func (c *Control) Roles() common.RoleSet { return c.roles }

func (c *Control) ownerKey() []byte { return common.Key(c.contract, "owner") }

func roleTag(role common.Role) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(role))
	return buf[:]
}

func (c *Control) grantKey(role common.Role, account crypto.Address) []byte {
	return common.Key(c.contract, "role", roleTag(role), account.Bytes())
}

func (c *Control) membersKey(role common.Role) []byte {
	return common.Key(c.contract, "role-members", roleTag(role))
}

// InitOwner records owner as the contract owner and grants it the admin role.
// It may run once per contract.
func (c *Control) InitOwner(ctx *common.Context, owner crypto.Address) error {
	if owner.IsZero() {
		return errZeroAccount
	}
	current, err := c.Owner(ctx)
	if err != nil {
		return err
	}
	if !current.IsZero() {
		return fmt.Errorf("access: %w", common.ErrAlreadyInitialized)
	}
	if err := ctx.State().KVPut(c.ownerKey(), owner); err != nil {
		return err
	}
	ctx.Emit(events.OwnershipTransferred{Contract: c.contract, Next: owner})
	return c.grant(ctx, c.roles.DefaultAdmin, owner)
}

// Owner returns the current owner or the zero address before initialisation.
func (c *Control) Owner(ctx *common.Context) (crypto.Address, error) {
	var owner crypto.Address
	if _, err := ctx.State().KVGet(c.ownerKey(), &owner); err != nil {
		return crypto.Address{}, err
	}
	return owner, nil
}

// OnlyOwner fails unless the caller owns the contract.
func (c *Control) OnlyOwner(ctx *common.Context) error {
	owner, err := c.Owner(ctx)
	if err != nil {
		return err
	}
	if owner.IsZero() || !owner.Equal(ctx.Caller()) {
		return errNotContractOwner
	}
	return nil
}

// TransferOwnership hands the contract to next. Owner only.
func (c *Control) TransferOwnership(ctx *common.Context, next crypto.Address) error {
	if err := c.OnlyOwner(ctx); err != nil {
		return err
	}
	if next.IsZero() {
		return errZeroAccount
	}
	previous, err := c.Owner(ctx)
	if err != nil {
		return err
	}
	if err := ctx.State().KVPut(c.ownerKey(), next); err != nil {
		return err
	}
	ctx.Emit(events.OwnershipTransferred{Contract: c.contract, Previous: previous, Next: next})
	return nil
}

// HasRole reports whether account holds role.
func (c *Control) HasRole(ctx *common.Context, role common.Role, account crypto.Address) bool {
	if account.IsZero() {
		return false
	}
	var granted bool
	ok, err := ctx.State().KVGet(c.grantKey(role, account), &granted)
	return err == nil && ok && granted
}

// OnlyRole fails unless the caller holds role.
func (c *Control) OnlyRole(ctx *common.Context, role common.Role) error {
	if !c.HasRole(ctx, role, ctx.Caller()) {
		return fmt.Errorf("%w (%s)", errMissingRole, c.roles.Name(role))
	}
	return nil
}

// OnlyOwnerOrRole admits the owner and any holder of role.
func (c *Control) OnlyOwnerOrRole(ctx *common.Context, role common.Role) error {
	if err := c.OnlyOwner(ctx); err == nil {
		return nil
	} else if !errors.Is(err, common.ErrUnauthorized) {
		return err
	}
	return c.OnlyRole(ctx, role)
}

func (c *Control) onlyAdmin(ctx *common.Context) error {
	if c.HasRole(ctx, c.roles.DefaultAdmin, ctx.Caller()) {
		return nil
	}
	if err := c.OnlyOwner(ctx); err != nil {
		if errors.Is(err, common.ErrUnauthorized) {
			return errNotAdmin
		}
		return err
	}
	return nil
}

// Grant gives role to account. The caller must hold the admin role or own
// the contract. Granting an existing role is a no-op.
func (c *Control) Grant(ctx *common.Context, role common.Role, account crypto.Address) error {
	if err := c.onlyAdmin(ctx); err != nil {
		return err
	}
	if account.IsZero() {
		return errZeroAccount
	}
	return c.grant(ctx, role, account)
}

func (c *Control) grant(ctx *common.Context, role common.Role, account crypto.Address) error {
	if c.HasRole(ctx, role, account) {
		return nil
	}
	if err := ctx.State().KVPut(c.grantKey(role, account), true); err != nil {
		return err
	}
	encoded, err := rlp.EncodeToBytes(account)
	if err != nil {
		return err
	}
	if err := ctx.State().KVAppend(c.membersKey(role), encoded); err != nil {
		return err
	}
	ctx.Emit(events.RoleGranted{Contract: c.contract, Role: uint32(role), Account: account, Sender: ctx.Caller()})
	return nil
}

// Revoke removes role from account. Admin or owner only.
func (c *Control) Revoke(ctx *common.Context, role common.Role, account crypto.Address) error {
	if err := c.onlyAdmin(ctx); err != nil {
		return err
	}
	return c.revoke(ctx, role, account)
}

// Renounce drops role from the caller.
func (c *Control) Renounce(ctx *common.Context, role common.Role) error {
	return c.revoke(ctx, role, ctx.Caller())
}

func (c *Control) revoke(ctx *common.Context, role common.Role, account crypto.Address) error {
	if !c.HasRole(ctx, role, account) {
		return nil
	}
	if err := ctx.State().KVDelete(c.grantKey(role, account)); err != nil {
		return err
	}
	encoded, err := rlp.EncodeToBytes(account)
	if err != nil {
		return err
	}
	if err := ctx.State().KVRemove(c.membersKey(role), encoded); err != nil {
		return err
	}
	ctx.Emit(events.RoleRevoked{Contract: c.contract, Role: uint32(role), Account: account, Sender: ctx.Caller()})
	return nil
}

// Members lists the accounts currently holding role in grant order.
func (c *Control) Members(ctx *common.Context, role common.Role) ([]crypto.Address, error) {
	var raw [][]byte
	if err := ctx.State().KVGetList(c.membersKey(role), &raw); err != nil {
		return nil, err
	}
	out := make([]crypto.Address, 0, len(raw))
	for _, item := range raw {
		var addr crypto.Address
		if err := rlp.DecodeBytes(item, &addr); err != nil {
			return nil, fmt.Errorf("access: decode member: %w", err)
		}
		out = append(out, addr)
	}
	return out, nil
}
