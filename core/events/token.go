package events

import (
	"math/big"
	"strconv"

	"stablevault/core/types"
	"stablevault/crypto"
)

const (
	// TypeTokenTransfer covers transfers, mints (empty from) and burns (empty to).
	TypeTokenTransfer = "token.transfer"
	TypeTokenApproval = "token.approval"
	TypeRoleGranted   = "access.role_granted"
	TypeRoleRevoked   = "access.role_revoked"
	TypeOwnership     = "access.ownership_transferred"
	TypeInterestRate  = "token.interest_rate_updated"
)

type TokenTransfer struct {
	Token  crypto.Address
	Symbol string
	From   crypto.Address
	To     crypto.Address
	Amount *big.Int
}

func (TokenTransfer) EventType() string { return TypeTokenTransfer }

func (e TokenTransfer) Event() *types.Event {
	return &types.Event{Type: TypeTokenTransfer, Attributes: map[string]string{
		"token":  formatAddress(e.Token),
		"symbol": e.Symbol,
		"from":   formatAddress(e.From),
		"to":     formatAddress(e.To),
		"amount": formatAmount(e.Amount),
	}}
}

type TokenApproval struct {
	Token   crypto.Address
	Owner   crypto.Address
	Spender crypto.Address
	Amount  *big.Int
}

func (TokenApproval) EventType() string { return TypeTokenApproval }

func (e TokenApproval) Event() *types.Event {
	return &types.Event{Type: TypeTokenApproval, Attributes: map[string]string{
		"token":   formatAddress(e.Token),
		"owner":   formatAddress(e.Owner),
		"spender": formatAddress(e.Spender),
		"amount":  formatAmount(e.Amount),
	}}
}

type RoleGranted struct {
	Contract crypto.Address
	Role     uint32
	Account  crypto.Address
	Sender   crypto.Address
}

func (RoleGranted) EventType() string { return TypeRoleGranted }

func (e RoleGranted) Event() *types.Event {
	return &types.Event{Type: TypeRoleGranted, Attributes: map[string]string{
		"contract": formatAddress(e.Contract),
		"role":     strconv.FormatUint(uint64(e.Role), 10),
		"account":  formatAddress(e.Account),
		"sender":   formatAddress(e.Sender),
	}}
}

type RoleRevoked struct {
	Contract crypto.Address
	Role     uint32
	Account  crypto.Address
	Sender   crypto.Address
}

func (RoleRevoked) EventType() string { return TypeRoleRevoked }

func (e RoleRevoked) Event() *types.Event {
	return &types.Event{Type: TypeRoleRevoked, Attributes: map[string]string{
		"contract": formatAddress(e.Contract),
		"role":     strconv.FormatUint(uint64(e.Role), 10),
		"account":  formatAddress(e.Account),
		"sender":   formatAddress(e.Sender),
	}}
}

type OwnershipTransferred struct {
	Contract crypto.Address
	Previous crypto.Address
	Next     crypto.Address
}

func (OwnershipTransferred) EventType() string { return TypeOwnership }

func (e OwnershipTransferred) Event() *types.Event {
	return &types.Event{Type: TypeOwnership, Attributes: map[string]string{
		"contract": formatAddress(e.Contract),
		"previous": formatAddress(e.Previous),
		"next":     formatAddress(e.Next),
	}}
}

type InterestRateUpdated struct {
	Token   crypto.Address
	RateE12 *big.Int
	Setter  crypto.Address
}

func (InterestRateUpdated) EventType() string { return TypeInterestRate }

func (e InterestRateUpdated) Event() *types.Event {
	return &types.Event{Type: TypeInterestRate, Attributes: map[string]string{
		"token":   formatAddress(e.Token),
		"rateE12": formatAmount(e.RateE12),
		"setter":  formatAddress(e.Setter),
	}}
}
