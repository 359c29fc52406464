package events

import (
	"math/big"
	"strconv"

	"stablevault/core/types"
	"stablevault/crypto"
)

const (
	TypeVaultCreated        = "vault.created"
	TypeCollateralDeposited = "vault.collateral_deposited"
	TypeCollateralWithdrawn = "vault.collateral_withdrawn"
	TypeVaultDestroyed      = "vault.destroyed"
	TypeDebtBorrowed        = "vault.debt_borrowed"
	TypeDebtRepaid          = "vault.debt_repaid"
	TypeRiskyVaultBought    = "vault.risky_bought"
	TypeVaultTransferred    = "vault.transferred"
	TypeVaultPaused         = "vault.paused"
	TypeControllerUpdated   = "vault.controller_updated"
)

type VaultCreated struct {
	ID    uint64
	Owner crypto.Address
}

func (VaultCreated) EventType() string { return TypeVaultCreated }

func (e VaultCreated) Event() *types.Event {
	return &types.Event{Type: TypeVaultCreated, Attributes: map[string]string{
		"vaultId": formatID(e.ID),
		"owner":   formatAddress(e.Owner),
	}}
}

type CollateralDeposited struct {
	ID     uint64
	From   crypto.Address
	Amount *big.Int
}

func (CollateralDeposited) EventType() string { return TypeCollateralDeposited }

func (e CollateralDeposited) Event() *types.Event {
	return &types.Event{Type: TypeCollateralDeposited, Attributes: map[string]string{
		"vaultId": formatID(e.ID),
		"from":    formatAddress(e.From),
		"amount":  formatAmount(e.Amount),
	}}
}

type CollateralWithdrawn struct {
	ID     uint64
	Owner  crypto.Address
	Amount *big.Int
}

func (CollateralWithdrawn) EventType() string { return TypeCollateralWithdrawn }

func (e CollateralWithdrawn) Event() *types.Event {
	return &types.Event{Type: TypeCollateralWithdrawn, Attributes: map[string]string{
		"vaultId": formatID(e.ID),
		"owner":   formatAddress(e.Owner),
		"amount":  formatAmount(e.Amount),
	}}
}

type VaultDestroyed struct {
	ID    uint64
	Owner crypto.Address
}

func (VaultDestroyed) EventType() string { return TypeVaultDestroyed }

func (e VaultDestroyed) Event() *types.Event {
	return &types.Event{Type: TypeVaultDestroyed, Attributes: map[string]string{
		"vaultId": formatID(e.ID),
		"owner":   formatAddress(e.Owner),
	}}
}

type DebtBorrowed struct {
	ID     uint64
	Owner  crypto.Address
	Amount *big.Int
	Debt   *big.Int
}

func (DebtBorrowed) EventType() string { return TypeDebtBorrowed }

func (e DebtBorrowed) Event() *types.Event {
	return &types.Event{Type: TypeDebtBorrowed, Attributes: map[string]string{
		"vaultId": formatID(e.ID),
		"owner":   formatAddress(e.Owner),
		"amount":  formatAmount(e.Amount),
		"debt":    formatAmount(e.Debt),
	}}
}

type DebtRepaid struct {
	ID     uint64
	Payer  crypto.Address
	Amount *big.Int
	Debt   *big.Int
}

func (DebtRepaid) EventType() string { return TypeDebtRepaid }

func (e DebtRepaid) Event() *types.Event {
	return &types.Event{Type: TypeDebtRepaid, Attributes: map[string]string{
		"vaultId": formatID(e.ID),
		"payer":   formatAddress(e.Payer),
		"amount":  formatAmount(e.Amount),
		"debt":    formatAmount(e.Debt),
	}}
}

type RiskyVaultBought struct {
	ID            uint64
	Buyer         crypto.Address
	PreviousOwner crypto.Address
	Paid          *big.Int
}

func (RiskyVaultBought) EventType() string { return TypeRiskyVaultBought }

func (e RiskyVaultBought) Event() *types.Event {
	return &types.Event{Type: TypeRiskyVaultBought, Attributes: map[string]string{
		"vaultId":       formatID(e.ID),
		"buyer":         formatAddress(e.Buyer),
		"previousOwner": formatAddress(e.PreviousOwner),
		"paid":          formatAmount(e.Paid),
	}}
}

type VaultTransferred struct {
	ID   uint64
	From crypto.Address
	To   crypto.Address
}

func (VaultTransferred) EventType() string { return TypeVaultTransferred }

func (e VaultTransferred) Event() *types.Event {
	return &types.Event{Type: TypeVaultTransferred, Attributes: map[string]string{
		"vaultId": formatID(e.ID),
		"from":    formatAddress(e.From),
		"to":      formatAddress(e.To),
	}}
}

type VaultPaused struct {
	Paused bool
	By     crypto.Address
}

func (VaultPaused) EventType() string { return TypeVaultPaused }

func (e VaultPaused) Event() *types.Event {
	return &types.Event{Type: TypeVaultPaused, Attributes: map[string]string{
		"paused": strconv.FormatBool(e.Paused),
		"by":     formatAddress(e.By),
	}}
}

type ControllerUpdated struct {
	Vault      crypto.Address
	Controller crypto.Address
}

func (ControllerUpdated) EventType() string { return TypeControllerUpdated }

func (e ControllerUpdated) Event() *types.Event {
	return &types.Event{Type: TypeControllerUpdated, Attributes: map[string]string{
		"vault":      formatAddress(e.Vault),
		"controller": formatAddress(e.Controller),
	}}
}
