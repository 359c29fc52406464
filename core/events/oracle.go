package events

import (
	"math/big"
	"strconv"

	"stablevault/core/types"
	"stablevault/crypto"
)

const (
	TypeOraclePriceUpdated = "oracle.price_updated"
	TypeOracleSetter       = "oracle.setter_updated"
)

type OraclePriceUpdated struct {
	Oracle    crypto.Address
	Price     *big.Int
	Setter    crypto.Address
	UpdatedAt int64
}

func (OraclePriceUpdated) EventType() string { return TypeOraclePriceUpdated }

func (e OraclePriceUpdated) Event() *types.Event {
	return &types.Event{Type: TypeOraclePriceUpdated, Attributes: map[string]string{
		"oracle":    formatAddress(e.Oracle),
		"price":     formatAmount(e.Price),
		"setter":    formatAddress(e.Setter),
		"updatedAt": strconv.FormatInt(e.UpdatedAt, 10),
	}}
}

type OracleSetterUpdated struct {
	Oracle crypto.Address
	Setter crypto.Address
}

func (OracleSetterUpdated) EventType() string { return TypeOracleSetter }

func (e OracleSetterUpdated) Event() *types.Event {
	return &types.Event{Type: TypeOracleSetter, Attributes: map[string]string{
		"oracle": formatAddress(e.Oracle),
		"setter": formatAddress(e.Setter),
	}}
}
