package token

import (
	"math/big"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Metadata describes a fungible asset.
type Metadata struct {
	Name     string
	Symbol   string
	Decimals uint8
}

// Normalize folds name and symbol to NFKC, trims them and upper-cases the
// symbol, so compatibility forms such as full-width letters collapse onto one
// spelling.
func (m Metadata) Normalize() Metadata {
	return Metadata{
		Name:     strings.TrimSpace(norm.NFKC.String(m.Name)),
		Symbol:   strings.ToUpper(strings.TrimSpace(norm.NFKC.String(m.Symbol))),
		Decimals: m.Decimals,
	}
}

// ledgerState is the persisted header of a token contract.
type ledgerState struct {
	Meta         Metadata
	TotalSupply  *big.Int
	InterestRate *big.Int
}
