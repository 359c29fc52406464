package events

import (
	"math/big"
	"strconv"

	"stablevault/crypto"
)

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatID(id uint64) string {
	return strconv.FormatUint(id, 10)
}

func formatAddress(addr crypto.Address) string {
	return addr.String()
}
