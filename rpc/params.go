package rpc

import (
	"bytes"
	"encoding/json"
	"math/big"
	"strings"

	"stablevault/crypto"
)

// decodeParams unmarshals the single parameter object of req into dst.
// Methods without parameters accept an empty list.
func decodeParams(req *RPCRequest, dst interface{}) error {
	if len(req.Params) == 0 {
		return invalidParams("parameter object required", nil)
	}
	if len(req.Params) > 1 {
		return invalidParams("expected a single parameter object", len(req.Params))
	}
	dec := json.NewDecoder(bytes.NewReader(req.Params[0]))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return invalidParams("invalid parameter object", err.Error())
	}
	return nil
}

func parseAddress(field, raw string) (crypto.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return crypto.Address{}, invalidParams(field+" required", nil)
	}
	addr, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return crypto.Address{}, invalidParams("invalid "+field, err.Error())
	}
	return addr, nil
}

// parseAmount accepts a non-negative base-10 integer string.
func parseAmount(field, raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, invalidParams(field+" required", nil)
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || value.Sign() < 0 {
		return nil, invalidParams("invalid "+field, trimmed)
	}
	return value, nil
}

func requireID(field string, id *uint64) (uint64, error) {
	if id == nil {
		return 0, invalidParams(field+" required", nil)
	}
	return *id, nil
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
