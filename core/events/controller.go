package events

import (
	"math/big"
	"strconv"

	"stablevault/core/types"
	"stablevault/crypto"
)

const (
	TypeRateParametersUpdated = "controller.rate_parameters_updated"
	TypeBindingUpdated        = "controller.binding_updated"
	TypeStabilityMeasure      = "measurer.stability_updated"
)

type RateParametersUpdated struct {
	Controller                     crypto.Address
	InterestRateStepE12            *big.Int
	MaximumCollateralCoefficientE6 *big.Int
	CollateralStepValueE6          *big.Int
	Sender                         crypto.Address
}

func (RateParametersUpdated) EventType() string { return TypeRateParametersUpdated }

func (e RateParametersUpdated) Event() *types.Event {
	return &types.Event{Type: TypeRateParametersUpdated, Attributes: map[string]string{
		"controller":                     formatAddress(e.Controller),
		"interestRateStepE12":            formatAmount(e.InterestRateStepE12),
		"maximumCollateralCoefficientE6": formatAmount(e.MaximumCollateralCoefficientE6),
		"collateralStepValueE6":          formatAmount(e.CollateralStepValueE6),
		"sender":                         formatAddress(e.Sender),
	}}
}

// BindingUpdated records a contract re-pointing one of its dependencies.
type BindingUpdated struct {
	Contract crypto.Address
	Kind     string
	Target   crypto.Address
}

func (BindingUpdated) EventType() string { return TypeBindingUpdated }

func (e BindingUpdated) Event() *types.Event {
	return &types.Event{Type: TypeBindingUpdated, Attributes: map[string]string{
		"contract": formatAddress(e.Contract),
		"kind":     e.Kind,
		"target":   formatAddress(e.Target),
	}}
}

type StabilityMeasureUpdated struct {
	Measurer crypto.Address
	Value    uint8
}

func (StabilityMeasureUpdated) EventType() string { return TypeStabilityMeasure }

func (e StabilityMeasureUpdated) Event() *types.Event {
	return &types.Event{Type: TypeStabilityMeasure, Attributes: map[string]string{
		"measurer": formatAddress(e.Measurer),
		"value":    strconv.FormatUint(uint64(e.Value), 10),
	}}
}
