package config

import (
	"fmt"
	"math/big"
	"time"

	"stablevault/core"
	"stablevault/native/measurer"
	"stablevault/native/token"
)

// SystemConfig converts the [system] table into deployment parameters.
func (c *Config) SystemConfig() (core.SystemConfig, error) {
	s := c.System
	price, err := parseUintAmount("InitialPrice", s.InitialPrice)
	if err != nil {
		return core.SystemConfig{}, err
	}
	var params measurer.RateParameters
	fields := []struct {
		name string
		raw  string
		dst  **big.Int
	}{
		{"InterestRateStepE12", s.InterestRateStepE12, &params.InterestRateStepE12},
		{"MaximumCollateralCoefficientE6", s.MaximumCollateralCoefficientE6, &params.MaximumCollateralCoefficientE6},
		{"CollateralStepValueE6", s.CollateralStepValueE6, &params.CollateralStepValueE6},
		{"StableInterestRateStepE12", s.StableInterestRateStepE12, &params.StableInterestRateStepE12},
	}
	for _, f := range fields {
		value, err := parseUintAmount(f.name, f.raw)
		if err != nil {
			return core.SystemConfig{}, err
		}
		*f.dst = value
	}
	if err := params.Validate(); err != nil {
		return core.SystemConfig{}, fmt.Errorf("system: %w", err)
	}
	stable, collateral := assetMetadata(s.StableToken), assetMetadata(s.CollateralToken)
	if stable.Symbol == "" || collateral.Symbol == "" {
		return core.SystemConfig{}, fmt.Errorf("system: token symbols required")
	}
	return core.SystemConfig{
		StableToken:     stable,
		CollateralToken: collateral,
		InitialPrice:    price,
		OracleMaxAge:    time.Duration(s.OracleMaxAgeSeconds) * time.Second,
		RateParameters:  params,
	}, nil
}

func assetMetadata(a Asset) token.Metadata {
	return token.Metadata{Name: a.Name, Symbol: a.Symbol, Decimals: a.Decimals}.Normalize()
}
