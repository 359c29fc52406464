package rpc

import (
	"fmt"
	"math/big"
	"strings"

	"stablevault/integrations/indexer"
	"stablevault/native/common"
	"stablevault/native/measurer"
	"stablevault/native/oracle"
)

var errIndexerDisabled = fmt.Errorf("rpc: event indexer disabled: %w", common.ErrNotInitialized)

type PriceResult struct {
	Price     string `json:"price"`
	UpdatedAt uint64 `json:"updatedAt"`
	Setter    string `json:"setter"`
}

type RateParametersResult struct {
	InterestRateStepE12            string `json:"interestRateStepE12"`
	MaximumCollateralCoefficientE6 string `json:"maximumCollateralCoefficientE6"`
	CollateralStepValueE6          string `json:"collateralStepValueE6"`
	StableInterestRateStepE12      string `json:"stableInterestRateStepE12"`
}

type SystemAddressesResult struct {
	Owner           string `json:"owner"`
	Oracle          string `json:"oracle"`
	StableToken     string `json:"stableToken"`
	CollateralToken string `json:"collateralToken"`
	Measurer        string `json:"measurer"`
	Vault           string `json:"vault"`
	Controller      string `json:"controller"`
}

type priceParams struct {
	Price string `json:"price"`
}

type stabilityParams struct {
	Value *uint8 `json:"value"`
}

type eventsListParams struct {
	Type    string  `json:"type,omitempty"`
	VaultID *uint64 `json:"vaultId,omitempty"`
	After   uint64  `json:"after,omitempty"`
	Limit   int     `json:"limit,omitempty"`
}

func (s *Server) handleOracleGetPrice(c *callContext, _ *RPCRequest) (interface{}, error) {
	o, err := s.node.Oracle()
	if err != nil {
		return nil, err
	}
	var reading oracle.Reading
	err = s.node.Query(c.caller, func(ctx *common.Context) error {
		var err error
		reading, err = o.Reading(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return PriceResult{
		Price:     formatAmount(reading.Price),
		UpdatedAt: reading.UpdatedAt,
		Setter:    reading.Setter.String(),
	}, nil
}

func (s *Server) handleOracleSetPrice(c *callContext, req *RPCRequest) (interface{}, error) {
	var params priceParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	price, err := parseAmount("price", params.Price)
	if err != nil {
		return nil, err
	}
	o, err := s.node.Oracle()
	if err != nil {
		return nil, err
	}
	err = s.node.Execute(req.Method, c.caller, func(ctx *common.Context) error {
		return o.SetPrice(ctx, price)
	})
	if err != nil {
		return nil, err
	}
	return map[string]string{"price": price.String()}, nil
}

func (s *Server) handleMeasurerGetStability(c *callContext, _ *RPCRequest) (interface{}, error) {
	m, err := s.node.Measurer()
	if err != nil {
		return nil, err
	}
	var value uint8
	err = s.node.Query(c.caller, func(ctx *common.Context) error {
		var err error
		value, err = m.StabilityMeasure(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return map[string]uint8{"stability": value}, nil
}

func (s *Server) handleMeasurerSetStability(c *callContext, req *RPCRequest) (interface{}, error) {
	var params stabilityParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	if params.Value == nil {
		return nil, invalidParams("value required", nil)
	}
	m, err := s.node.Measurer()
	if err != nil {
		return nil, err
	}
	err = s.node.Execute(req.Method, c.caller, func(ctx *common.Context) error {
		return m.SetStabilityMeasure(ctx, *params.Value)
	})
	if err != nil {
		return nil, err
	}
	return map[string]uint8{"stability": *params.Value}, nil
}

func rateParametersResult(p measurer.RateParameters) RateParametersResult {
	return RateParametersResult{
		InterestRateStepE12:            formatAmount(p.InterestRateStepE12),
		MaximumCollateralCoefficientE6: formatAmount(p.MaximumCollateralCoefficientE6),
		CollateralStepValueE6:          formatAmount(p.CollateralStepValueE6),
		StableInterestRateStepE12:      formatAmount(p.StableInterestRateStepE12),
	}
}

func (s *Server) handleControllerGetParameters(c *callContext, _ *RPCRequest) (interface{}, error) {
	ctrl, err := s.node.Controller()
	if err != nil {
		return nil, err
	}
	var params measurer.RateParameters
	err = s.node.Query(c.caller, func(ctx *common.Context) error {
		var err error
		params, err = ctrl.RateParameters(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rateParametersResult(params), nil
}

func (s *Server) handleControllerSetParameters(c *callContext, req *RPCRequest) (interface{}, error) {
	var raw RateParametersResult
	if err := decodeParams(req, &raw); err != nil {
		return nil, err
	}
	var params measurer.RateParameters
	fields := []struct {
		name  string
		value string
		dst   **big.Int
	}{
		{"interestRateStepE12", raw.InterestRateStepE12, &params.InterestRateStepE12},
		{"maximumCollateralCoefficientE6", raw.MaximumCollateralCoefficientE6, &params.MaximumCollateralCoefficientE6},
		{"collateralStepValueE6", raw.CollateralStepValueE6, &params.CollateralStepValueE6},
		{"stableInterestRateStepE12", raw.StableInterestRateStepE12, &params.StableInterestRateStepE12},
	}
	for _, f := range fields {
		value, err := parseAmount(f.name, f.value)
		if err != nil {
			return nil, err
		}
		*f.dst = value
	}
	ctrl, err := s.node.Controller()
	if err != nil {
		return nil, err
	}
	err = s.node.Execute(req.Method, c.caller, func(ctx *common.Context) error {
		return ctrl.SetRateParameters(ctx, params)
	})
	if err != nil {
		return nil, err
	}
	return rateParametersResult(params), nil
}

func (s *Server) handleControllerControlStable(c *callContext, req *RPCRequest) (interface{}, error) {
	ctrl, err := s.node.Controller()
	if err != nil {
		return nil, err
	}
	var rate *big.Int
	err = s.node.Execute(req.Method, c.caller, func(ctx *common.Context) error {
		var err error
		rate, err = ctrl.ControlStable(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return map[string]string{"holderRateE12": formatAmount(rate)}, nil
}

func (s *Server) handleSystemAddresses(_ *callContext, _ *RPCRequest) (interface{}, error) {
	sys, err := s.node.System()
	if err != nil {
		return nil, err
	}
	return SystemAddressesResult{
		Owner:           sys.Owner.String(),
		Oracle:          sys.Oracle.String(),
		StableToken:     sys.StableToken.String(),
		CollateralToken: sys.CollateralToken.String(),
		Measurer:        sys.Measurer.String(),
		Vault:           sys.Vault.String(),
		Controller:      sys.Controller.String(),
	}, nil
}

func (s *Server) handleEventsList(c *callContext, req *RPCRequest) (interface{}, error) {
	if s.events == nil {
		return nil, errIndexerDisabled
	}
	var params eventsListParams
	if len(req.Params) > 0 {
		if err := decodeParams(req, &params); err != nil {
			return nil, err
		}
	}
	if params.Limit < 0 {
		return nil, invalidParams("limit must not be negative", params.Limit)
	}
	records, err := s.events.List(c.r.Context(), indexer.Filter{
		Type:          strings.TrimSpace(params.Type),
		VaultID:       params.VaultID,
		AfterSequence: params.After,
		Limit:         params.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("rpc: list events: %w", err)
	}
	if records == nil {
		records = []indexer.Record{}
	}
	return map[string]interface{}{"events": records}, nil
}
