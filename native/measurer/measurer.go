// Package measurer turns an oracle price and a collateral amount into the
// debt ceiling and borrowing rate a position is subject to.
package measurer

import (
	"fmt"
	"math/big"

	"stablevault/core/events"
	"stablevault/crypto"
	"stablevault/native/access"
	"stablevault/native/common"
)

var (
	errInvalidParameters = fmt.Errorf("measurer: invalid rate parameters: %w", common.ErrInvalidAmount)
	errUnknownOracle     = fmt.Errorf("measurer: oracle not registered: %w", common.ErrOracleUnavailable)
	errNotInitialized    = fmt.Errorf("measurer: %w", common.ErrNotInitialized)
)

// PriceFeed is the oracle surface the measurer reads.
type PriceFeed interface {
	GetPrice(ctx *common.Context) (*big.Int, error)
}

// Directory resolves oracle addresses to live feeds.
type Directory interface {
	PriceFeed(addr crypto.Address) (PriceFeed, error)
}

// Assessment is the risk view of a collateral amount at the current price.
type Assessment struct {
	Price               *big.Int
	CollateralValue     *big.Int
	MinCollateralCoefE6 *big.Int
	InterestRateE12     *big.Int
	HolderRateE12       *big.Int
	DebtCeiling         *big.Int
	StabilityMeasure    uint8
}

type config struct {
	Oracle             crypto.Address
	CollateralDecimals uint8
	Stability          uint8
}

// Measurer is the risk measurer contract.
type Measurer struct {
	addr   crypto.Address
	access *access.Control
	feeds  Directory
}

// New binds a measurer to addr. feeds resolves the configured oracle address.
func New(addr crypto.Address, roles common.RoleSet, feeds Directory) *Measurer {
	return &Measurer{addr: addr, access: access.New(addr, roles), feeds: feeds}
}

// Address returns the measurer contract address.
func (m *Measurer) Address() crypto.Address { return m.addr }

func (m *Measurer) configKey() []byte { return common.Key(m.addr, "config") }

// Init binds the measurer to oracle and records the collateral asset decimals.
func (m *Measurer) Init(ctx *common.Context, oracle, owner crypto.Address, collateralDecimals uint8) error {
	if oracle.IsZero() {
		return fmt.Errorf("measurer: oracle: %w", common.ErrZeroAddress)
	}
	if err := m.access.InitOwner(ctx, owner); err != nil {
		return err
	}
	return m.putConfig(ctx, config{Oracle: oracle, CollateralDecimals: collateralDecimals, Stability: NeutralStability})
}

func (m *Measurer) config(ctx *common.Context) (config, error) {
	var cfg config
	ok, err := ctx.State().KVGet(m.configKey(), &cfg)
	if err != nil {
		return config{}, err
	}
	if !ok {
		return config{}, errNotInitialized
	}
	return cfg, nil
}

func (m *Measurer) putConfig(ctx *common.Context, cfg config) error {
	return ctx.State().KVPut(m.configKey(), cfg)
}

// Owner returns the measurer owner.
func (m *Measurer) Owner(ctx *common.Context) (crypto.Address, error) {
	return m.access.Owner(ctx)
}

// OracleAddress returns the bound oracle.
func (m *Measurer) OracleAddress(ctx *common.Context) (crypto.Address, error) {
	cfg, err := m.config(ctx)
	if err != nil {
		return crypto.Address{}, err
	}
	return cfg.Oracle, nil
}

// SetOracleAddress re-points the measurer at another oracle. Owner only.
func (m *Measurer) SetOracleAddress(ctx *common.Context, oracle crypto.Address) error {
	if err := m.access.OnlyOwner(ctx); err != nil {
		return err
	}
	if oracle.IsZero() {
		return fmt.Errorf("measurer: oracle: %w", common.ErrZeroAddress)
	}
	cfg, err := m.config(ctx)
	if err != nil {
		return err
	}
	cfg.Oracle = oracle
	if err := m.putConfig(ctx, cfg); err != nil {
		return err
	}
	ctx.Emit(events.BindingUpdated{Contract: m.addr, Kind: "oracle", Target: oracle})
	return nil
}

// StabilityMeasure returns the protocol stability input of the curve.
func (m *Measurer) StabilityMeasure(ctx *common.Context) (uint8, error) {
	cfg, err := m.config(ctx)
	if err != nil {
		return 0, err
	}
	return cfg.Stability, nil
}

// SetStabilityMeasure updates the stability input. Owner only.
func (m *Measurer) SetStabilityMeasure(ctx *common.Context, value uint8) error {
	if err := m.access.OnlyOwner(ctx); err != nil {
		return err
	}
	cfg, err := m.config(ctx)
	if err != nil {
		return err
	}
	cfg.Stability = value
	if err := m.putConfig(ctx, cfg); err != nil {
		return err
	}
	ctx.Emit(events.StabilityMeasureUpdated{Measurer: m.addr, Value: value})
	return nil
}

// CollateralValue converts a collateral amount into stable units at price.
func CollateralValue(collateral, price *big.Int, collateralDecimals uint8) *big.Int {
	value := new(big.Int).Mul(orZero(collateral), orZero(price))
	return value.Quo(value, common.Pow10(collateralDecimals))
}

// DebtCeiling returns value / coefficient with the coefficient in e6.
func DebtCeiling(value, coefE6 *big.Int) *big.Int {
	if coefE6 == nil || coefE6.Sign() <= 0 {
		return big.NewInt(0)
	}
	ceiling := new(big.Int).Mul(orZero(value), e6)
	return ceiling.Quo(ceiling, coefE6)
}

// ComputeRatio prices collateral through the bound oracle and applies the
// stepped curve. It fails with an oracle-unavailable error when the oracle is
// unknown or has no reading.
func (m *Measurer) ComputeRatio(ctx *common.Context, collateral *big.Int, params RateParameters) (Assessment, error) {
	if collateral == nil || collateral.Sign() < 0 {
		return Assessment{}, common.ErrInvalidAmount
	}
	if err := params.Validate(); err != nil {
		return Assessment{}, err
	}
	cfg, err := m.config(ctx)
	if err != nil {
		return Assessment{}, err
	}
	if m.feeds == nil {
		return Assessment{}, errUnknownOracle
	}
	feed, err := m.feeds.PriceFeed(cfg.Oracle)
	if err != nil {
		return Assessment{}, fmt.Errorf("%w: %v", errUnknownOracle, err)
	}
	var price *big.Int
	if err := ctx.Call(m.addr, func(inner *common.Context) error {
		var perr error
		price, perr = feed.GetPrice(inner)
		return perr
	}); err != nil {
		return Assessment{}, err
	}

	point := Curve(cfg.Stability, params)
	value := CollateralValue(collateral, price, cfg.CollateralDecimals)
	return Assessment{
		Price:               price,
		CollateralValue:     value,
		MinCollateralCoefE6: point.MinCollateralCoefE6,
		InterestRateE12:     point.InterestRateE12,
		HolderRateE12:       point.HolderRateE12,
		DebtCeiling:         DebtCeiling(value, point.MinCollateralCoefE6),
		StabilityMeasure:    cfg.Stability,
	}, nil
}
