package controller

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"stablevault/core/state"
	"stablevault/crypto"
	"stablevault/native/common"
	"stablevault/native/measurer"
	"stablevault/storage"
)

func addr(b byte) crypto.Address {
	raw := make([]byte, 20)
	raw[0] = b
	return crypto.NewAddress(crypto.AccountPrefix, raw)
}

type recordingMeasurer struct {
	seen   measurer.RateParameters
	caller crypto.Address
}

func (r *recordingMeasurer) ComputeRatio(ctx *common.Context, collateral *big.Int, params measurer.RateParameters) (measurer.Assessment, error) {
	r.seen = params
	r.caller = ctx.Caller()
	point := measurer.Curve(40, params)
	return measurer.Assessment{
		DebtCeiling:   new(big.Int).Div(collateral, big.NewInt(2)),
		HolderRateE12: point.HolderRateE12,
	}, nil
}

type recordingStable struct {
	rate   *big.Int
	caller crypto.Address
}

func (r *recordingStable) SetInterestRate(ctx *common.Context, rateE12 *big.Int) error {
	r.rate = rateE12
	r.caller = ctx.Caller()
	return nil
}

type directory struct {
	measurers map[string]RiskMeasurer
	stables   map[string]StableToken
}

func (d directory) RiskMeasurer(a crypto.Address) (RiskMeasurer, error) {
	m, ok := d.measurers[a.String()]
	if !ok {
		return nil, errors.New("unknown measurer")
	}
	return m, nil
}

func (d directory) StableToken(a crypto.Address) (StableToken, error) {
	s, ok := d.stables[a.String()]
	if !ok {
		return nil, errors.New("unknown stable token")
	}
	return s, nil
}

type fixture struct {
	mgr        *state.Manager
	owner      crypto.Address
	ctl        *Controller
	measurer   *recordingMeasurer
	stable     *recordingStable
	measurerAt crypto.Address
	vaultAt    crypto.Address
	stableAt   crypto.Address
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		mgr:      state.NewManager(storage.NewMemDB()),
		owner:    addr(1),
		measurer: &recordingMeasurer{},
		stable:   &recordingStable{},
	}
	f.measurerAt = crypto.ContractAddress(f.owner, "measurer")
	f.vaultAt = crypto.ContractAddress(f.owner, "vault")
	f.stableAt = crypto.ContractAddress(f.owner, "stable")
	dir := directory{
		measurers: map[string]RiskMeasurer{f.measurerAt.String(): f.measurer},
		stables:   map[string]StableToken{f.stableAt.String(): f.stable},
	}
	f.ctl = New(crypto.ContractAddress(f.owner, "controller"), common.DefaultRoles(), dir)
	if err := f.ctl.Init(f.as(f.owner), f.measurerAt, f.vaultAt, f.owner, measurer.DefaultRateParameters()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return f
}

func (f *fixture) as(caller crypto.Address) *common.Context {
	return common.NewContext(caller, f.mgr, time.Unix(1, 0))
}

func TestAccessorsAndAssess(t *testing.T) {
	f := newFixture(t)
	vault, err := f.ctl.VaultAddress(f.as(f.owner))
	if err != nil || !vault.Equal(f.vaultAt) {
		t.Fatalf("vault mismatch %s %v", vault, err)
	}
	m, err := f.ctl.MeasurerAddress(f.as(f.owner))
	if err != nil || !m.Equal(f.measurerAt) {
		t.Fatalf("measurer mismatch %s %v", m, err)
	}
	got, err := f.ctl.Assess(f.as(f.vaultAt), big.NewInt(100))
	if err != nil {
		t.Fatalf("assess: %v", err)
	}
	if got.DebtCeiling.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("unexpected ceiling %s", got.DebtCeiling)
	}
	if f.measurer.seen.MaximumCollateralCoefficientE6.Cmp(big.NewInt(2_000_000)) != 0 {
		t.Fatalf("parameters not forwarded: %+v", f.measurer.seen)
	}
	if !f.measurer.caller.Equal(f.ctl.Address()) {
		t.Fatalf("measurer should be called by the controller")
	}
}

func TestSetRateParametersOwnerOrSetter(t *testing.T) {
	f := newFixture(t)
	setter, stranger := addr(4), addr(5)
	next := measurer.RateParameters{
		InterestRateStepE12:            big.NewInt(1_000),
		MaximumCollateralCoefficientE6: big.NewInt(1_500_000),
		CollateralStepValueE6:          big.NewInt(10_000),
	}
	if err := f.ctl.SetRateParameters(f.as(stranger), next); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.ctl.SetupRole(f.as(f.owner), common.DefaultRoles().Setter, setter); err != nil {
		t.Fatalf("grant setter: %v", err)
	}
	if err := f.ctl.SetRateParameters(f.as(setter), next); err != nil {
		t.Fatalf("setter update: %v", err)
	}
	got, err := f.ctl.RateParameters(f.as(stranger))
	if err != nil {
		t.Fatalf("read params: %v", err)
	}
	if got.MaximumCollateralCoefficientE6.Cmp(big.NewInt(1_500_000)) != 0 || got.StableInterestRateStepE12.Sign() != 0 {
		t.Fatalf("unexpected params %+v", got)
	}
	bad := measurer.RateParameters{MaximumCollateralCoefficientE6: big.NewInt(10)}
	if err := f.ctl.SetRateParameters(f.as(f.owner), bad); !errors.Is(err, common.ErrInvalidAmount) {
		t.Fatalf("expected invalid parameters, got %v", err)
	}
}

func TestRebindOwnerOnly(t *testing.T) {
	f := newFixture(t)
	other := crypto.ContractAddress(f.owner, "measurer-2")
	if err := f.ctl.SetMeasurerAddress(f.as(addr(9)), other); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.ctl.SetMeasurerAddress(f.as(f.owner), other); err != nil {
		t.Fatalf("rebind: %v", err)
	}
	if _, err := f.ctl.Assess(f.as(f.owner), big.NewInt(1)); !errors.Is(err, common.ErrOracleUnavailable) {
		t.Fatalf("expected unresolved measurer to fail, got %v", err)
	}
	if err := f.ctl.SetVaultAddress(f.as(f.owner), crypto.Address{}); !errors.Is(err, common.ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}
}

func TestControlStablePushesHolderRate(t *testing.T) {
	f := newFixture(t)
	if _, err := f.ctl.ControlStable(f.as(addr(7))); !errors.Is(err, common.ErrNotInitialized) {
		t.Fatalf("expected unbound stable to fail, got %v", err)
	}
	if err := f.ctl.SetStableAddress(f.as(addr(7)), f.stableAt); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.ctl.SetStableAddress(f.as(f.owner), f.stableAt); err != nil {
		t.Fatalf("bind stable: %v", err)
	}
	params := measurer.DefaultRateParameters()
	params.StableInterestRateStepE12 = big.NewInt(2_000)
	if err := f.ctl.SetRateParameters(f.as(f.owner), params); err != nil {
		t.Fatalf("set params: %v", err)
	}

	rate, err := f.ctl.ControlStable(f.as(addr(7)))
	if err != nil {
		t.Fatalf("control stable: %v", err)
	}
	if rate.Cmp(big.NewInt(20_000)) != 0 || f.stable.rate.Cmp(rate) != 0 {
		t.Fatalf("unexpected rate %s pushed %s", rate, f.stable.rate)
	}
	if !f.stable.caller.Equal(f.ctl.Address()) {
		t.Fatalf("stable token should be called by the controller, got %s", f.stable.caller)
	}

	if err := f.ctl.SetStableAddress(f.as(f.owner), crypto.ContractAddress(f.owner, "stable-2")); err != nil {
		t.Fatalf("rebind stable: %v", err)
	}
	if _, err := f.ctl.ControlStable(f.as(addr(7))); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected unresolved stable to fail, got %v", err)
	}
}
