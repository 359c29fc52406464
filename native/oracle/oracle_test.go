package oracle

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"stablevault/core/state"
	"stablevault/crypto"
	"stablevault/native/common"
	"stablevault/storage"
)

func addr(b byte) crypto.Address {
	raw := make([]byte, 20)
	raw[0] = b
	return crypto.NewAddress(crypto.AccountPrefix, raw)
}

func setup(t *testing.T) (*Oracle, *state.Manager, crypto.Address) {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	owner := addr(1)
	o := New(crypto.ContractAddress(owner, "oracle"), common.DefaultRoles())
	if err := o.Init(common.NewContext(owner, mgr, time.Unix(0, 0)), owner); err != nil {
		t.Fatalf("init: %v", err)
	}
	return o, mgr, owner
}

func TestGetPriceUnavailableBeforeFirstReading(t *testing.T) {
	o, mgr, owner := setup(t)
	_, err := o.GetPrice(common.NewContext(owner, mgr, time.Unix(10, 0)))
	if !errors.Is(err, common.ErrOracleUnavailable) {
		t.Fatalf("expected ErrOracleUnavailable, got %v", err)
	}
}

func TestSetPriceAuthorization(t *testing.T) {
	o, mgr, owner := setup(t)
	feeder, stranger := addr(2), addr(3)

	if err := o.SetPrice(common.NewContext(stranger, mgr, time.Unix(10, 0)), big.NewInt(5)); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := o.SetPrice(common.NewContext(owner, mgr, time.Unix(10, 0)), big.NewInt(0)); !errors.Is(err, common.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := o.SetSetter(common.NewContext(stranger, mgr, time.Unix(10, 0)), feeder); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("only owner may delegate: %v", err)
	}
	if err := o.SetSetter(common.NewContext(owner, mgr, time.Unix(10, 0)), feeder); err != nil {
		t.Fatalf("set setter: %v", err)
	}
	if err := o.SetPrice(common.NewContext(feeder, mgr, time.Unix(20, 0)), big.NewInt(1_500_000)); err != nil {
		t.Fatalf("feeder set price: %v", err)
	}
	price, err := o.GetPrice(common.NewContext(stranger, mgr, time.Unix(30, 0)))
	if err != nil {
		t.Fatalf("get price: %v", err)
	}
	if price.Cmp(big.NewInt(1_500_000)) != 0 {
		t.Fatalf("unexpected price %s", price)
	}
	reading, err := o.Reading(common.NewContext(stranger, mgr, time.Unix(30, 0)))
	if err != nil || reading.UpdatedAt != 20 || !reading.Setter.Equal(feeder) {
		t.Fatalf("unexpected reading %+v %v", reading, err)
	}
}

func TestStalenessGuard(t *testing.T) {
	o, mgr, owner := setup(t)
	if err := o.SetPrice(common.NewContext(owner, mgr, time.Unix(100, 0)), big.NewInt(7)); err != nil {
		t.Fatalf("set price: %v", err)
	}
	if _, err := o.GetPrice(common.NewContext(owner, mgr, time.Unix(100_000, 0))); err != nil {
		t.Fatalf("guard disabled by default: %v", err)
	}
	if err := o.SetMaxAge(common.NewContext(owner, mgr, time.Unix(100, 0)), time.Minute); err != nil {
		t.Fatalf("set max age: %v", err)
	}
	if _, err := o.GetPrice(common.NewContext(owner, mgr, time.Unix(160, 0))); err != nil {
		t.Fatalf("reading at the bound should pass: %v", err)
	}
	_, err := o.GetPrice(common.NewContext(owner, mgr, time.Unix(161, 0)))
	if !errors.Is(err, ErrStaleReading) || !errors.Is(err, common.ErrOracleUnavailable) {
		t.Fatalf("expected stale reading, got %v", err)
	}
}
