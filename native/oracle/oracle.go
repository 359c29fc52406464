// Package oracle holds the single most recent collateral price reading.
package oracle

import (
	"fmt"
	"math/big"
	"time"

	"stablevault/core/events"
	"stablevault/crypto"
	"stablevault/native/access"
	"stablevault/native/common"
)

var (
	ErrNoReading      = fmt.Errorf("oracle: no price reading: %w", common.ErrOracleUnavailable)
	ErrStaleReading   = fmt.Errorf("oracle: price reading is stale: %w", common.ErrOracleUnavailable)
	errNotPriceSetter = fmt.Errorf("oracle: caller may not set the price: %w", common.ErrUnauthorized)
)

// Reading is the stored price observation. Price is expressed in the stable
// asset's smallest units per one whole collateral unit.
type Reading struct {
	Price     *big.Int
	UpdatedAt uint64
	Setter    crypto.Address
}

type settings struct {
	Setter crypto.Address
	MaxAge uint64
}

// Oracle is the price feed contract.
type Oracle struct {
	addr   crypto.Address
	access *access.Control
}

// New binds an oracle to addr.
func New(addr crypto.Address, roles common.RoleSet) *Oracle {
	return &Oracle{addr: addr, access: access.New(addr, roles)}
}

// Address returns the oracle contract address.
func (o *Oracle) Address() crypto.Address { return o.addr }

func (o *Oracle) readingKey() []byte  { return common.Key(o.addr, "reading") }
func (o *Oracle) settingsKey() []byte { return common.Key(o.addr, "settings") }

// Init makes owner the oracle owner. The owner may always publish prices.
func (o *Oracle) Init(ctx *common.Context, owner crypto.Address) error {
	return o.access.InitOwner(ctx, owner)
}

// Owner returns the oracle owner.
func (o *Oracle) Owner(ctx *common.Context) (crypto.Address, error) {
	return o.access.Owner(ctx)
}

func (o *Oracle) settings(ctx *common.Context) (settings, error) {
	var s settings
	if _, err := ctx.State().KVGet(o.settingsKey(), &s); err != nil {
		return settings{}, err
	}
	return s, nil
}

// Setter returns the delegated price publisher, if any.
func (o *Oracle) Setter(ctx *common.Context) (crypto.Address, error) {
	s, err := o.settings(ctx)
	if err != nil {
		return crypto.Address{}, err
	}
	return s.Setter, nil
}

// SetSetter delegates price publishing to setter. Owner only; the zero
// address clears the delegation.
func (o *Oracle) SetSetter(ctx *common.Context, setter crypto.Address) error {
	if err := o.access.OnlyOwner(ctx); err != nil {
		return err
	}
	s, err := o.settings(ctx)
	if err != nil {
		return err
	}
	s.Setter = setter
	if err := ctx.State().KVPut(o.settingsKey(), s); err != nil {
		return err
	}
	ctx.Emit(events.OracleSetterUpdated{Oracle: o.addr, Setter: setter})
	return nil
}

// MaxAge returns the staleness bound in seconds; zero disables the check.
func (o *Oracle) MaxAge(ctx *common.Context) (time.Duration, error) {
	s, err := o.settings(ctx)
	if err != nil {
		return 0, err
	}
	return time.Duration(s.MaxAge) * time.Second, nil
}

// SetMaxAge bounds how old a reading may be before GetPrice refuses it.
func (o *Oracle) SetMaxAge(ctx *common.Context, maxAge time.Duration) error {
	if err := o.access.OnlyOwner(ctx); err != nil {
		return err
	}
	if maxAge < 0 {
		return common.ErrInvalidAmount
	}
	s, err := o.settings(ctx)
	if err != nil {
		return err
	}
	s.MaxAge = uint64(maxAge / time.Second)
	return ctx.State().KVPut(o.settingsKey(), s)
}

// SetPrice overwrites the current reading. Only the owner or the configured
// setter may publish.
func (o *Oracle) SetPrice(ctx *common.Context, price *big.Int) error {
	caller := ctx.Caller()
	if err := o.access.OnlyOwner(ctx); err != nil {
		s, serr := o.settings(ctx)
		if serr != nil {
			return serr
		}
		if s.Setter.IsZero() || !s.Setter.Equal(caller) {
			return errNotPriceSetter
		}
	}
	if err := common.RequirePositive(price); err != nil {
		return fmt.Errorf("oracle: %w", err)
	}
	reading := Reading{Price: common.Copy(price), UpdatedAt: ctx.Timestamp(), Setter: caller}
	if err := ctx.State().KVPut(o.readingKey(), reading); err != nil {
		return err
	}
	ctx.Emit(events.OraclePriceUpdated{Oracle: o.addr, Price: common.Copy(price), Setter: caller, UpdatedAt: int64(reading.UpdatedAt)})
	return nil
}

// Reading returns the raw stored observation without staleness checks.
func (o *Oracle) Reading(ctx *common.Context) (Reading, error) {
	var reading Reading
	ok, err := ctx.State().KVGet(o.readingKey(), &reading)
	if err != nil {
		return Reading{}, err
	}
	if !ok || reading.Price == nil || reading.Price.Sign() <= 0 {
		return Reading{}, ErrNoReading
	}
	return reading, nil
}

// GetPrice returns the current price, failing when no reading exists or the
// reading is older than the configured max age.
func (o *Oracle) GetPrice(ctx *common.Context) (*big.Int, error) {
	reading, err := o.Reading(ctx)
	if err != nil {
		return nil, err
	}
	maxAge, err := o.MaxAge(ctx)
	if err != nil {
		return nil, err
	}
	if maxAge > 0 && ctx.Now().Sub(time.Unix(int64(reading.UpdatedAt), 0)) > maxAge {
		return nil, ErrStaleReading
	}
	return common.Copy(reading.Price), nil
}
