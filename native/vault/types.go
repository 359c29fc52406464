package vault

import (
	"math/big"

	"stablevault/crypto"
)

// Position is the persisted state of one collateralised debt position.
type Position struct {
	Collateral *big.Int
	Debt       *big.Int
	// InterestSnapshotE12 is the global interest coefficient at the time Debt
	// was last brought up to date.
	InterestSnapshotE12 *big.Int
}

func (p *Position) normalize() {
	if p.Collateral == nil {
		p.Collateral = big.NewInt(0)
	}
	if p.Debt == nil {
		p.Debt = big.NewInt(0)
	}
	if p.InterestSnapshotE12 == nil || p.InterestSnapshotE12.Sign() == 0 {
		p.InterestSnapshotE12 = new(big.Int).Set(e12)
	}
}

// Details is the public view of a position.
type Details struct {
	ID         uint64
	Owner      crypto.Address
	Collateral *big.Int
	Debt       *big.Int
}

// Totals aggregates every open position.
type Totals struct {
	Positions       uint64
	Collateral      *big.Int
	Debt            *big.Int
	AccruedInterest *big.Int
}

// ledgerState is the persisted header of the vault contract.
type ledgerState struct {
	Oracle          crypto.Address
	CollateralToken crypto.Address
	StableToken     crypto.Address
	Controller      crypto.Address
	NextID          uint64

	TotalCollateral *big.Int
	TotalDebt       *big.Int
	StoredInterest  *big.Int

	InterestCoefficientE12 *big.Int
	InterestRateE12        *big.Int
	LastAccrual            uint64
}

func (l *ledgerState) normalize() {
	for _, v := range []**big.Int{&l.TotalCollateral, &l.TotalDebt, &l.StoredInterest, &l.InterestRateE12} {
		if *v == nil {
			*v = big.NewInt(0)
		}
	}
	if l.InterestCoefficientE12 == nil || l.InterestCoefficientE12.Sign() == 0 {
		l.InterestCoefficientE12 = new(big.Int).Set(e12)
	}
}
