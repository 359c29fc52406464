package vault

import "math/big"

// secondsPerYear is the period InterestRateE12 is quoted over.
const secondsPerYear = 31_536_000

var (
	e12     = big.NewInt(1_000_000_000_000)
	yearE12 = new(big.Int).Mul(big.NewInt(secondsPerYear), e12)
)

// accrue advances the global interest coefficient to now using the last
// assessed yearly rate. Growth is simple within one step and compounds across
// steps.
func accrue(l *ledgerState, now uint64) {
	if l.LastAccrual == 0 || now <= l.LastAccrual {
		if now > l.LastAccrual {
			l.LastAccrual = now
		}
		return
	}
	elapsed := now - l.LastAccrual
	l.LastAccrual = now
	if l.InterestRateE12.Sign() <= 0 {
		return
	}
	growth := new(big.Int).Mul(l.InterestCoefficientE12, l.InterestRateE12)
	growth.Mul(growth, new(big.Int).SetUint64(elapsed))
	growth.Quo(growth, yearE12)
	l.InterestCoefficientE12 = new(big.Int).Add(l.InterestCoefficientE12, growth)
}

// currentDebt scales a position's stored debt by the coefficient growth since
// its snapshot.
func currentDebt(l *ledgerState, p *Position) *big.Int {
	if p.Debt.Sign() == 0 {
		return big.NewInt(0)
	}
	debt := new(big.Int).Mul(p.Debt, l.InterestCoefficientE12)
	return debt.Quo(debt, p.InterestSnapshotE12)
}

// settle folds accrued interest into the position and the ledger totals.
func settle(l *ledgerState, p *Position) {
	updated := currentDebt(l, p)
	if delta := new(big.Int).Sub(updated, p.Debt); delta.Sign() > 0 {
		l.TotalDebt.Add(l.TotalDebt, delta)
		l.StoredInterest.Add(l.StoredInterest, delta)
	}
	p.Debt = updated
	p.InterestSnapshotE12 = new(big.Int).Set(l.InterestCoefficientE12)
}
