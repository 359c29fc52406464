package measurer

import (
	"math/big"
)

// NeutralStability is the stability measure of a protocol at rest.
const NeutralStability uint8 = 127

var e6 = big.NewInt(1_000_000)

// RateParameters tune the stepped risk curve. Coefficients are fixed point:
// e6 values scale 1.0 to 1_000_000 and e12 values scale 1.0 to 10^12.
type RateParameters struct {
	InterestRateStepE12            *big.Int
	MaximumCollateralCoefficientE6 *big.Int
	CollateralStepValueE6          *big.Int
	StableInterestRateStepE12      *big.Int
}

// Normalize replaces nil fields with zero.
func (p RateParameters) Normalize() RateParameters {
	return RateParameters{
		InterestRateStepE12:            orZero(p.InterestRateStepE12),
		MaximumCollateralCoefficientE6: orZero(p.MaximumCollateralCoefficientE6),
		CollateralStepValueE6:          orZero(p.CollateralStepValueE6),
		StableInterestRateStepE12:      orZero(p.StableInterestRateStepE12),
	}
}

// Validate rejects negative steps and a maximum coefficient below 100%.
func (p RateParameters) Validate() error {
	p = p.Normalize()
	for _, v := range []*big.Int{p.InterestRateStepE12, p.CollateralStepValueE6, p.StableInterestRateStepE12} {
		if v.Sign() < 0 {
			return errInvalidParameters
		}
	}
	if p.MaximumCollateralCoefficientE6.Cmp(e6) < 0 {
		return errInvalidParameters
	}
	return nil
}

// DefaultRateParameters matches the stock deployment: no interest and a 200%
// collateral requirement.
func DefaultRateParameters() RateParameters {
	return RateParameters{
		InterestRateStepE12:            big.NewInt(0),
		MaximumCollateralCoefficientE6: big.NewInt(2_000_000),
		CollateralStepValueE6:          big.NewInt(0),
		StableInterestRateStepE12:      big.NewInt(0),
	}
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// CurvePoint is the outcome of the stepped curve for one stability measure.
type CurvePoint struct {
	InterestRateE12     *big.Int
	MinCollateralCoefE6 *big.Int
	HolderRateE12       *big.Int
}

// Curve maps a stability measure to the borrowing rate, the minimum
// collateral coefficient and the rate paid to stable holders. Higher measures
// relax requirements; lower measures raise the borrowing rate. The
// coefficient never drops below 100%.
func Curve(s uint8, params RateParameters) CurvePoint {
	p := params.Normalize()
	max := p.MaximumCollateralCoefficientE6
	step := p.CollateralStepValueE6
	rateStep := p.InterestRateStepE12
	mul := func(n int64, v *big.Int) *big.Int { return new(big.Int).Mul(big.NewInt(n), v) }

	point := CurvePoint{
		InterestRateE12:     big.NewInt(0),
		MinCollateralCoefE6: new(big.Int).Set(max),
		HolderRateE12:       big.NewInt(0),
	}
	switch {
	case s >= 206:
		point.MinCollateralCoefE6 = new(big.Int).Sub(max, mul(50, step))
	case s >= 156:
		point.MinCollateralCoefE6 = new(big.Int).Sub(max, mul(int64(s)-155, step))
	case s >= 131:
		point.InterestRateE12 = mul(155-int64(s), rateStep)
	case s >= 125:
		point.InterestRateE12 = mul(25, rateStep)
	case s >= 50:
		point.InterestRateE12 = mul(150-int64(s), rateStep)
	default:
		point.InterestRateE12 = mul(150-int64(s), rateStep)
		point.HolderRateE12 = mul(50-int64(s), p.StableInterestRateStepE12)
	}
	if point.MinCollateralCoefE6.Cmp(e6) < 0 {
		point.MinCollateralCoefE6 = new(big.Int).Set(e6)
	}
	return point
}
