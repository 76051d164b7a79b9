package pricing

import (
	"errors"
	"fmt"
	"math"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/jiaming2012/options-board/src/eventmodels"
)

// ErrNoSolution marks a failed implied-volatility inversion: the observed
// price is not attainable inside the solver bracket. Distinct from a
// legitimate zero-volatility answer.
var ErrNoSolution = errors.New("implied volatility: no solution in bracket")

// IVSolver inverts Black-76 for sigma with Brent's method. Roots are
// memoized by the full input tuple for a short window because repeated quotes
// for the same contract dominate the workload.
type IVSolver struct {
	Tolerance     float64
	MaxIterations int
	VolLower      float64
	VolUpper      float64
	memo          *gocache.Cache
}

func NewIVSolver(tolerance float64, maxIterations int, volLower, volUpper float64, memoTTL time.Duration) *IVSolver {
	return &IVSolver{
		Tolerance:     tolerance,
		MaxIterations: maxIterations,
		VolLower:      volLower,
		VolUpper:      volUpper,
		memo:          gocache.New(memoTTL, 2*memoTTL),
	}
}

// Solve returns the sigma that reproduces observedPrice, or ErrNoSolution.
// At T=0 the answer is 0 when the observed price matches intrinsic value
// within tolerance.
func (s *IVSolver) Solve(observedPrice, forward, strike, tYears, rate float64, optionType eventmodels.OptionType) (float64, error) {
	if tYears < 0 || forward <= 0 || strike <= 0 {
		return 0, ErrNoSolution
	}
	if err := optionType.Validate(); err != nil {
		return 0, ErrNoSolution
	}

	key := fmt.Sprintf("%v|%v|%v|%v|%v|%s", observedPrice, forward, strike, tYears, rate, optionType)
	if cached, ok := s.memo.Get(key); ok {
		return cached.(float64), nil
	}

	if tYears == 0 {
		if math.Abs(observedPrice-intrinsic(forward, strike, optionType)) < s.Tolerance {
			s.memo.SetDefault(key, 0.0)
			return 0, nil
		}
		return 0, ErrNoSolution
	}

	objective := func(sigma float64) float64 {
		return Black76Price(forward, strike, tYears, rate, sigma, optionType) - observedPrice
	}

	root, err := brent(objective, s.VolLower, s.VolUpper, s.Tolerance, s.MaxIterations)
	if err != nil {
		return 0, err
	}

	s.memo.SetDefault(key, root)

	return root, nil
}

// brent finds a root of f on [a, b] with the classic inverse-quadratic /
// secant / bisection combination. Returns ErrNoSolution when the bracket
// does not straddle a root or the iteration cap is hit.
func brent(f func(float64) float64, a, b, tol float64, maxIter int) (float64, error) {
	fa, fb := f(a), f(b)
	if fa*fb > 0 {
		return 0, ErrNoSolution
	}
	if fa == 0 {
		return a, nil
	}
	if fb == 0 {
		return b, nil
	}

	if math.Abs(fa) < math.Abs(fb) {
		a, b = b, a
		fa, fb = fb, fa
	}

	c, fc := a, fa
	d := b - a
	mflag := true

	for i := 0; i < maxIter; i++ {
		if fb == 0 || math.Abs(b-a) < tol {
			return b, nil
		}

		var next float64
		if fa != fc && fb != fc {
			// inverse quadratic interpolation
			next = a*fb*fc/((fa-fb)*(fa-fc)) +
				b*fa*fc/((fb-fa)*(fb-fc)) +
				c*fa*fb/((fc-fa)*(fc-fb))
		} else {
			// secant
			next = b - fb*(b-a)/(fb-fa)
		}

		lowerBound := (3*a + b) / 4
		cond := (next < math.Min(lowerBound, b) || next > math.Max(lowerBound, b)) ||
			(mflag && math.Abs(next-b) >= math.Abs(b-c)/2) ||
			(!mflag && math.Abs(next-b) >= math.Abs(c-d)/2) ||
			(mflag && math.Abs(b-c) < tol) ||
			(!mflag && math.Abs(c-d) < tol)

		if cond {
			next = (a + b) / 2
			mflag = true
		} else {
			mflag = false
		}

		fnext := f(next)
		d = c
		c, fc = b, fb

		if fa*fnext < 0 {
			b, fb = next, fnext
		} else {
			a, fa = next, fnext
		}

		if math.Abs(fa) < math.Abs(fb) {
			a, b = b, a
			fa, fb = fb, fa
		}
	}

	return 0, ErrNoSolution
}
