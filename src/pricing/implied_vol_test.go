package pricing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiaming2012/options-board/src/eventmodels"
)

func newTestSolver() *IVSolver {
	return NewIVSolver(1e-6, 100, 1e-6, 5.0, time.Minute)
}

func TestIVSolverRoundTrip(t *testing.T) {
	solver := newTestSolver()

	cases := []struct {
		name       string
		sigma      float64
		forward    float64
		strike     float64
		tYears     float64
		optionType eventmodels.OptionType
	}{
		{"atm call", 0.35, 100, 100, 0.25, eventmodels.Call},
		{"otm call", 0.5, 100, 120, 0.5, eventmodels.Call},
		{"itm put", 0.22, 90, 100, 1.0, eventmodels.Put},
		{"low vol", 0.05, 100, 100, 0.1, eventmodels.Call},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			price := Black76Price(tc.forward, tc.strike, tc.tYears, 0.19, tc.sigma, tc.optionType)

			root, err := solver.Solve(price, tc.forward, tc.strike, tc.tYears, 0.19, tc.optionType)
			require.NoError(t, err)
			assert.InDelta(t, tc.sigma, root, 1e-4)
		})
	}
}

func TestIVSolverNoSolution(t *testing.T) {
	solver := newTestSolver()

	t.Run("price above bracket ceiling", func(t *testing.T) {
		_, err := solver.Solve(200, 100, 100, 0.25, 0.19, eventmodels.Call)
		assert.ErrorIs(t, err, ErrNoSolution)
	})

	t.Run("negative expiry", func(t *testing.T) {
		_, err := solver.Solve(5, 100, 100, -0.1, 0.19, eventmodels.Call)
		assert.ErrorIs(t, err, ErrNoSolution)
	})

	t.Run("non positive forward or strike", func(t *testing.T) {
		_, err := solver.Solve(5, 0, 100, 0.25, 0.19, eventmodels.Call)
		assert.ErrorIs(t, err, ErrNoSolution)

		_, err = solver.Solve(5, 100, -1, 0.25, 0.19, eventmodels.Put)
		assert.ErrorIs(t, err, ErrNoSolution)
	})

	t.Run("invalid option type", func(t *testing.T) {
		_, err := solver.Solve(5, 100, 100, 0.25, 0.19, eventmodels.OptionType("x"))
		assert.ErrorIs(t, err, ErrNoSolution)
	})
}

func TestIVSolverExpired(t *testing.T) {
	solver := newTestSolver()

	t.Run("intrinsic price yields zero vol", func(t *testing.T) {
		root, err := solver.Solve(5, 105, 100, 0, 0.19, eventmodels.Call)
		require.NoError(t, err)
		assert.Zero(t, root)
	})

	t.Run("non intrinsic price has no solution", func(t *testing.T) {
		_, err := solver.Solve(7, 105, 100, 0, 0.19, eventmodels.Call)
		assert.ErrorIs(t, err, ErrNoSolution)
	})
}

func TestIVSolverMemo(t *testing.T) {
	solver := newTestSolver()

	price := Black76Price(100, 100, 0.25, 0.19, 0.3, eventmodels.Call)

	first, err := solver.Solve(price, 100, 100, 0.25, 0.19, eventmodels.Call)
	require.NoError(t, err)

	second, err := solver.Solve(price, 100, 100, 0.25, 0.19, eventmodels.Call)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
