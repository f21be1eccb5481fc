package scenario

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinScenariosPass(t *testing.T) {
	r := NewRunner(Options{})
	for _, sc := range Builtin() {
		sc := sc
		t.Run(sc.Name, func(t *testing.T) {
			res := r.Run(context.Background(), sc)
			assert.Empty(t, res.Err)
			assert.True(t, res.Passed, res.Actual)
		})
	}
	assert.Zero(t, r.Failed())
}

func TestRunnerReportsFailures(t *testing.T) {
	r := NewRunner(Options{})
	cleaned := false
	r.Run(context.Background(), Scenario{
		Name:     "broken",
		Expected: "nothing",
		Setup: func(*Options) (func(), error) {
			return func() { cleaned = true }, nil
		},
		Play: func(context.Context, *Sim) (string, bool, error) {
			return "", false, errors.New("boom")
		},
	})
	require.Len(t, r.Results(), 1)
	assert.Equal(t, 1, r.Failed())
	assert.True(t, cleaned)

	var out bytes.Buffer
	r.Report(&out)
	assert.Contains(t, out.String(), "[FAIL] broken")
	assert.Contains(t, out.String(), "error:    boom")
}

func TestFind(t *testing.T) {
	sc, ok := Find("first-hut")
	require.True(t, ok)
	assert.NotNil(t, sc.Play)
	_, ok = Find("moon-landing")
	assert.False(t, ok)
}

func TestStepAdvancesGameTime(t *testing.T) {
	s, err := NewSim(Options{})
	require.NoError(t, err)
	require.NoError(t, s.Found("Ada"))
	hours, err := s.RunHours(2, nil)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, hours, 1e-9)
	assert.InDelta(t, 2.0, s.View().Hours, 1e-9)
}
