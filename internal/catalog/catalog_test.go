package catalog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MRamiBalles/colony/server/internal/domain/action"
	"github.com/MRamiBalles/colony/server/internal/domain/incident"
)

func TestDefaultCatalogIsValid(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	assert.NotEmpty(t, c.StartingActions)
	sleep, err := c.Action("sleep")
	require.NoError(t, err)
	assert.True(t, sleep.IsRelaxing())

	storm, err := c.Incident("storm")
	require.NoError(t, err)
	assert.Equal(t, incident.KindIncident, storm.Kind)
	assert.True(t, storm.Confirm)

	rain, err := c.Incident("rain")
	require.NoError(t, err)
	assert.Equal(t, incident.KindEvent, rain.Kind)
}

func TestGetDispatchesByKind(t *testing.T) {
	c := MustDefault()

	got, err := c.Get("wood")
	require.NoError(t, err)
	assert.IsType(t, c.Resources[0], got)

	got, err = c.Get("gather_wood")
	require.NoError(t, err)
	assert.IsType(t, action.Def{}, got)

	_, err = c.Get("dragon")
	assert.True(t, errors.Is(err, ErrUnknownTemplate))
}

func TestSortedResources(t *testing.T) {
	c := MustDefault()
	sorted := c.SortedResources()
	for i := 1; i < len(sorted); i++ {
		assert.LessOrEqual(t, sorted[i-1].Order, sorted[i].Order)
	}
}

func TestParseRejectsSchemaViolations(t *testing.T) {
	cases := map[string]string{
		"missing actions": `
version: 1
starting_actions: [a]
resources: [{id: wood, name: wood}]
`,
		"negative time": `
version: 1
starting_actions: [a]
resources: [{id: wood, name: wood}]
actions: [{id: a, name: a, time: -1}]
`,
		"bad kind": `
version: 1
starting_actions: [a]
resources: [{id: wood, name: wood}]
actions: [{id: a, name: a, time: 1}]
incidents: [{id: i, name: i, kind: disaster}]
`,
		"unknown field": `
version: 1
starting_actions: [a]
resources: [{id: wood, name: wood, colour: brown}]
actions: [{id: a, name: a, time: 1}]
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestParseRejectsDanglingReferences(t *testing.T) {
	doc := `
version: 1
starting_actions: [a]
resources: [{id: wood, name: wood}]
actions:
  - {id: a, name: a, time: 1, unlock: [b], consume: [{amount: 1, resource: stone}]}
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownTemplate))
	assert.Contains(t, err.Error(), `action "b"`)
	assert.Contains(t, err.Error(), `resource "stone"`)
}
