package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbonfact/lea/pkg/core"
)

func scriptFor(schema []string, table string, deps ...core.TableID) *core.Script {
	id := core.NewTableID(schema, table)
	depMap := make(map[string]core.TableID, len(deps))
	rawRefs := make(map[string]string, len(deps))
	for _, d := range deps {
		depMap[d.String()] = d
		rawRefs[d.String()] = d.String()
	}
	return &core.Script{
		ID:                id,
		Path:              id.String() + ".sql",
		Dependencies:      depMap,
		RawDependencyRefs: rawRefs,
	}
}

func TestBuild_LinearChain(t *testing.T) {
	users := scriptFor([]string{"core"}, "users")
	orders := scriptFor([]string{"core"}, "orders", users.ID)

	g, err := Build([]*core.Script{users, orders})
	require.NoError(t, err)

	assert.Equal(t, 2, g.NodeCount())
	assert.Equal(t, 1, g.EdgeCount())

	order, err := g.TopologicalSort()
	require.NoError(t, err)
	require.Len(t, order, 2)
	assert.Equal(t, "core.users", order[0].ID)
	assert.Equal(t, "core.orders", order[1].ID)
}

func TestBuild_Script_RoundTrip(t *testing.T) {
	users := scriptFor([]string{"core"}, "users")
	g, err := Build([]*core.Script{users})
	require.NoError(t, err)

	got := g.Script("core.users")
	require.NotNil(t, got)
	assert.Equal(t, users, got)

	assert.Nil(t, g.Script("missing.node"))
}

func TestBuild_ExternalDependencySkipped(t *testing.T) {
	external := core.NewTableID([]string{"raw"}, "events")
	orders := scriptFor([]string{"core"}, "orders", external)

	g, err := Build([]*core.Script{orders})
	require.NoError(t, err)

	assert.Equal(t, 1, g.NodeCount())
	assert.Equal(t, 0, g.EdgeCount())
}

func TestBuild_DuplicateTableID(t *testing.T) {
	a := scriptFor([]string{"core"}, "users")
	b := scriptFor([]string{"core"}, "users")
	b.Path = "core/users_dup.sql"

	_, err := Build([]*core.Script{a, b})
	require.Error(t, err)

	var leaErr *core.Error
	require.ErrorAs(t, err, &leaErr)
	assert.Equal(t, core.ErrParse, leaErr.Kind)
}

func TestBuild_CycleDetected(t *testing.T) {
	a := core.NewTableID([]string{"core"}, "a")
	b := core.NewTableID([]string{"core"}, "b")

	scriptA := scriptFor([]string{"core"}, "a", b)
	scriptB := scriptFor([]string{"core"}, "b", a)

	g, err := Build([]*core.Script{scriptA, scriptB})
	require.NoError(t, err)

	has, cycle := g.HasCycle()
	assert.True(t, has)
	assert.NotEmpty(t, cycle)
}
