package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbonfact/lea/internal/dag"
	"github.com/carbonfact/lea/pkg/core"
)

// buildTestGraph builds: raw.events -> staging.orders -> core.orders -> core.summary
// plus an unrelated core.users node.
func buildTestGraph(t *testing.T) *dag.Graph {
	t.Helper()
	rawEvents := core.NewTableID([]string{"raw"}, "events")
	stagingOrders := core.NewTableID([]string{"staging"}, "orders")
	coreOrders := core.NewTableID([]string{"core"}, "orders")
	coreSummary := core.NewTableID([]string{"core"}, "summary")
	coreUsers := core.NewTableID([]string{"core"}, "users")

	mkScript := func(id core.TableID, deps ...core.TableID) *core.Script {
		depMap := map[string]core.TableID{}
		rawRefs := map[string]string{}
		for _, d := range deps {
			depMap[d.String()] = d
			rawRefs[d.String()] = d.String()
		}
		return &core.Script{ID: id, Dependencies: depMap, RawDependencyRefs: rawRefs}
	}

	scripts := []*core.Script{
		mkScript(rawEvents),
		mkScript(stagingOrders, rawEvents),
		mkScript(coreOrders, stagingOrders),
		mkScript(coreSummary, coreOrders),
		mkScript(coreUsers),
	}

	g, err := dag.Build(scripts)
	require.NoError(t, err)
	return g
}

func TestResolve_NoSelectorMeansEverything(t *testing.T) {
	g := buildTestGraph(t)
	active, err := Resolve(g, core.RunConfig{}, nil)
	require.NoError(t, err)
	assert.Len(t, active, 5)
}

func TestResolve_SingleNode(t *testing.T) {
	g := buildTestGraph(t)
	cfg := core.RunConfig{Select: core.ParseSelectorExpr("core.orders")}
	active, err := Resolve(g, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"core.orders": true}, active)
}

func TestResolve_AncestorsPrefix(t *testing.T) {
	g := buildTestGraph(t)
	cfg := core.RunConfig{Select: core.ParseSelectorExpr("+core.orders")}
	active, err := Resolve(g, cfg, nil)
	require.NoError(t, err)
	assert.True(t, active["core.orders"])
	assert.True(t, active["staging.orders"])
	assert.False(t, active["core.summary"])
	assert.False(t, active["core.users"])
}

func TestResolve_DescendantsSuffix(t *testing.T) {
	g := buildTestGraph(t)
	cfg := core.RunConfig{Select: core.ParseSelectorExpr("core.orders+")}
	active, err := Resolve(g, cfg, nil)
	require.NoError(t, err)
	assert.True(t, active["core.orders"])
	assert.True(t, active["core.summary"])
	assert.False(t, active["staging.orders"])
}

func TestResolve_BothDirections(t *testing.T) {
	g := buildTestGraph(t)
	cfg := core.RunConfig{Select: core.ParseSelectorExpr("+core.orders+")}
	active, err := Resolve(g, cfg, nil)
	require.NoError(t, err)
	assert.True(t, active["staging.orders"])
	assert.True(t, active["core.orders"])
	assert.True(t, active["core.summary"])
	assert.False(t, active["core.users"])
}

func TestResolve_SchemaAtom(t *testing.T) {
	g := buildTestGraph(t)
	cfg := core.RunConfig{Select: core.ParseSelectorExpr("core/")}
	active, err := Resolve(g, cfg, nil)
	require.NoError(t, err)
	assert.True(t, active["core.orders"])
	assert.True(t, active["core.summary"])
	assert.True(t, active["core.users"])
	assert.False(t, active["staging.orders"])
}

func TestResolve_UnselectSubtracts(t *testing.T) {
	g := buildTestGraph(t)
	cfg := core.RunConfig{
		Select:   core.ParseSelectorExpr("core/"),
		Unselect: core.ParseSelectorExpr("core.summary"),
	}
	active, err := Resolve(g, cfg, nil)
	require.NoError(t, err)
	assert.True(t, active["core.orders"])
	assert.False(t, active["core.summary"])
}

func TestResolve_UnknownNodeErrors(t *testing.T) {
	g := buildTestGraph(t)
	cfg := core.RunConfig{Select: core.ParseSelectorExpr("core.missing")}
	_, err := Resolve(g, cfg, nil)
	require.Error(t, err)

	var leaErr *core.Error
	require.ErrorAs(t, err, &leaErr)
	assert.Equal(t, core.ErrSelector, leaErr.Kind)
}

func TestResolve_GitAtomWithNilResolverIsEmpty(t *testing.T) {
	g := buildTestGraph(t)
	cfg := core.RunConfig{Select: core.ParseSelectorExpr("git")}
	active, err := Resolve(g, cfg, nil)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestResolve_GitAtomWithResolver(t *testing.T) {
	g := buildTestGraph(t)
	cfg := core.RunConfig{Select: core.ParseSelectorExpr("+git")}
	active, err := Resolve(g, cfg, func() ([]string, error) {
		return []string{"core.orders"}, nil
	})
	require.NoError(t, err)
	assert.True(t, active["core.orders"])
	assert.True(t, active["staging.orders"])
}

func TestFrozenAncestors(t *testing.T) {
	g := buildTestGraph(t)
	active := map[string]bool{"core.orders": true}
	frozen := FrozenAncestors(g, active)
	assert.True(t, frozen["staging.orders"])
	assert.True(t, frozen["raw.events"])
	assert.False(t, frozen["core.orders"])
}
