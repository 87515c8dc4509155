package scriptparser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractDependencies_SimpleFromJoin(t *testing.T) {
	sql := `
SELECT u.id, o.total
FROM core.users u
JOIN core.orders o ON o.user_id = u.id
`
	deps := ExtractDependencies(sql)
	assert.ElementsMatch(t, []string{"core.users", "core.orders"}, deps)
}

func TestExtractDependencies_ExcludesCTEs(t *testing.T) {
	sql := `
WITH recent_orders AS (
  SELECT * FROM core.orders WHERE created_at > '2026-01-01'
)
SELECT * FROM recent_orders
JOIN core.users ON recent_orders.user_id = core.users.id
`
	deps := ExtractDependencies(sql)
	assert.ElementsMatch(t, []string{"core.orders", "core.users"}, deps)
}

func TestExtractDependencies_IgnoresUnqualifiedNames(t *testing.T) {
	sql := `SELECT * FROM tmp_scratch JOIN core.users ON tmp_scratch.id = core.users.id`
	deps := ExtractDependencies(sql)
	assert.Equal(t, []string{"core.users"}, deps)
}

func TestExtractDependencies_IgnoresCommentsAndStrings(t *testing.T) {
	sql := `
-- FROM fake.commented_out
SELECT * FROM core.users WHERE name = 'FROM literal.string'
`
	deps := ExtractDependencies(sql)
	assert.Equal(t, []string{"core.users"}, deps)
}

func TestExtractDependencies_Dedupes(t *testing.T) {
	sql := `SELECT * FROM core.users a JOIN core.users b ON a.id != b.id`
	deps := ExtractDependencies(sql)
	assert.Equal(t, []string{"core.users"}, deps)
}

func TestExtractDependencies_NoDependencies(t *testing.T) {
	sql := `SELECT 1 AS one`
	deps := ExtractDependencies(sql)
	assert.Empty(t, deps)
}
