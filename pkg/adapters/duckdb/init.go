package duckdb

import "github.com/carbonfact/lea/pkg/adapter"

func init() {
	adapter.Register("duckdb", func() adapter.Adapter { return New() })
	adapter.Register("motherduck", func() adapter.Adapter { return New() })
	adapter.Register("ducklake", func() adapter.Adapter { return New() })
}
