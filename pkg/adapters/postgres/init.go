package postgres

import "github.com/carbonfact/lea/pkg/adapter"

func init() {
	adapter.Register("postgres", func() adapter.Adapter { return New() })
}
