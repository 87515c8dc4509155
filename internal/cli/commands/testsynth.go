package commands

import (
	"github.com/carbonfact/lea/internal/testsynth"
	"github.com/carbonfact/lea/pkg/core"
)

// synthesizeTests expands s's assertions into test_assertion scripts. Per
// the resolved Open Question in spec.md §9, assertions on test_singular
// scripts are parsed but never synthesised.
func synthesizeTests(s *core.Script) []*core.Script {
	if s.Kind != core.KindRegular {
		return nil
	}
	return testsynth.Synthesize(s)
}
