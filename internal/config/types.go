// Package config loads a lea.yaml/lea.yml project file into core.ProjectConfig,
// decoupled from the CLI so other tools (a watch daemon, a future editor
// integration) can load project configuration without importing cobra.
package config

import (
	"fmt"
	"strings"

	"github.com/carbonfact/lea/pkg/adapter"
	"github.com/carbonfact/lea/pkg/core"
)

// DefaultSchemaForType returns the default schema for a warehouse type,
// falling back to "main" for unknown types.
func DefaultSchemaForType(warehouseType string) string {
	if d, ok := core.DialectFor(warehouseType); ok && d.DefaultSchema != "" {
		return d.DefaultSchema
	}
	return "main"
}

// ValidateTarget checks that a target names a registered adapter.
func ValidateTarget(t *core.TargetConfig) error {
	if t == nil || t.Type == "" {
		return fmt.Errorf("target type is required")
	}
	if !adapter.IsRegistered(strings.ToLower(t.Type)) {
		return &adapter.UnknownAdapterError{Type: t.Type, Available: adapter.ListAdapters()}
	}
	return nil
}
