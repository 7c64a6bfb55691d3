// Package version exposes the provider's build version, embedded from the
// VERSION file at build time.
package version

import (
	_ "embed"
)

//go:embed VERSION
var Version string

// Get returns the embedded version string.
func Get() string {
	return Version
}
