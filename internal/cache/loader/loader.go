// Package loader registers cache drivers via blank imports.
// Import this package to ensure the default cache drivers are available.
package loader

import (
	// Register the memory cache driver
	_ "github.com/mkarimof/filedepot/internal/cache/memory"

	// Register the valkey cache driver
	_ "github.com/mkarimof/filedepot/internal/cache/valkey"
)
