// Package backend selects a render device for filmic.
//
// Backends register an Opener from an init function, so importing a
// backend package makes it available:
//
//	import (
//	    _ "github.com/gogpu/filmic/backend/gpu"
//	    _ "github.com/gogpu/filmic/backend/software"
//	)
//
// # Backend Selection
//
// OpenDefault tries backends in priority order (gpu, then software) and
// returns the first one that opens. Open requests a specific backend:
//
//	dev, err := backend.OpenDefault()
//
//	// Or force the CPU backend
//	dev, err := backend.Open(backend.NameSoftware)
//
// Failures wrap filmic.ErrBackendUnavailable.
package backend
