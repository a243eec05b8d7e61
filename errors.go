package filmic

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the render pipeline and controller.
// Backends wrap their own failures with these so callers can match them
// with errors.Is.
var (
	// ErrBackendUnavailable is returned when no render device is open,
	// the device was closed, or device initialization failed.
	ErrBackendUnavailable = errors.New("filmic: render backend unavailable")

	// ErrSurfaceNotBound is returned when a render is requested before a
	// target surface was attached with RenderPipeline.Bind.
	ErrSurfaceNotBound = errors.New("filmic: no render surface bound")

	// ErrInvalidDimension is returned for zero or negative image
	// dimensions and for sample counts that do not match them.
	ErrInvalidDimension = errors.New("filmic: invalid dimension")

	// ErrResourceAllocation is returned when a backend fails to create a
	// buffer, bind group or pipeline object for a pass. The frame is
	// discarded and the previously rendered frame stays on the surface.
	ErrResourceAllocation = errors.New("filmic: resource allocation failed")
)

// RenderError describes a failed render step.
// Tile is the zero-based band index, or -1 when the failure is not tied
// to a particular pass.
type RenderError struct {
	Op   string
	Tile int
	Err  error
}

func (e *RenderError) Error() string {
	if e.Tile >= 0 {
		return fmt.Sprintf("filmic: %s (tile %d): %v", e.Op, e.Tile, e.Err)
	}
	return fmt.Sprintf("filmic: %s: %v", e.Op, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

func renderError(op string, tile int, err error) error {
	return &RenderError{Op: op, Tile: tile, Err: err}
}
