// Package software implements the filmic render device on the CPU.
//
// Passes are recorded into a frame and executed on Submit: each pass
// evaluates the tonemap fragment for every pixel of its viewport, with
// rows split across a worker pool. Output goes to a back buffer that is
// copied to the bound target only when the whole frame succeeded, so a
// failed frame leaves the previous image in place.
//
// Importing the package registers it as backend.NameSoftware:
//
//	import _ "github.com/gogpu/filmic/backend/software"
//
// The bound target must implement filmic.PixelTarget, such as
// filmic.PixmapTarget.
package software
