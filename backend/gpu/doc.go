// Package gpu implements the filmic render device on WebGPU.
//
// The device runs the tonemap program once per band: every pass binds
// the band's samples as a read-only storage buffer, sets a viewport over
// the band rows and draws a full-target quad. All passes of a frame are
// recorded into one command encoder and submitted together.
//
// Importing the package registers it as backend.NameGPU and links every
// wgpu HAL backend available on the platform:
//
//	import _ "github.com/gogpu/filmic/backend/gpu"
//
// # Targets
//
// Two target kinds can be bound:
//
//   - Target, an offscreen RGBA8 texture owned by the device, read back
//     with Target.ReadPixels.
//   - SurfaceTarget, a texture view supplied by a host window through
//     gpucontext.
//
// # Sharing a Device
//
// A host that already owns a wgpu device passes it in with
// WithDeviceProvider instead of letting Open create one:
//
//	dev, err := gpu.Open(gpu.WithDeviceProvider(provider))
package gpu
