package gpu

import (
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu"
)

// Option configures Open.
type Option func(*options)

type options struct {
	backends wgpu.Backends
	power    gputypes.PowerPreference
	fallback bool
	provider gpucontext.DeviceProvider
}

func defaultOptions() options {
	return options{
		backends: wgpu.BackendsAll,
		power:    gputypes.PowerPreferenceHighPerformance,
	}
}

// WithBackends restricts the graphics APIs considered for the adapter.
func WithBackends(b wgpu.Backends) Option {
	return func(o *options) {
		o.backends = b
	}
}

// WithPowerPreference selects between integrated and discrete adapters.
func WithPowerPreference(p gputypes.PowerPreference) Option {
	return func(o *options) {
		o.power = p
	}
}

// WithFallbackAdapter requests the software fallback adapter.
func WithFallbackAdapter() Option {
	return func(o *options) {
		o.fallback = true
	}
}

// WithDeviceProvider renders on a device owned by the host. The device
// is not released by Close.
func WithDeviceProvider(p gpucontext.DeviceProvider) Option {
	return func(o *options) {
		o.provider = p
	}
}
