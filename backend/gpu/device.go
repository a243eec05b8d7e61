// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package gpu

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/filmic"
	"github.com/gogpu/filmic/backend"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu"

	_ "github.com/gogpu/wgpu/hal/allbackends"
)

func init() {
	backend.Register(backend.NameGPU, func() (filmic.Device, error) {
		dev, err := Open()
		if err != nil {
			return nil, err
		}
		return dev, nil
	})
}

// AdapterInfo describes the adapter a Device renders on.
type AdapterInfo struct {
	Name    string
	Backend string
	Type    gpucontext.AdapterType
}

// Device is the WebGPU render device.
type Device struct {
	mu       sync.Mutex
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	owned    bool
	info     AdapterInfo
	limits   gputypes.Limits

	prog   *program
	target boundTarget
	closed bool

	log atomic.Pointer[slog.Logger]
}

// boundTarget is a RenderTarget the device can attach as a color
// attachment.
type boundTarget interface {
	filmic.RenderTarget
	textureView() (*wgpu.TextureView, error)
}

// Open acquires a GPU device and compiles the tonemap program.
//
// Without WithDeviceProvider it creates its own instance, adapter and
// device; failures wrap filmic.ErrBackendUnavailable.
func Open(opts ...Option) (*Device, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	d := &Device{}
	var err error
	if o.provider != nil {
		err = d.adopt(o.provider)
	} else {
		err = d.create(o)
	}
	if err != nil {
		return nil, err
	}

	d.limits = d.device.Limits()
	d.prog, err = newProgram(d.device, d.queue)
	if err != nil {
		d.releaseDevice()
		return nil, fmt.Errorf("gpu: %w: %w", filmic.ErrBackendUnavailable, err)
	}

	d.logger().Info("gpu device opened",
		"adapter", d.info.Name,
		"backend", d.info.Backend,
		"type", d.info.Type.String(),
		"max_storage_binding", d.limits.MaxStorageBufferBindingSize)
	return d, nil
}

func (d *Device) create(o options) error {
	instance, err := wgpu.CreateInstance(&wgpu.InstanceDescriptor{Backends: o.backends})
	if err != nil {
		return fmt.Errorf("gpu: %w: create instance: %w", filmic.ErrBackendUnavailable, err)
	}
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference:      o.power,
		ForceFallbackAdapter: o.fallback,
	})
	if err != nil {
		instance.Release()
		return fmt.Errorf("gpu: %w: request adapter: %w", filmic.ErrBackendUnavailable, err)
	}
	device, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return fmt.Errorf("gpu: %w: request device: %w", filmic.ErrBackendUnavailable, err)
	}

	info := adapter.Info()
	d.instance, d.adapter, d.device = instance, adapter, device
	d.queue = device.Queue()
	d.owned = true
	d.info = AdapterInfo{
		Name:    info.Name,
		Backend: info.Backend.String(),
		Type:    adapterType(info.DeviceType),
	}
	return nil
}

func (d *Device) adopt(p gpucontext.DeviceProvider) error {
	device, ok := p.Device().(*wgpu.Device)
	if !ok || device == nil {
		return fmt.Errorf("gpu: %w: provider device is %T, want *wgpu.Device",
			filmic.ErrBackendUnavailable, p.Device())
	}
	queue, ok := p.Queue().(*wgpu.Queue)
	if !ok || queue == nil {
		queue = device.Queue()
	}
	info := p.AdapterInfo()
	d.device, d.queue = device, queue
	d.info = AdapterInfo{Name: info.Name, Backend: "host", Type: info.Type}
	return nil
}

func adapterType(t gputypes.DeviceType) gpucontext.AdapterType {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU:
		return gpucontext.AdapterTypeDiscrete
	case gputypes.DeviceTypeIntegratedGPU:
		return gpucontext.AdapterTypeIntegrated
	case gputypes.DeviceTypeCPU:
		return gpucontext.AdapterTypeSoftware
	default:
		return gpucontext.AdapterTypeUnknown
	}
}

// Name returns backend.NameGPU.
func (d *Device) Name() string { return backend.NameGPU }

// Info describes the adapter in use.
func (d *Device) Info() AdapterInfo { return d.info }

// Limits reports the storage buffer binding limit of the device.
func (d *Device) Limits() filmic.DeviceLimits {
	return filmic.DeviceLimits{MaxStorageBufferBindingSize: d.limits.MaxStorageBufferBindingSize}
}

// SetLogger sets the device logger. Nil restores filmic.Logger.
func (d *Device) SetLogger(l *slog.Logger) {
	d.log.Store(l)
}

func (d *Device) logger() *slog.Logger {
	if l := d.log.Load(); l != nil {
		return l
	}
	return filmic.Logger()
}

// Bind attaches target. It must be a *Target created by this device or
// a *SurfaceTarget.
func (d *Device) Bind(target filmic.RenderTarget) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return filmic.ErrBackendUnavailable
	}
	bt, ok := target.(boundTarget)
	if !ok {
		return fmt.Errorf("gpu: %w: %T is not a GPU target", filmic.ErrSurfaceNotBound, target)
	}
	if t, ok := target.(*Target); ok && t.dev != d {
		return fmt.Errorf("gpu: %w: target belongs to another device", filmic.ErrSurfaceNotBound)
	}
	if _, err := d.prog.pipeline(bt.Format(), filmic.OperatorHable); err != nil {
		return fmt.Errorf("gpu: %w: %w", filmic.ErrSurfaceNotBound, err)
	}
	d.target = bt
	return nil
}

// BeginFrame opens a command encoder for one frame.
func (d *Device) BeginFrame() (filmic.Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, filmic.ErrBackendUnavailable
	}
	if d.target == nil {
		return nil, filmic.ErrSurfaceNotBound
	}
	view, err := d.target.textureView()
	if err != nil {
		return nil, fmt.Errorf("gpu: %w: %w", filmic.ErrSurfaceNotBound, err)
	}
	encoder, err := d.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: "filmic-frame"})
	if err != nil {
		return nil, allocError("command encoder", err)
	}
	return &frame{
		dev:     d,
		prog:    d.prog,
		encoder: encoder,
		view:    view,
		format:  d.target.Format(),
	}, nil
}

// Close releases the program and, unless the device came from a
// provider, the wgpu device itself. Close is safe to call multiple
// times.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	d.target = nil
	if d.prog != nil {
		d.prog.release()
		d.prog = nil
	}
	d.releaseDevice()
	return nil
}

func (d *Device) releaseDevice() {
	if !d.owned {
		return
	}
	if d.device != nil {
		d.device.Release()
	}
	if d.adapter != nil {
		d.adapter.Release()
	}
	if d.instance != nil {
		d.instance.Release()
	}
	d.device, d.adapter, d.instance = nil, nil, nil
}

// allocError reports a failed resource creation. Out-of-memory maps to
// filmic.ErrResourceAllocation; a released device maps to
// filmic.ErrBackendUnavailable.
func allocError(what string, err error) error {
	if errors.Is(err, wgpu.ErrReleased) {
		return fmt.Errorf("gpu: %w: create %s: %w", filmic.ErrBackendUnavailable, what, err)
	}
	return fmt.Errorf("gpu: %w: create %s: %w", filmic.ErrResourceAllocation, what, err)
}

var _ filmic.Device = (*Device)(nil)
