package backend

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/gogpu/filmic"
	"github.com/gogpu/gpucontext"
)

// Backend name constants.
const (
	// NameGPU is the WebGPU backend in backend/gpu.
	NameGPU = "gpu"
	// NameSoftware is the CPU backend in backend/software.
	NameSoftware = "software"
)

// Opener opens a render device. It returns an error when the backend
// cannot run on this machine, e.g. no GPU adapter is present.
type Opener func() (filmic.Device, error)

// registry holds registered backends, GPU first.
var registry = gpucontext.NewRegistry[Opener](
	gpucontext.WithPriority(NameGPU, NameSoftware),
)

var loggerPtr atomic.Pointer[slog.Logger]

// Register registers an opener under name.
// This is typically called from init() functions in backend packages.
// If a backend with the same name is already registered, it is replaced.
func Register(name string, open Opener) {
	registry.Register(name, func() Opener { return open })
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registry.Unregister(name)
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	return registry.Has(name)
}

// Available returns registered backend names in selection order.
func Available() []string {
	names := registry.Available()
	slices.SortFunc(names, func(a, b string) int {
		if d := rank(a) - rank(b); d != 0 {
			return d
		}
		return strings.Compare(a, b)
	})
	return names
}

// rank orders known backends first; unknown names sort alphabetically
// after them.
func rank(name string) int {
	switch name {
	case NameGPU:
		return 0
	case NameSoftware:
		return 1
	default:
		return 2
	}
}

// Open opens the backend registered under name.
func Open(name string) (filmic.Device, error) {
	if !registry.Has(name) {
		return nil, fmt.Errorf("%w: backend %q not registered", filmic.ErrBackendUnavailable, name)
	}
	open := registry.Get(name)
	dev, err := open()
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", filmic.ErrBackendUnavailable, name, err)
	}
	propagateLogger(dev)
	return dev, nil
}

// OpenDefault opens the first backend, in priority order, that opens
// successfully. The GPU backend is tried before the software backend.
func OpenDefault() (filmic.Device, error) {
	names := Available()
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no backends registered", filmic.ErrBackendUnavailable)
	}

	var errs []error
	for _, name := range names {
		dev, err := Open(name)
		if err == nil {
			if len(errs) > 0 {
				slogger().Warn("falling back to backend", "backend", name, "err", errors.Join(errs...))
			}
			return dev, nil
		}
		errs = append(errs, err)
	}
	return nil, errors.Join(errs...)
}

// SetLogger sets the logger handed to devices opened after the call.
// Pass nil to fall back to filmic.Logger.
func SetLogger(l *slog.Logger) {
	loggerPtr.Store(l)
}

func slogger() *slog.Logger {
	if l := loggerPtr.Load(); l != nil {
		return l
	}
	return filmic.Logger()
}

// loggerSetter is implemented by devices that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

func propagateLogger(dev filmic.Device) {
	if l := loggerPtr.Load(); l != nil {
		if ls, ok := dev.(loggerSetter); ok {
			ls.SetLogger(l)
		}
	}
}
