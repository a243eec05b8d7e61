package software

// Option configures a Device.
type Option func(*options)

type options struct {
	workers    int
	maxStorage uint64
}

// WithWorkers sets the number of goroutines that shade rows.
// Zero or negative means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithMaxStorageBufferSize emulates a GPU storage buffer binding limit:
// passes whose pixel data exceeds size bytes fail with
// filmic.ErrResourceAllocation. Zero, the default, means unlimited.
func WithMaxStorageBufferSize(size uint64) Option {
	return func(o *options) {
		o.maxStorage = size
	}
}
