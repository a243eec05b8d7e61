package filmic

import (
	"fmt"
	"sync"

	"github.com/gogpu/filmic/internal/cache"
)

// MinTiles is the default lower bound on the number of bands per frame.
const MinTiles = 3

// ByteRange addresses one band inside ImageBuffer samples.
// Offset and Length count float32 samples, not bytes.
type ByteRange struct {
	Offset int
	Length int
}

// Bytes returns the byte offset and byte length of the range.
func (r ByteRange) Bytes() (offset, length int) {
	return r.Offset * 4, r.Length * 4
}

// TileLayout partitions an image into equal-height horizontal bands.
type TileLayout struct {
	Count      int
	TileHeight int
	Ranges     []ByteRange
}

// Rows returns the first row and row count of band i.
func (l TileLayout) Rows(i int) (y, h int) {
	return i * l.TileHeight, l.TileHeight
}

// TilePolicy controls band selection.
type TilePolicy struct {
	// MinTiles is the smallest acceptable band count. Values below 1 are
	// treated as MinTiles.
	MinTiles int

	// MaxBandBytes, when positive, rejects band counts whose per-band
	// sample data would exceed this many bytes. Backends derive it from
	// their storage buffer binding limit.
	MaxBandBytes uint64
}

// DefaultTilePolicy requires at least MinTiles bands and no size ceiling.
var DefaultTilePolicy = TilePolicy{MinTiles: MinTiles}

// ComputeLayout returns the band layout for an image of the given height
// using the default policy and a single-channel row of width 1 per
// sample. Use ComputeLayoutFor to account for row size and limits.
func ComputeLayout(height int) (TileLayout, error) {
	return ComputeLayoutFor(height, 1, 1, DefaultTilePolicy)
}

// ComputeLayoutFor returns the band layout for a width x height image
// with the given channel count.
//
// The band count is the smallest divisor of height that is at least
// policy.MinTiles and, when policy.MaxBandBytes is set, keeps every band
// within that many bytes. height itself always divides height, so the
// search terminates; if even single-row bands are too large the result
// is ErrResourceAllocation.
func ComputeLayoutFor(height, width, channels int, policy TilePolicy) (TileLayout, error) {
	if height <= 0 || width <= 0 || channels <= 0 {
		return TileLayout{}, fmt.Errorf("%w: layout for %dx%d (%d channels)",
			ErrInvalidDimension, width, height, channels)
	}
	minTiles := policy.MinTiles
	if minTiles < 1 {
		minTiles = MinTiles
	}

	rowBytes := uint64(width) * uint64(channels) * 4
	count := minTiles
	for ; count < height; count++ {
		if height%count != 0 {
			continue
		}
		if policy.MaxBandBytes == 0 || uint64(height/count)*rowBytes <= policy.MaxBandBytes {
			break
		}
	}
	if count > height {
		// Fewer rows than the minimum band count; one row per band.
		count = height
	}
	tileHeight := height / count
	if policy.MaxBandBytes > 0 && uint64(tileHeight)*rowBytes > policy.MaxBandBytes {
		return TileLayout{}, fmt.Errorf("%w: row of %d bytes exceeds band limit %d",
			ErrResourceAllocation, rowBytes, policy.MaxBandBytes)
	}

	bandLen := tileHeight * width * channels
	ranges := make([]ByteRange, count)
	for i := range ranges {
		ranges[i] = ByteRange{Offset: i * bandLen, Length: bandLen}
	}
	return TileLayout{Count: count, TileHeight: tileHeight, Ranges: ranges}, nil
}

type layoutKey struct {
	height, width, channels int
	policy                  TilePolicy
}

// TileScheduler caches layouts so that repeated renders of same-sized
// images do not recompute them.
type TileScheduler struct {
	mu     sync.Mutex
	policy TilePolicy
	last   layoutKey
	layout TileLayout
	valid  bool
	recent *cache.Cache[layoutKey, TileLayout]
}

// NewTileScheduler returns a scheduler applying policy.
func NewTileScheduler(policy TilePolicy) *TileScheduler {
	return &TileScheduler{
		policy: policy,
		recent: cache.New[layoutKey, TileLayout](8),
	}
}

// Policy returns the active policy.
func (s *TileScheduler) Policy() TilePolicy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.policy
}

// SetPolicy replaces the policy. The next Layout call recomputes.
func (s *TileScheduler) SetPolicy(p TilePolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policy = p
	s.valid = false
}

// Layout returns the layout for the image dimensions, reusing the
// previous result when nothing changed.
func (s *TileScheduler) Layout(height, width, channels int) (TileLayout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := layoutKey{height: height, width: width, channels: channels, policy: s.policy}
	if s.valid && key == s.last {
		return s.layout, nil
	}
	l, err := s.recent.GetOrCreate(key, func() (TileLayout, error) {
		return ComputeLayoutFor(height, width, channels, s.policy)
	})
	if err != nil {
		return TileLayout{}, err
	}
	s.last, s.layout, s.valid = key, l, true
	return l, nil
}
