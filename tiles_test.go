package filmic

import (
	"errors"
	"testing"
)

func TestComputeLayout(t *testing.T) {
	tests := []struct {
		height     int
		count      int
		tileHeight int
	}{
		{9, 3, 3},
		{10, 5, 2},
		{7, 7, 1},
		{12, 3, 4},
		{16, 4, 4},
		{1080, 3, 360},
		{1, 1, 1},
		{2, 2, 1},
		{3, 3, 1},
	}
	for _, tt := range tests {
		l, err := ComputeLayout(tt.height)
		if err != nil {
			t.Errorf("ComputeLayout(%d) error = %v", tt.height, err)
			continue
		}
		if l.Count != tt.count || l.TileHeight != tt.tileHeight {
			t.Errorf("ComputeLayout(%d) = %d x %d rows, want %d x %d rows",
				tt.height, l.Count, l.TileHeight, tt.count, tt.tileHeight)
		}
	}
}

func TestComputeLayout_InvalidHeight(t *testing.T) {
	for _, h := range []int{0, -3} {
		if _, err := ComputeLayout(h); !errors.Is(err, ErrInvalidDimension) {
			t.Errorf("ComputeLayout(%d) error = %v, want ErrInvalidDimension", h, err)
		}
	}
	if _, err := ComputeLayoutFor(9, 0, 1, DefaultTilePolicy); !errors.Is(err, ErrInvalidDimension) {
		t.Errorf("ComputeLayoutFor(width 0) error = %v, want ErrInvalidDimension", err)
	}
}

// TestComputeLayout_SmallestDivisor checks every height against a brute
// force search.
func TestComputeLayout_SmallestDivisor(t *testing.T) {
	for h := 1; h <= 300; h++ {
		want := h
		for k := MinTiles; k <= h; k++ {
			if h%k == 0 {
				want = k
				break
			}
		}

		l, err := ComputeLayout(h)
		if err != nil {
			t.Fatalf("ComputeLayout(%d) error = %v", h, err)
		}
		if l.Count != want {
			t.Errorf("ComputeLayout(%d).Count = %d, want %d", h, l.Count, want)
		}
		if l.Count*l.TileHeight != h {
			t.Errorf("ComputeLayout(%d): %d x %d does not cover the image", h, l.Count, l.TileHeight)
		}
		if len(l.Ranges) != l.Count {
			t.Errorf("ComputeLayout(%d): %d ranges for %d tiles", h, len(l.Ranges), l.Count)
		}
	}
}

func TestComputeLayoutFor_Ranges(t *testing.T) {
	l, err := ComputeLayoutFor(9, 100, 3, DefaultTilePolicy)
	if err != nil {
		t.Fatalf("ComputeLayoutFor() error = %v", err)
	}
	for i, r := range l.Ranges {
		want := ByteRange{Offset: i * 900, Length: 900}
		if r != want {
			t.Errorf("Ranges[%d] = %+v, want %+v", i, r, want)
		}
		if y, h := l.Rows(i); y != i*3 || h != 3 {
			t.Errorf("Rows(%d) = (%d, %d), want (%d, 3)", i, y, h, i*3)
		}
	}
	if off, n := l.Ranges[1].Bytes(); off != 3600 || n != 3600 {
		t.Errorf("Ranges[1].Bytes() = (%d, %d), want (3600, 3600)", off, n)
	}
}

func TestComputeLayoutFor_Policy(t *testing.T) {
	tests := []struct {
		name                   string
		height, width, chans   int
		policy                 TilePolicy
		wantCount, wantTileRow int
	}{
		{"min tiles 4", 12, 10, 1, TilePolicy{MinTiles: 4}, 4, 3},
		{"min tiles below one uses default", 9, 10, 1, TilePolicy{MinTiles: 0}, 3, 3},
		{"band limit splits further", 12, 10, 1, TilePolicy{MinTiles: 3, MaxBandBytes: 80}, 6, 2},
		{"band limit exact fit", 12, 10, 1, TilePolicy{MinTiles: 3, MaxBandBytes: 160}, 3, 4},
		{"single row bands", 10, 8, 3, TilePolicy{MinTiles: 3, MaxBandBytes: 150}, 10, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := ComputeLayoutFor(tt.height, tt.width, tt.chans, tt.policy)
			if err != nil {
				t.Fatalf("ComputeLayoutFor() error = %v", err)
			}
			if l.Count != tt.wantCount || l.TileHeight != tt.wantTileRow {
				t.Errorf("layout = %d x %d rows, want %d x %d rows",
					l.Count, l.TileHeight, tt.wantCount, tt.wantTileRow)
			}
		})
	}
}

func TestComputeLayoutFor_RowTooLarge(t *testing.T) {
	_, err := ComputeLayoutFor(10, 100, 3, TilePolicy{MinTiles: 3, MaxBandBytes: 100})
	if !errors.Is(err, ErrResourceAllocation) {
		t.Errorf("ComputeLayoutFor() error = %v, want ErrResourceAllocation", err)
	}
}

// =============================================================================
// TileScheduler Tests
// =============================================================================

func TestTileScheduler_Layout(t *testing.T) {
	s := NewTileScheduler(DefaultTilePolicy)

	a, err := s.Layout(9, 4, 1)
	if err != nil {
		t.Fatalf("Layout() error = %v", err)
	}
	b, err := s.Layout(9, 4, 1)
	if err != nil {
		t.Fatalf("Layout() error = %v", err)
	}
	if a.Count != 3 || b.Count != a.Count || &a.Ranges[0] != &b.Ranges[0] {
		t.Errorf("repeated Layout() did not reuse the previous result")
	}
}

func TestTileScheduler_ReusesRecentLayouts(t *testing.T) {
	s := NewTileScheduler(DefaultTilePolicy)
	for _, h := range []int{9, 10, 9} {
		if _, err := s.Layout(h, 4, 1); err != nil {
			t.Fatalf("Layout(%d) error = %v", h, err)
		}
	}
	st := s.recent.Stats()
	if st.Hits != 1 || st.Misses != 2 {
		t.Errorf("recent layouts hits=%d misses=%d, want 1 and 2", st.Hits, st.Misses)
	}
}

func TestTileScheduler_SetPolicy(t *testing.T) {
	s := NewTileScheduler(DefaultTilePolicy)
	if l, _ := s.Layout(12, 4, 1); l.Count != 3 {
		t.Fatalf("Layout(12).Count = %d, want 3", l.Count)
	}

	s.SetPolicy(TilePolicy{MinTiles: 5})
	if got := s.Policy().MinTiles; got != 5 {
		t.Errorf("Policy().MinTiles = %d, want 5", got)
	}
	if l, _ := s.Layout(12, 4, 1); l.Count != 6 {
		t.Errorf("Layout(12).Count after SetPolicy = %d, want 6", l.Count)
	}
}

func TestTileScheduler_Error(t *testing.T) {
	s := NewTileScheduler(DefaultTilePolicy)
	if _, err := s.Layout(0, 4, 1); !errors.Is(err, ErrInvalidDimension) {
		t.Errorf("Layout(0) error = %v, want ErrInvalidDimension", err)
	}
	if l, err := s.Layout(9, 4, 1); err != nil || l.Count != 3 {
		t.Errorf("Layout(9) after error = %+v, %v", l, err)
	}
}

func BenchmarkComputeLayout(b *testing.B) {
	for b.Loop() {
		_, _ = ComputeLayoutFor(4096, 4096, 3, DefaultTilePolicy)
	}
}
