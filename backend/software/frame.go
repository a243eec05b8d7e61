package software

import (
	"fmt"

	"github.com/gogpu/filmic"
)

// frame records passes until Submit executes them as one batch.
type frame struct {
	dev    *Device
	passes []filmic.Pass
	done   bool
}

func (f *frame) EncodePass(p *filmic.Pass) error {
	if f.done {
		return ErrFrameDone
	}
	if p == nil {
		return fmt.Errorf("software: nil pass")
	}
	if p.Index != len(f.passes) {
		return fmt.Errorf("software: pass %d encoded out of order, want %d", p.Index, len(f.passes))
	}
	if limit := f.dev.maxStorage; limit > 0 {
		if size := uint64(len(p.Pixels)) * 4; size > limit {
			return fmt.Errorf("software: %w: pass %d needs %d bytes of pixel storage, limit %d",
				filmic.ErrResourceAllocation, p.Index, size, limit)
		}
	}
	f.passes = append(f.passes, *p)
	return nil
}

func (f *frame) Submit() error {
	if f.done {
		return ErrFrameDone
	}
	f.done = true
	return f.dev.execute(f.passes)
}

func (f *frame) Discard() {
	f.done = true
	f.passes = nil
}
