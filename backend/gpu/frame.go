package gpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/filmic"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu"
)

// ErrFrameDone is returned when a frame is used after Submit or Discard.
var ErrFrameDone = errors.New("gpu: frame already finished")

// frame records one render pass per band into a single encoder.
type frame struct {
	dev     *Device
	prog    *program
	encoder *wgpu.CommandEncoder
	view    *wgpu.TextureView
	format  gputypes.TextureFormat

	curves  *wgpu.Buffer
	buffers []*wgpu.Buffer
	groups  []*wgpu.BindGroup
	passes  int
	done    bool
}

func (f *frame) EncodePass(p *filmic.Pass) error {
	if f.done {
		return ErrFrameDone
	}
	if p == nil || len(p.Pixels) == 0 {
		return fmt.Errorf("gpu: pass has no pixel data")
	}
	if p.Index != f.passes {
		return fmt.Errorf("gpu: pass %d encoded out of order, want %d", p.Index, f.passes)
	}
	pixelBytes := uint64(len(p.Pixels)) * 4
	if limit := f.dev.limits.MaxStorageBufferBindingSize; limit > 0 && pixelBytes > limit {
		return fmt.Errorf("gpu: %w: pass %d needs %d bytes of pixel storage, limit %d",
			filmic.ErrResourceAllocation, p.Index, pixelBytes, limit)
	}

	pipeline, err := f.prog.pipeline(f.format, p.Operator)
	if err != nil {
		return fmt.Errorf("gpu: pass %d: %w", p.Index, err)
	}

	if f.curves == nil {
		buf, err := f.upload("filmic-curves", wgpu.BufferUsageStorage, float32Bytes(p.Curves))
		if err != nil {
			return err
		}
		f.curves = buf
	}
	uniforms, err := f.upload("filmic-uniforms", wgpu.BufferUsageUniform, p.Uniforms.Bytes())
	if err != nil {
		return err
	}
	samples, err := f.upload("filmic-samples", wgpu.BufferUsageStorage, float32Bytes(p.Pixels))
	if err != nil {
		return err
	}

	group, err := f.dev.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "filmic-band",
		Layout: f.prog.bgLayout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: bindingUniforms, Buffer: uniforms, Size: filmic.UniformSize},
			{Binding: bindingSamples, Buffer: samples, Size: pixelBytes},
			{Binding: bindingCurves, Buffer: f.curves},
		},
	})
	if err != nil {
		return allocError("bind group", err)
	}
	f.groups = append(f.groups, group)

	pass, err := f.encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label: "filmic-band",
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       f.view,
			LoadOp:     p.Load,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: filmic.ClearColor,
		}},
	})
	if err != nil {
		return fmt.Errorf("gpu: begin pass %d: %w", p.Index, err)
	}
	vp := p.Viewport
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, group, nil)
	pass.SetVertexBuffer(0, f.prog.vertices, 0)
	pass.SetViewport(float32(vp.X), float32(vp.Y), float32(vp.Width), float32(vp.Height), 0, 1)
	pass.Draw(4, 1, 0, 0)
	if err := pass.End(); err != nil {
		return fmt.Errorf("gpu: end pass %d: %w", p.Index, err)
	}

	f.passes++
	return nil
}

// upload creates a buffer with usage plus CopyDst and writes data to it.
func (f *frame) upload(label string, usage wgpu.BufferUsage, data []byte) (*wgpu.Buffer, error) {
	buf, err := f.dev.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  uint64(len(data)),
		Usage: usage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, allocError(label, err)
	}
	f.buffers = append(f.buffers, buf)
	if err := f.dev.queue.WriteBuffer(buf, 0, data); err != nil {
		return nil, fmt.Errorf("gpu: write %s: %w", label, err)
	}
	return buf, nil
}

func (f *frame) Submit() error {
	if f.done {
		return ErrFrameDone
	}
	f.done = true
	defer f.release()

	cmd, err := f.encoder.Finish()
	if err != nil {
		return fmt.Errorf("gpu: finish frame: %w", err)
	}
	if _, err := f.dev.queue.Submit(cmd); err != nil {
		return fmt.Errorf("gpu: submit frame: %w", err)
	}
	// Per-frame buffers are released below; wait until the GPU is done
	// reading them.
	if err := f.dev.device.WaitIdle(); err != nil {
		return fmt.Errorf("gpu: wait for frame: %w", err)
	}
	f.dev.logger().Debug("gpu frame submitted", "passes", f.passes)
	return nil
}

func (f *frame) Discard() {
	if f.done {
		return
	}
	f.done = true
	f.encoder.DiscardEncoding()
	f.release()
}

func (f *frame) release() {
	for _, g := range f.groups {
		g.Release()
	}
	for _, b := range f.buffers {
		b.Release()
	}
	f.groups, f.buffers, f.curves = nil, nil, nil
}
