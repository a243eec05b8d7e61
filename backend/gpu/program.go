package gpu

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gogpu/filmic"
	"github.com/gogpu/filmic/internal/shader"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu"
)

// Bind group slots of the tonemap program.
const (
	bindingUniforms = 0
	bindingSamples  = 1
	bindingCurves   = 2
)

// pipelineKey identifies one render pipeline of the program.
type pipelineKey struct {
	format   gputypes.TextureFormat
	operator filmic.Operator
}

// program holds the device objects shared by every frame: the shader
// module, layouts, the quad vertex buffer and one render pipeline per
// target format and operator.
type program struct {
	device   *wgpu.Device
	module   *wgpu.ShaderModule
	bgLayout *wgpu.BindGroupLayout
	layout   *wgpu.PipelineLayout
	vertices *wgpu.Buffer

	mu        sync.Mutex
	pipelines map[pipelineKey]*wgpu.RenderPipeline
}

func newProgram(device *wgpu.Device, queue *wgpu.Queue) (*program, error) {
	if _, err := shader.Validate(); err != nil {
		return nil, err
	}

	p := &program{
		device:    device,
		pipelines: make(map[pipelineKey]*wgpu.RenderPipeline),
	}
	ok := false
	defer func() {
		if !ok {
			p.release()
		}
	}()

	var err error
	p.module, err = device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: "filmic-tonemap",
		WGSL:  shader.Source(),
	})
	if err != nil {
		return nil, fmt.Errorf("create shader module: %w", err)
	}

	p.bgLayout, err = device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "filmic-tonemap",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    bindingUniforms,
				Visibility: gputypes.ShaderStageFragment,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
			{
				Binding:    bindingSamples,
				Visibility: gputypes.ShaderStageFragment,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage},
			},
			{
				Binding:    bindingCurves,
				Visibility: gputypes.ShaderStageFragment,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create bind group layout: %w", err)
	}

	p.layout, err = device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "filmic-tonemap",
		BindGroupLayouts: []*wgpu.BindGroupLayout{p.bgLayout},
	})
	if err != nil {
		return nil, fmt.Errorf("create pipeline layout: %w", err)
	}

	verts := float32Bytes(shader.QuadVertices[:])
	p.vertices, err = device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "filmic-quad",
		Size:  uint64(len(verts)),
		Usage: wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create vertex buffer: %w", err)
	}
	if err := queue.WriteBuffer(p.vertices, 0, verts); err != nil {
		return nil, fmt.Errorf("upload vertices: %w", err)
	}

	ok = true
	return p, nil
}

// pipeline returns the render pipeline drawing op into format, creating
// it on first use.
func (p *program) pipeline(format gputypes.TextureFormat, op filmic.Operator) (*wgpu.RenderPipeline, error) {
	key := pipelineKey{format: format, operator: op}

	p.mu.Lock()
	defer p.mu.Unlock()
	if rp, ok := p.pipelines[key]; ok {
		return rp, nil
	}
	rp, err := p.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  "filmic-" + op.String(),
		Layout: p.layout,
		Vertex: wgpu.VertexState{
			Module:     p.module,
			EntryPoint: shader.VertexEntry,
			Buffers: []gputypes.VertexBufferLayout{{
				ArrayStride: shader.VertexStride,
				StepMode:    gputypes.VertexStepModeVertex,
				Attributes: []gputypes.VertexAttribute{
					{Format: gputypes.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0},
					{Format: gputypes.VertexFormatFloat32x2, Offset: 8, ShaderLocation: 1},
				},
			}},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleStrip,
		},
		Multisample: gputypes.DefaultMultisampleState(),
		Fragment: &wgpu.FragmentState{
			Module:     p.module,
			EntryPoint: shader.EntryPoint(op),
			Targets: []gputypes.ColorTargetState{{
				Format:    format,
				WriteMask: gputypes.ColorWriteMaskAll,
			}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create %v render pipeline for %v: %w", op, format, err)
	}
	p.pipelines[key] = rp
	return rp, nil
}

func (p *program) release() {
	p.mu.Lock()
	for k, rp := range p.pipelines {
		rp.Release()
		delete(p.pipelines, k)
	}
	p.mu.Unlock()
	if p.vertices != nil {
		p.vertices.Release()
	}
	if p.layout != nil {
		p.layout.Release()
	}
	if p.bgLayout != nil {
		p.bgLayout.Release()
	}
	if p.module != nil {
		p.module.Release()
	}
}

// float32Bytes packs values little-endian, the layout WGSL expects for
// f32 arrays.
func float32Bytes(values []float32) []byte {
	buf := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}
