// Package fgdesc reads frame graph descriptions written in HCL and declares
// them on a [framegraph.Graph].
//
// A description lists resources, passes in submission order and the
// presented outputs:
//
//	texture "hdr" {
//	  width  = screen.width
//	  height = screen.height
//	  format = "rgba32float"
//	}
//
//	pass "lighting" {
//	  kind = "graphics"
//	  read "albedo" { access = "shader_read" }
//	  color "hdr" { load = "clear" }
//	}
//
//	present "hdr" { state = "shader_read" }
//
// Attribute expressions may reference the variables passed to Parse, such as
// screen.width, and call min, max, floor and ceil.
package fgdesc

import (
	"errors"
	"fmt"
	"os"

	"github.com/gogpu/gputypes"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/framegraph/device"
)

// Description errors.
var (
	// ErrUnknownName is returned for an unrecognised kind, access state,
	// format or load/store op.
	ErrUnknownName = errors.New("fgdesc: unknown name")

	// ErrUndeclared is returned when a pass or present block references a
	// resource that was not declared.
	ErrUndeclared = errors.New("fgdesc: undeclared resource")

	// ErrInvalid is returned for structurally invalid descriptions.
	ErrInvalid = errors.New("fgdesc: invalid description")
)

// Vars are the variables visible to attribute expressions.
type Vars map[string]cty.Value

// ScreenVars returns Vars defining screen.width and screen.height.
func ScreenVars(width, height int) Vars {
	return Vars{
		"screen": cty.ObjectVal(map[string]cty.Value{
			"width":  cty.NumberIntVal(int64(width)),
			"height": cty.NumberIntVal(int64(height)),
		}),
	}
}

// Texture is a declared texture.
type Texture struct {
	Name     string
	Desc     device.TextureDesc
	Imported bool
	State    device.Access
}

// Buffer is a declared buffer.
type Buffer struct {
	Name     string
	Desc     device.BufferDesc
	Imported bool
	State    device.Access
}

// Use is a read or write of a resource.
type Use struct {
	Resource string
	Access   device.Access
	Sub      device.Subresource
}

// Color is a color attachment binding.
type Color struct {
	Resource   string
	Slot       int
	Attachment framegraph.Attachment
}

// Depth is a depth/stencil attachment binding.
type Depth struct {
	Resource   string
	Attachment framegraph.DepthAttachment
}

// Pass is a declared pass.
type Pass struct {
	Name       string
	Kind       framegraph.PassKind
	SideEffect bool
	Reads      []Use
	Writes     []Use
	Colors     []Color
	Depth      *Depth
}

// Present marks a resource's final version as a graph output.
type Present struct {
	Resource string
	State    device.Access
}

// Description is a parsed and validated frame description.
type Description struct {
	Textures []Texture
	Buffers  []Buffer
	Passes   []Pass
	Presents []Present
}

// Load reads and parses the description at path.
func Load(path string, vars Vars) (*Description, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fgdesc: %w", err)
	}
	return Parse(src, path, vars)
}

// Parse parses HCL source. filename is used in diagnostics only.
func Parse(src []byte, filename string, vars Vars) (*Description, error) {
	parser := hclparse.NewParser()
	f, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("fgdesc: parse %s: %w", filename, diags)
	}
	var root file
	if diags := gohcl.DecodeBody(f.Body, evalContext(vars), &root); diags.HasErrors() {
		return nil, fmt.Errorf("fgdesc: decode %s: %w", filename, diags)
	}
	d, err := convert(&root)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return d, nil
}

func evalContext(vars Vars) *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: vars,
		Functions: map[string]function.Function{
			"min":   stdlib.MinFunc,
			"max":   stdlib.MaxFunc,
			"floor": stdlib.FloorFunc,
			"ceil":  stdlib.CeilFunc,
		},
	}
}

func convert(root *file) (*Description, error) {
	d := &Description{}
	kinds := make(map[string]device.ResourceKind)
	declare := func(name string, kind device.ResourceKind) error {
		if _, dup := kinds[name]; dup {
			return fmt.Errorf("%w: resource %q declared twice", ErrInvalid, name)
		}
		kinds[name] = kind
		return nil
	}

	for _, t := range root.Textures {
		if err := declare(t.Name, device.KindTexture); err != nil {
			return nil, err
		}
		tex, err := convertTexture(t)
		if err != nil {
			return nil, err
		}
		d.Textures = append(d.Textures, tex)
	}
	for _, b := range root.Buffers {
		if err := declare(b.Name, device.KindBuffer); err != nil {
			return nil, err
		}
		buf, err := convertBuffer(b)
		if err != nil {
			return nil, err
		}
		d.Buffers = append(d.Buffers, buf)
	}

	passes := make(map[string]bool)
	for _, p := range root.Passes {
		if passes[p.Name] {
			return nil, fmt.Errorf("%w: pass %q declared twice", ErrInvalid, p.Name)
		}
		passes[p.Name] = true
		pass, err := convertPass(p, kinds)
		if err != nil {
			return nil, fmt.Errorf("pass %q: %w", p.Name, err)
		}
		d.Passes = append(d.Passes, pass)
	}

	for _, pr := range root.Presents {
		if _, ok := kinds[pr.Resource]; !ok {
			return nil, fmt.Errorf("%w: present %q", ErrUndeclared, pr.Resource)
		}
		state, err := lookupOr("access", pr.State, accesses, device.AccessPresent)
		if err != nil {
			return nil, err
		}
		d.Presents = append(d.Presents, Present{Resource: pr.Resource, State: state})
	}
	return d, nil
}

func positive(what string, v int) (uint32, error) {
	if v <= 0 {
		return 0, fmt.Errorf("%w: %s must be positive, got %d", ErrInvalid, what, v)
	}
	return uint32(v), nil //nolint:gosec // checked above
}

func optional(what string, v *int) (uint32, error) {
	if v == nil {
		return 1, nil
	}
	return positive(what, *v)
}

func convertTexture(t *textureBlock) (Texture, error) {
	out := Texture{Name: t.Name}
	var err error
	d := &out.Desc
	d.Label = t.Name
	if d.Width, err = positive("width", t.Width); err != nil {
		return out, err
	}
	if d.Height, err = positive("height", t.Height); err != nil {
		return out, err
	}
	if d.DepthOrLayers, err = optional("layers", t.Layers); err != nil {
		return out, err
	}
	if d.MipLevels, err = optional("mips", t.Mips); err != nil {
		return out, err
	}
	if d.SampleCount, err = optional("samples", t.Samples); err != nil {
		return out, err
	}
	if d.Format, err = lookupOr("format", t.Format, formats, gputypes.TextureFormatRGBA8Unorm); err != nil {
		return out, err
	}
	if t.Import != nil {
		out.Imported = true
		if out.State, err = lookup("access", *t.Import, accesses); err != nil {
			return out, err
		}
	}
	return out, nil
}

func convertBuffer(b *bufferBlock) (Buffer, error) {
	out := Buffer{Name: b.Name}
	size, err := positive("size", b.Size)
	if err != nil {
		return out, err
	}
	out.Desc = device.BufferDesc{Label: b.Name, Size: uint64(size)}
	if b.Stride != nil {
		if out.Desc.Stride, err = positive("stride", *b.Stride); err != nil {
			return out, err
		}
	}
	if b.Import != nil {
		out.Imported = true
		if out.State, err = lookup("access", *b.Import, accesses); err != nil {
			return out, err
		}
	}
	return out, nil
}

func convertUse(a *accessBlock, kinds map[string]device.ResourceKind) (Use, error) {
	if _, ok := kinds[a.Resource]; !ok {
		return Use{}, fmt.Errorf("%w: %q", ErrUndeclared, a.Resource)
	}
	access, err := lookup("access", a.Access, accesses)
	if err != nil {
		return Use{}, err
	}
	u := Use{Resource: a.Resource, Access: access, Sub: device.AllSubresources}
	if a.Mip != nil {
		u.Sub.Mip = *a.Mip
	}
	if a.Layer != nil {
		u.Sub.Layer = *a.Layer
	}
	return u, nil
}

func convertPass(p *passBlock, kinds map[string]device.ResourceKind) (Pass, error) {
	kind, err := lookup("pass kind", p.Kind, passKinds)
	if err != nil {
		return Pass{}, err
	}
	out := Pass{Name: p.Name, Kind: kind, SideEffect: p.SideEffect != nil && *p.SideEffect}
	for _, r := range p.Reads {
		u, err := convertUse(r, kinds)
		if err != nil {
			return out, err
		}
		out.Reads = append(out.Reads, u)
	}
	for _, w := range p.Writes {
		u, err := convertUse(w, kinds)
		if err != nil {
			return out, err
		}
		out.Writes = append(out.Writes, u)
	}
	if (len(p.Colors) > 0 || p.Depth != nil) && kind != framegraph.KindGraphics {
		return out, fmt.Errorf("%w: attachments on a %s pass", ErrInvalid, kind)
	}
	for _, c := range p.Colors {
		if kinds[c.Resource] != device.KindTexture {
			return out, fmt.Errorf("%w: color target %q", ErrUndeclared, c.Resource)
		}
		col := Color{Resource: c.Resource}
		if c.Slot != nil {
			col.Slot = *c.Slot
		}
		a := &col.Attachment
		if a.LoadOp, err = lookupOr("load op", c.Load, loadOps, gputypes.LoadOpClear); err != nil {
			return out, err
		}
		if a.StoreOp, err = lookupOr("store op", c.Store, storeOps, gputypes.StoreOpStore); err != nil {
			return out, err
		}
		if len(c.Clear) > 0 {
			if len(c.Clear) != 4 {
				return out, fmt.Errorf("%w: clear needs 4 components, got %d", ErrInvalid, len(c.Clear))
			}
			a.ClearValue = gputypes.Color{R: c.Clear[0], G: c.Clear[1], B: c.Clear[2], A: c.Clear[3]}
		}
		out.Colors = append(out.Colors, col)
	}
	if dp := p.Depth; dp != nil {
		if kinds[dp.Resource] != device.KindTexture {
			return out, fmt.Errorf("%w: depth target %q", ErrUndeclared, dp.Resource)
		}
		dep := &Depth{Resource: dp.Resource}
		a := &dep.Attachment
		a.ReadOnly = dp.ReadOnly != nil && *dp.ReadOnly
		if a.DepthLoadOp, err = lookupOr("load op", dp.Load, loadOps, gputypes.LoadOpClear); err != nil {
			return out, err
		}
		if a.DepthStoreOp, err = lookupOr("store op", dp.Store, storeOps, gputypes.StoreOpStore); err != nil {
			return out, err
		}
		a.StencilLoadOp, a.StencilStoreOp = a.DepthLoadOp, a.DepthStoreOp
		a.DepthClearValue = 1
		if dp.ClearDepth != nil {
			a.DepthClearValue = float32(*dp.ClearDepth)
		}
		out.Depth = dep
	}
	return out, nil
}
