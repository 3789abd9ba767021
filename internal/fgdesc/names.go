package fgdesc

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/framegraph/device"
)

var passKinds = map[string]framegraph.PassKind{
	"graphics":      framegraph.KindGraphics,
	"compute":       framegraph.KindCompute,
	"async_compute": framegraph.KindAsyncCompute,
	"copy":          framegraph.KindCopy,
}

var accesses = map[string]device.Access{
	"undefined":         device.AccessUndefined,
	"common":            device.AccessCommon,
	"vertex_buffer":     device.AccessVertexBuffer,
	"index_buffer":      device.AccessIndexBuffer,
	"constant_buffer":   device.AccessConstantBuffer,
	"shader_read":       device.AccessShaderRead,
	"unordered_access":  device.AccessUnorderedAccess,
	"render_target":     device.AccessRenderTarget,
	"depth_write":       device.AccessDepthWrite,
	"depth_read":        device.AccessDepthRead,
	"indirect_argument": device.AccessIndirectArgument,
	"copy_src":          device.AccessCopySrc,
	"copy_dst":          device.AccessCopyDst,
	"present":           device.AccessPresent,
}

var formats = map[string]gputypes.TextureFormat{
	"r8unorm":              gputypes.TextureFormatR8Unorm,
	"rgba8unorm":           gputypes.TextureFormatRGBA8Unorm,
	"bgra8unorm":           gputypes.TextureFormatBGRA8Unorm,
	"rgba32float":          gputypes.TextureFormatRGBA32Float,
	"depth24plus-stencil8": gputypes.TextureFormatDepth24PlusStencil8,
}

var loadOps = map[string]gputypes.LoadOp{
	"clear": gputypes.LoadOpClear,
	"load":  gputypes.LoadOpLoad,
}

var storeOps = map[string]gputypes.StoreOp{
	"store":   gputypes.StoreOpStore,
	"discard": gputypes.StoreOpDiscard,
}

// lookup resolves name in table, or reports the accepted names.
func lookup[V any](what, name string, table map[string]V) (V, error) {
	if v, ok := table[strings.ToLower(name)]; ok {
		return v, nil
	}
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	var zero V
	return zero, fmt.Errorf("%w: %s %q (want one of %s)", ErrUnknownName, what, name, strings.Join(keys, ", "))
}

// lookupOr resolves an optional name, falling back to def when unset.
func lookupOr[V any](what string, name *string, table map[string]V, def V) (V, error) {
	if name == nil {
		return def, nil
	}
	return lookup(what, *name, table)
}
