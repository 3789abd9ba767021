package fgdesc

// file is the decoded top level of a description.
type file struct {
	Textures []*textureBlock `hcl:"texture,block"`
	Buffers  []*bufferBlock  `hcl:"buffer,block"`
	Passes   []*passBlock    `hcl:"pass,block"`
	Presents []*presentBlock `hcl:"present,block"`
}

type textureBlock struct {
	Name    string  `hcl:"name,label"`
	Width   int     `hcl:"width"`
	Height  int     `hcl:"height"`
	Layers  *int    `hcl:"layers,optional"`
	Mips    *int    `hcl:"mips,optional"`
	Samples *int    `hcl:"samples,optional"`
	Format  *string `hcl:"format,optional"`

	// Import names the state an externally owned texture arrives in. Unset
	// means the graph creates the texture.
	Import *string `hcl:"import,optional"`
}

type bufferBlock struct {
	Name   string  `hcl:"name,label"`
	Size   int     `hcl:"size"`
	Stride *int    `hcl:"stride,optional"`
	Import *string `hcl:"import,optional"`
}

type passBlock struct {
	Name       string         `hcl:"name,label"`
	Kind       string         `hcl:"kind"`
	SideEffect *bool          `hcl:"side_effect,optional"`
	Reads      []*accessBlock `hcl:"read,block"`
	Writes     []*accessBlock `hcl:"write,block"`
	Colors     []*colorBlock  `hcl:"color,block"`
	Depth      *depthBlock    `hcl:"depth,block"`
}

type accessBlock struct {
	Resource string `hcl:"resource,label"`
	Access   string `hcl:"access"`
	Mip      *int   `hcl:"mip,optional"`
	Layer    *int   `hcl:"layer,optional"`
}

type colorBlock struct {
	Resource string    `hcl:"resource,label"`
	Slot     *int      `hcl:"slot,optional"`
	Load     *string   `hcl:"load,optional"`
	Store    *string   `hcl:"store,optional"`
	Clear    []float64 `hcl:"clear,optional"`
}

type depthBlock struct {
	Resource   string   `hcl:"resource,label"`
	ReadOnly   *bool    `hcl:"read_only,optional"`
	Load       *string  `hcl:"load,optional"`
	Store      *string  `hcl:"store,optional"`
	ClearDepth *float64 `hcl:"clear_depth,optional"`
}

type presentBlock struct {
	Resource string  `hcl:"resource,label"`
	State    *string `hcl:"state,optional"`
}
