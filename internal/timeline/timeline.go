// Package timeline draws heap occupancy over a frame as an image.
//
// Each heap is a horizontal band. Columns are passes in declaration order and
// the vertical axis is the byte offset inside the heap, so every logical
// resource is a rectangle spanning its lifetime and its memory range.
// Rectangles that share rows but not columns are aliased memory.
package timeline

import (
	"errors"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"io"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/gogpu/framegraph"
)

// ErrEmpty is returned when there is nothing to draw.
var ErrEmpty = errors.New("timeline: no heaps")

// Layout defaults.
const (
	DefaultColumnWidth = 56
	DefaultHeapHeight  = 160
)

// Options controls the layout.
type Options struct {
	// ColumnWidth is the width of one pass column in pixels.
	ColumnWidth int

	// HeapHeight is the height of one heap band in pixels.
	HeapHeight int

	// FontSize selects Go Regular at this size for labels. Zero uses the
	// built-in 7x13 bitmap face.
	FontSize float64

	// Scale enlarges the finished image by an integer factor using
	// nearest-neighbour sampling. Values below 2 leave it unchanged.
	Scale int
}

var (
	background = color.RGBA{0xff, 0xff, 0xff, 0xff}
	gridColor  = color.RGBA{0xdd, 0xdd, 0xdd, 0xff}
	textColor  = color.RGBA{0x20, 0x20, 0x20, 0xff}
	bandColor  = color.RGBA{0xf4, 0xf4, 0xf4, 0xff}
)

// palette holds fill colors for occupants, picked by owner name.
var palette = []color.RGBA{
	{0x4e, 0x79, 0xa7, 0xff},
	{0xf2, 0x8e, 0x2b, 0xff},
	{0xe1, 0x57, 0x59, 0xff},
	{0x76, 0xb7, 0xb2, 0xff},
	{0x59, 0xa1, 0x4f, 0xff},
	{0xed, 0xc9, 0x48, 0xff},
	{0xb0, 0x7a, 0xa1, 0xff},
	{0xff, 0x9d, 0xa7, 0xff},
	{0x9c, 0x75, 0x5f, 0xff},
	{0xba, 0xb0, 0xac, 0xff},
}

// OwnerColor returns the fill used for an occupant.
func OwnerColor(owner string) color.RGBA {
	h := fnv.New32a()
	_, _ = h.Write([]byte(owner))
	return palette[h.Sum32()%uint32(len(palette))]
}

// Geometry locates heap bands and pass columns in a rendered image at
// Scale 1.
type Geometry struct {
	Left, Top   int
	ColumnWidth int
	HeapHeight  int
	HeapGap     int
}

// Column returns the x range of pass i.
func (g Geometry) Column(i int) (x0, x1 int) {
	x0 = g.Left + i*g.ColumnWidth
	return x0, x0 + g.ColumnWidth
}

// Band returns the y range of heap i.
func (g Geometry) Band(i int) (y0, y1 int) {
	y0 = g.Top + i*(g.HeapHeight+g.HeapGap)
	return y0, y0 + g.HeapHeight
}

// Render draws heaps over the given pass names.
func Render(heaps []framegraph.HeapInfo, passes []string, opts Options) (*image.RGBA, Geometry, error) {
	if len(heaps) == 0 {
		return nil, Geometry{}, ErrEmpty
	}
	if opts.ColumnWidth <= 0 {
		opts.ColumnWidth = DefaultColumnWidth
	}
	if opts.HeapHeight <= 0 {
		opts.HeapHeight = DefaultHeapHeight
	}
	face, err := newFace(opts.FontSize)
	if err != nil {
		return nil, Geometry{}, err
	}
	defer face.Close()

	lineHeight := face.Metrics().Height.Ceil()
	labels := make([]string, len(heaps))
	left := 0
	for i, h := range heaps {
		labels[i] = fmt.Sprintf("heap %d  %s", h.ID, formatBytes(h.Size))
		left = max(left, font.MeasureString(face, labels[i]).Ceil())
	}
	geo := Geometry{
		Left:        left + 12,
		Top:         lineHeight + 8,
		ColumnWidth: opts.ColumnWidth,
		HeapHeight:  opts.HeapHeight,
		HeapGap:     8,
	}
	columns := max(len(passes), lastPass(heaps)+1)
	_, right := geo.Column(columns)
	_, bottom := geo.Band(len(heaps) - 1)
	img := image.NewRGBA(image.Rect(0, 0, right+4, bottom+4))
	fill(img, img.Bounds(), background)

	for i := range columns {
		x0, x1 := geo.Column(i)
		name := fmt.Sprint(i)
		if i < len(passes) {
			name = passes[i]
		}
		label(img, face, clip(face, name, x1-x0-4), x0+2, lineHeight)
	}

	for hi, h := range heaps {
		y0, y1 := geo.Band(hi)
		x0, _ := geo.Column(0)
		_, x1 := geo.Column(columns)
		fill(img, image.Rect(x0, y0, x1, y1), bandColor)
		for i := 0; i <= columns; i++ {
			x, _ := geo.Column(i)
			fill(img, image.Rect(x, y0, x+1, y1), gridColor)
		}
		label(img, face, labels[hi], 4, y0+lineHeight)

		scale := float64(opts.HeapHeight) / float64(max(h.Size, 1))
		for _, r := range h.Resources {
			top := y0 + int(float64(r.Offset)*scale)
			bot := max(y0+int(float64(r.Offset+r.Size)*scale), top+1)
			for _, o := range r.Occupants {
				cx0, _ := geo.Column(o.Lifetime.First)
				_, cx1 := geo.Column(o.Lifetime.Last)
				rect := image.Rect(cx0+1, top+1, cx1, bot)
				fill(img, rect, OwnerColor(o.Owner))
				if rect.Dy() > lineHeight {
					label(img, face, clip(face, o.Owner, rect.Dx()-4), rect.Min.X+2, rect.Min.Y+lineHeight-2)
				}
			}
		}
	}

	if opts.Scale >= 2 {
		big := image.NewRGBA(image.Rect(0, 0, img.Bounds().Dx()*opts.Scale, img.Bounds().Dy()*opts.Scale))
		draw.NearestNeighbor.Scale(big, big.Bounds(), img, img.Bounds(), draw.Src, nil)
		img = big
	}
	return img, geo, nil
}

// WritePNG renders and encodes the timeline as PNG.
func WritePNG(w io.Writer, heaps []framegraph.HeapInfo, passes []string, opts Options) error {
	img, _, err := Render(heaps, passes, opts)
	if err != nil {
		return err
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("timeline: encode: %w", err)
	}
	return nil
}

func newFace(size float64) (font.Face, error) {
	if size <= 0 {
		return basicfont.Face7x13, nil
	}
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("timeline: parse font: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("timeline: create face: %w", err)
	}
	return face, nil
}

func lastPass(heaps []framegraph.HeapInfo) int {
	last := -1
	for _, h := range heaps {
		for _, r := range h.Resources {
			for _, o := range r.Occupants {
				last = max(last, o.Lifetime.Last)
			}
		}
	}
	return last
}

func fill(img draw.Image, r image.Rectangle, c color.Color) {
	draw.Draw(img, r, image.NewUniform(c), image.Point{}, draw.Src)
}

func label(img draw.Image, face font.Face, s string, x, y int) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(textColor),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// clip shortens s to fit width pixels.
func clip(face font.Face, s string, width int) string {
	r := []rune(s)
	for len(r) > 0 && font.MeasureString(face, string(r)).Ceil() > width {
		r = r[:len(r)-1]
	}
	return string(r)
}

func formatBytes(n uint64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%d KB", n>>10)
	}
	return fmt.Sprintf("%d B", n)
}
