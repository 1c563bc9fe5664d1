package split

import (
	"image"
)

// Tile is one square window of the crop, in crop-local coordinates.
type Tile struct {
	Index int
	X, Y  int
	W, H  int
}

// Rect returns the tile as a rectangle.
func (t Tile) Rect() image.Rectangle {
	return image.Rect(t.X, t.Y, t.X+t.W, t.Y+t.H)
}

// Layout is the tiling chosen for one crop.
type Layout struct {
	Single  bool
	TilesX  int
	TilesY  int
	Size    int
	Overlap int
	Tiles   []Tile
}

// Stride returns the distance between consecutive tile origins.
func (l Layout) Stride() int {
	return l.Size - l.Overlap
}

// Overlap returns the overlap in pixels for a tile size and overlap fraction.
func Overlap(tileSize int, frac float64) int {
	return int(float64(tileSize) * frac)
}

// Grid splits a cw×ch crop into tiles of size ts sharing overlap pixels.
// A crop that fits in one tile yields a single tile at the origin; the
// caller pads it to ts×ts. Otherwise the last tile of each row and column
// is pulled back inside the crop instead of running past its edge.
func Grid(cw, ch, ts, overlap int) Layout {
	l := Layout{Size: ts, Overlap: overlap}
	if cw <= ts && ch <= ts {
		l.Single = true
		l.TilesX, l.TilesY = 1, 1
		l.Tiles = []Tile{{Index: 0, W: cw, H: ch}}
		return l
	}

	stride := ts - overlap
	l.TilesX = count(cw, overlap, stride)
	l.TilesY = count(ch, overlap, stride)
	l.Tiles = make([]Tile, 0, l.TilesX*l.TilesY)
	for ty := 0; ty < l.TilesY; ty++ {
		for tx := 0; tx < l.TilesX; tx++ {
			x0 := min(tx*stride, max(0, cw-ts))
			y0 := min(ty*stride, max(0, ch-ts))
			l.Tiles = append(l.Tiles, Tile{
				Index: len(l.Tiles),
				X:     x0,
				Y:     y0,
				W:     min(ts, cw-x0),
				H:     min(ts, ch-y0),
			})
		}
	}
	return l
}

// count is max(1, ceil((extent-overlap)/stride)).
func count(extent, overlap, stride int) int {
	n := extent - overlap
	if n <= 0 {
		return 1
	}
	return max(1, (n+stride-1)/stride)
}
