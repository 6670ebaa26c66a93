package detect

import (
	"math"

	"github.com/pagepress/pagepress/internal/annotate"
	"github.com/pagepress/pagepress/internal/domain"
)

// boxFromVertices computes the axis-aligned bounding box of absolute-pixel
// polygon vertices. Polygons with fewer than 3 vertices are malformed and
// rejected.
func boxFromVertices(vs []annotate.Vertex) (domain.BoundingBox, bool) {
	if len(vs) < 3 {
		return domain.BoundingBox{}, false
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, v := range vs {
		minX = math.Min(minX, v.X)
		minY = math.Min(minY, v.Y)
		maxX = math.Max(maxX, v.X)
		maxY = math.Max(maxY, v.Y)
	}

	return domain.BoundingBox{
		Left:   int(minX),
		Top:    int(minY),
		Width:  int(maxX - minX),
		Height: int(maxY - minY),
	}, true
}

// boxFromNormalized converts normalized [0,1] polygon vertices to a pixel
// bounding box using the image's actual dimensions.
func boxFromNormalized(vs []annotate.Vertex, imgW, imgH int) (domain.BoundingBox, bool) {
	if len(vs) < 3 {
		return domain.BoundingBox{}, false
	}

	pixels := make([]annotate.Vertex, len(vs))
	for i, v := range vs {
		pixels[i] = annotate.Vertex{X: v.X * float64(imgW), Y: v.Y * float64(imgH)}
	}
	return boxFromVertices(pixels)
}

// clipBox clamps a box to a w×h image so no coordinate is negative or out
// of range.
func clipBox(b domain.BoundingBox, w, h int) domain.BoundingBox {
	if b.Left < 0 {
		b.Width += b.Left
		b.Left = 0
	}
	if b.Top < 0 {
		b.Height += b.Top
		b.Top = 0
	}
	if b.Left > w {
		b.Left = w
	}
	if b.Top > h {
		b.Top = h
	}
	if b.Left+b.Width > w {
		b.Width = w - b.Left
	}
	if b.Top+b.Height > h {
		b.Height = h - b.Top
	}
	if b.Width < 0 {
		b.Width = 0
	}
	if b.Height < 0 {
		b.Height = 0
	}
	return b
}

// padBox grows a box by padX/padY pixels on each side.
func padBox(b domain.BoundingBox, padX, padY int) domain.BoundingBox {
	return domain.BoundingBox{
		Left:   b.Left - padX,
		Top:    b.Top - padY,
		Width:  b.Width + 2*padX,
		Height: b.Height + 2*padY,
	}
}

// intersectionArea returns the overlap area of two boxes in pixels.
func intersectionArea(a, b domain.BoundingBox) int {
	left := maxInt(a.Left, b.Left)
	top := maxInt(a.Top, b.Top)
	right := minInt(a.Right(), b.Right())
	bottom := minInt(a.Bottom(), b.Bottom())
	if right <= left || bottom <= top {
		return 0
	}
	return (right - left) * (bottom - top)
}

// overlapsExisting reports whether candidate overlaps any accepted box by
// more than threshold of either box's area. A looser check would emit
// redundant near-duplicate crops.
func overlapsExisting(candidate domain.BoundingBox, accepted []domain.BoundingBox, threshold float64) bool {
	for _, a := range accepted {
		inter := float64(intersectionArea(candidate, a))
		if inter == 0 {
			continue
		}
		if inter > threshold*float64(candidate.Area()) || inter > threshold*float64(a.Area()) {
			return true
		}
	}
	return false
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
