package imaging

import (
	"fmt"
	"image"
	"image/jpeg"
	"os"

	"golang.org/x/image/draw"

	"github.com/pagepress/pagepress/internal/domain"
)

const cropQuality = 90

// Crop writes the region of the source image described by box to dstPath
// as a JPEG. The box must already be clipped to the image bounds.
func Crop(srcPath string, box domain.BoundingBox, dstPath string) error {
	img, err := decodeImage(srcPath)
	if err != nil {
		return domain.IOError(fmt.Sprintf("decode image for crop: %s", srcPath), err)
	}

	if box.Width <= 0 || box.Height <= 0 {
		return domain.ValidationError(fmt.Sprintf("empty crop box %+v", box), nil)
	}

	rect := image.Rect(box.Left, box.Top, box.Right(), box.Bottom())
	rect = rect.Intersect(img.Bounds())
	if rect.Empty() {
		return domain.ValidationError(fmt.Sprintf("crop box %+v outside image bounds", box), nil)
	}

	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), img, rect.Min, draw.Src)

	out, err := os.Create(dstPath)
	if err != nil {
		return domain.IOError(fmt.Sprintf("create crop file: %s", dstPath), err)
	}
	defer out.Close()

	if err := jpeg.Encode(out, dst, &jpeg.Options{Quality: cropQuality}); err != nil {
		return domain.ConversionError(fmt.Sprintf("encode crop: %s", dstPath), err)
	}
	return nil
}

// Dimensions returns the pixel width and height of an image file without
// decoding the full pixel data.
func Dimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, domain.IOError(fmt.Sprintf("open image: %s", path), err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, domain.ConversionError(fmt.Sprintf("decode image config: %s", path), err)
	}
	return cfg.Width, cfg.Height, nil
}

// SceneBox computes a landscape crop box of at most maxSide per side,
// centered on the most visually salient region of the image. Saliency is
// edge energy on a coarse grayscale grid, so the box gravitates toward
// detail rather than sitting at the geometric center.
func SceneBox(path string, maxSide int) (domain.BoundingBox, error) {
	img, err := decodeImage(path)
	if err != nil {
		return domain.BoundingBox{}, domain.IOError(fmt.Sprintf("decode image for scene crop: %s", path), err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	targetW := w
	if targetW > maxSide {
		targetW = maxSide
	}
	// Landscape target: height at most 3/4 of width.
	targetH := targetW * 3 / 4
	if targetH > h {
		targetH = h
	}
	if targetH > maxSide {
		targetH = maxSide
	}

	cx, cy := saliencyCenter(img)

	box := domain.BoundingBox{
		Left:   cx - targetW/2,
		Top:    cy - targetH/2,
		Width:  targetW,
		Height: targetH,
	}
	return clampBox(box, w, h), nil
}

// saliencyCenter returns the edge-energy-weighted centroid of the image
// in full-resolution pixel coordinates.
func saliencyCenter(img image.Image) (int, int) {
	const grid = 64

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	sample := downsample(img, grid, grid)
	luma := make([]float64, grid*grid)
	for y := 0; y < grid; y++ {
		for x := 0; x < grid; x++ {
			r, g, b, _ := sample.At(x, y).RGBA()
			luma[y*grid+x] = 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
		}
	}

	var total, sumX, sumY float64
	for y := 1; y < grid-1; y++ {
		for x := 1; x < grid-1; x++ {
			dx := luma[y*grid+x+1] - luma[y*grid+x-1]
			dy := luma[(y+1)*grid+x] - luma[(y-1)*grid+x]
			energy := abs(dx) + abs(dy)
			total += energy
			sumX += energy * float64(x)
			sumY += energy * float64(y)
		}
	}

	if total == 0 {
		return w / 2, h / 2
	}
	return int(sumX / total * float64(w) / grid), int(sumY / total * float64(h) / grid)
}

// clampBox shifts and shrinks box so it lies within a w×h image.
func clampBox(box domain.BoundingBox, w, h int) domain.BoundingBox {
	if box.Left < 0 {
		box.Left = 0
	}
	if box.Top < 0 {
		box.Top = 0
	}
	if box.Left+box.Width > w {
		box.Left = w - box.Width
		if box.Left < 0 {
			box.Left = 0
			box.Width = w
		}
	}
	if box.Top+box.Height > h {
		box.Top = h - box.Height
		if box.Top < 0 {
			box.Top = 0
			box.Height = h
		}
	}
	return box
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
