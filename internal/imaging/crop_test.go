package imaging

import (
	"image/color"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagepress/pagepress/internal/domain"
)

func TestCropProducesRequestedRegion(t *testing.T) {
	src := writePNG(t, 400, 300, noise)
	dst := filepath.Join(t.TempDir(), "crop.jpg")

	box := domain.BoundingBox{Left: 50, Top: 40, Width: 120, Height: 90}
	require.NoError(t, Crop(src, box, dst))

	w, h, err := Dimensions(dst)
	require.NoError(t, err)
	assert.Equal(t, 120, w)
	assert.Equal(t, 90, h)
}

func TestCropEmptyBoxFails(t *testing.T) {
	src := writePNG(t, 100, 100, noise)
	dst := filepath.Join(t.TempDir(), "crop.jpg")

	err := Crop(src, domain.BoundingBox{Left: 10, Top: 10}, dst)
	require.Error(t, err)
}

func TestSceneBoxStaysWithinBoundsAndLimit(t *testing.T) {
	src := writePNG(t, 2000, 1500, noise)

	box, err := SceneBox(src, 1200)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, box.Left, 0)
	assert.GreaterOrEqual(t, box.Top, 0)
	assert.LessOrEqual(t, box.Right(), 2000)
	assert.LessOrEqual(t, box.Bottom(), 1500)
	assert.LessOrEqual(t, box.Width, 1200)
	assert.LessOrEqual(t, box.Height, 1200)
	assert.GreaterOrEqual(t, box.Width, box.Height, "scene crop should be landscape")
}

func TestSceneBoxFollowsSalientRegion(t *testing.T) {
	// All the detail sits in the right half; the crop should shift right
	// of a naive center crop.
	src := writePNG(t, 1600, 800, func(x, y int) color.Color {
		if x < 800 {
			return color.RGBA{255, 255, 255, 255}
		}
		v := uint8((x*53 + y*17) % 256)
		return color.RGBA{v, 255 - v, v / 2, 255}
	})

	box, err := SceneBox(src, 1200)
	require.NoError(t, err)

	center := box.Left + box.Width/2
	assert.Greater(t, center, 800, "crop center should gravitate toward the detailed half")
}

func TestSceneBoxOnSmallImageCoversIt(t *testing.T) {
	src := writePNG(t, 300, 200, noise)

	box, err := SceneBox(src, 1200)
	require.NoError(t, err)
	assert.LessOrEqual(t, box.Right(), 300)
	assert.LessOrEqual(t, box.Bottom(), 200)
}
