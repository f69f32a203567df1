package segmap

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"github.com/astrogo/fitsio"
	"github.com/disintegration/imaging"
)

// Image renders the map as an 8-bit grayscale raster with claimed cells at 255.
func (m *Map) Image() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if m.cells[y*m.Width+x] {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img
}

// WritePNG stores the map as a single-channel raster at path.
func (m *Map) WritePNG(path string) error {
	if m.Width == 0 || m.Height == 0 {
		return fmt.Errorf("segmentation map is empty (%dx%d)", m.Width, m.Height)
	}
	if err := imaging.Save(m.Image(), path); err != nil {
		return fmt.Errorf("writing segmentation map %s: %w", path, err)
	}
	return nil
}

// ReadPNG loads a raster written by WritePNG. Any non-zero pixel is claimed.
func ReadPNG(path string) (*Map, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading segmentation map %s: %w", path, err)
	}
	b := img.Bounds()
	m := New(b.Dx(), b.Dy())
	gray := imaging.Grayscale(img)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if gray.NRGBAAt(x, y).R != 0 {
				m.cells[y*m.Width+x] = true
			}
		}
	}
	return m, nil
}

// ImageExtent returns the pixel width and height of the image at path. FITS
// files are read from the primary header's NAXIS1 and NAXIS2; anything else is
// decoded as a raster.
func ImageExtent(path string) (width, height int, err error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".fits", ".fit", ".fts":
		return fitsExtent(path)
	}
	img, err := imaging.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("reading image extent of %s: %w", path, err)
	}
	b := img.Bounds()
	return b.Dx(), b.Dy(), nil
}

func fitsExtent(path string) (int, int, error) {
	r, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer r.Close()

	f, err := fitsio.Open(r)
	if err != nil {
		return 0, 0, fmt.Errorf("reading FITS header of %s: %w", path, err)
	}
	defer f.Close()

	axes := f.HDU(0).Header().Axes()
	if len(axes) < 2 {
		return 0, 0, fmt.Errorf("%s: primary HDU has %d axes, want 2", path, len(axes))
	}
	return axes[0], axes[1], nil
}
