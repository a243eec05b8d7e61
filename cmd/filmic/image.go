package main

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff" // 16-bit TIFF input
)

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, format, err := image.Decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("decode %s: empty %s image", path, format)
	}
	return img, nil
}

// bound shrinks img so that neither side exceeds maxSize, keeping the
// aspect ratio. Gray16 and RGBA64 sources stay 16-bit.
func bound(img image.Image, maxSize int) image.Image {
	b := img.Bounds()
	if maxSize <= 0 || (b.Dx() <= maxSize && b.Dy() <= maxSize) {
		return img
	}
	return resize.Thumbnail(uint(maxSize), uint(maxSize), img, resize.Lanczos3)
}

// toSamples flattens img to 16-bit samples: one plane for grey images
// and interleaved RGB otherwise.
func toSamples(img image.Image) (samples []uint16, width, height int) {
	b := img.Bounds()
	width, height = b.Dx(), b.Dy()

	switch g := img.(type) {
	case *image.Gray16:
		samples = make([]uint16, 0, width*height)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				samples = append(samples, g.Gray16At(x, y).Y)
			}
		}
		return samples, width, height
	case *image.Gray:
		samples = make([]uint16, 0, width*height)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				samples = append(samples, uint16(g.GrayAt(x, y).Y)*0x101)
			}
		}
		return samples, width, height
	}

	samples = make([]uint16, 0, width*height*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBA64Model.Convert(img.At(x, y)).(color.NRGBA64)
			samples = append(samples, c.R, c.G, c.B)
		}
	}
	return samples, width, height
}

// scaleToWidth resamples the rendered frame for display.
func scaleToWidth(src *image.RGBA, width int) *image.RGBA {
	b := src.Bounds()
	if width <= 0 || width == b.Dx() {
		return src
	}
	height := max(1, b.Dy()*width/b.Dx())
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

func encodePNG(path string, img image.Image) error {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := png.Encode(w, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
