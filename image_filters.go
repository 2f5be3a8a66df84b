package ocrsweep

import (
	"image"
	"image/color"
	"sort"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// 3x3 smoothing kernel the sharpness enhancement blends away from
var smoothKernel = [9]float64{
	1, 1, 1,
	1, 5, 1,
	1, 1, 1,
}

var bilevelPalette = color.Palette{color.Gray{Y: 0}, color.Gray{Y: 255}}

// grayscale converts img to luminance (0.299R + 0.587G + 0.114B), stored in all
// three channels of an NRGBA image anchored at (0,0).
func grayscale(img image.Image) (*image.NRGBA, error) {
	if img == nil {
		return nil, errors.New("no image to process")
	}
	if img.Bounds().Empty() {
		return nil, errors.Errorf("image has empty bounds %v", img.Bounds())
	}
	return imaging.Grayscale(img), nil
}

// meanLuminance is the rounded average of the gray channel
func meanLuminance(img *image.NRGBA) float64 {
	b := img.Bounds()
	var sum uint64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Max.X, y)]
		for i := 0; i < len(row); i += 4 {
			sum += uint64(row[i])
		}
	}
	n := uint64(b.Dx() * b.Dy())
	return float64((sum*2 + n) / (2 * n))
}

// blendChannel moves in away from base by factor; factor 1 returns in unchanged,
// factor 0 returns base. Results are clamped and truncated to a byte.
func blendChannel(base, in, factor float64) uint8 {
	v := base + factor*(in-base)
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v)
}

// enhanceContrast scales the distance of every pixel from the mean luminance
func enhanceContrast(img *image.NRGBA, factor float64) *image.NRGBA {
	mean := meanLuminance(img)
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		v := blendChannel(mean, float64(c.R), factor)
		return color.NRGBA{R: v, G: v, B: v, A: c.A}
	})
}

// enhanceSharpness scales the distance of every pixel from a smoothed copy of
// the image. Border pixels have no full neighbourhood and are kept as they are.
func enhanceSharpness(img *image.NRGBA, factor float64) *image.NRGBA {
	smooth := imaging.Convolve3x3(img, smoothKernel, &imaging.ConvolveOptions{Normalize: true})
	b := img.Bounds()
	out := image.NewNRGBA(b)
	copy(out.Pix, img.Pix)
	for y := b.Min.Y + 1; y < b.Max.Y-1; y++ {
		for x := b.Min.X + 1; x < b.Max.X-1; x++ {
			i := img.PixOffset(x, y)
			j := smooth.PixOffset(x-b.Min.X, y-b.Min.Y)
			v := blendChannel(float64(smooth.Pix[j]), float64(img.Pix[i]), factor)
			out.Pix[i], out.Pix[i+1], out.Pix[i+2] = v, v, v
		}
	}
	return out
}

func invert(img *image.NRGBA) *image.NRGBA {
	return imaging.Invert(img)
}

// binarize maps pixels below threshold to black and the rest to white. The
// result is a two colour paletted image.
func binarize(img *image.NRGBA, threshold uint8) *image.Paletted {
	b := img.Bounds()
	out := image.NewPaletted(b, bilevelPalette)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.Pix[img.PixOffset(x, y)] >= threshold {
				out.SetColorIndex(x, y, 1)
			}
		}
	}
	return out
}

// toGray drops the redundant channels of a grayscale NRGBA image
func toGray(img *image.NRGBA) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Pix[out.PixOffset(x, y)] = img.Pix[img.PixOffset(x, y)]
		}
	}
	return out
}

// medianFilter replaces every pixel by the median of the size x size window
// around it. Pixels outside the image repeat the nearest edge pixel.
func medianFilter(img *image.Gray, size int) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(b)
	step := size / 2
	window := make([]int, 0, size*size)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			window = window[:0]
			for yi := y - step; yi <= y+step; yi++ {
				for xi := x - step; xi <= x+step; xi++ {
					window = append(window, int(img.GrayAt(clampInt(xi, b.Min.X, b.Max.X-1), clampInt(yi, b.Min.Y, b.Max.Y-1)).Y))
				}
			}
			sort.Ints(window)
			out.Pix[out.PixOffset(x, y)] = uint8(window[len(window)/2])
		}
	}
	return out
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
