package compositor

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// blendChannel returns round((bg*(255-m) + fg*m) / 255) with the integer
// divide-by-255 used by Pillow's mask paste, so m == 0 yields bg and
// m == 255 yields fg exactly.
func blendChannel(fg, bg, m uint8) uint8 {
	t := int32(bg)*(255-int32(m)) + int32(fg)*int32(m) + 128
	return uint8((t + (t >> 8)) >> 8)
}

// Blend mixes fg over bg using mask as a per-pixel coefficient. All four NRGBA
// channels, alpha included, go through the same rule; the images' own alpha is
// not used as a coverage value. All inputs must share the same size.
func Blend(fg, bg *image.NRGBA, mask *image.Gray) (*image.NRGBA, error) {
	size := fg.Bounds().Size()
	if bg.Bounds().Size() != size || mask.Bounds().Size() != size {
		return nil, fmt.Errorf("blend size mismatch: fg %v, bg %v, mask %v",
			size, bg.Bounds().Size(), mask.Bounds().Size())
	}

	out := image.NewNRGBA(image.Rect(0, 0, size.X, size.Y))
	fgMin, bgMin, mMin := fg.Bounds().Min, bg.Bounds().Min, mask.Bounds().Min
	for y := 0; y < size.Y; y++ {
		fi := fg.PixOffset(fgMin.X, fgMin.Y+y)
		bi := bg.PixOffset(bgMin.X, bgMin.Y+y)
		mi := mask.PixOffset(mMin.X, mMin.Y+y)
		oi := out.PixOffset(0, y)
		for x := 0; x < size.X; x++ {
			m := mask.Pix[mi+x]
			for c := 0; c < 4; c++ {
				out.Pix[oi+c] = blendChannel(fg.Pix[fi+c], bg.Pix[bi+c], m)
			}
			fi += 4
			bi += 4
			oi += 4
		}
	}
	return out, nil
}

// Luma converts img to 8-bit grayscale with the ITU-R 601-2 weights
// (L = R*299/1000 + G*587/1000 + B*114/1000). Alpha is ignored.
func Luma(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		return g
	}

	src := imaging.Clone(img)
	b := src.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		si := src.PixOffset(b.Min.X, b.Min.Y+y)
		oi := out.PixOffset(0, y)
		for x := 0; x < b.Dx(); x++ {
			r, g, bl := uint32(src.Pix[si]), uint32(src.Pix[si+1]), uint32(src.Pix[si+2])
			out.Pix[oi+x] = uint8((r*19595 + g*38470 + bl*7471 + 0x8000) >> 16)
			si += 4
		}
	}
	return out
}

// resizeMask scales a grayscale mask with Lanczos and keeps it single channel.
func resizeMask(mask *image.Gray, width, height int) *image.Gray {
	scaled := imaging.Resize(mask, width, height, imaging.Lanczos)
	out := image.NewGray(image.Rect(0, 0, width, height))
	for i := range out.Pix {
		out.Pix[i] = scaled.Pix[i*4]
	}
	return out
}
