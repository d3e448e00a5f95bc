package raster

import (
	"image"
	"math/rand"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"
)

// Pair is an image tile with its label mask. Transforms keep both aligned.
type Pair struct {
	Image *Raster
	Mask  *Raster
}

type Transform interface {
	Apply(p Pair, rnd *rand.Rand) (Pair, error)
}

// Compose applies transforms in order.
type Compose []Transform

func (c Compose) Apply(p Pair, rnd *rand.Rand) (Pair, error) {
	var err error
	for _, t := range c {
		p, err = t.Apply(p, rnd)
		if err != nil {
			return Pair{}, err
		}
	}
	return p, nil
}

type rotate struct{}

// Rotate rotates by a random multiple of 90 degrees.
func Rotate() Transform { return rotate{} }

func (rotate) Apply(p Pair, rnd *rand.Rand) (Pair, error) {
	if err := checkPair(p); err != nil {
		return Pair{}, err
	}
	var turns = rnd.Intn(4)
	return Pair{
		Image: Rot90(p.Image, turns),
		Mask:  Rot90(p.Mask, turns),
	}, nil
}

// Rot90 rotates counterclockwise turns times.
func Rot90(r *Raster, turns int) *Raster {
	turns = ((turns % 4) + 4) % 4
	if turns == 0 {
		return r
	}
	var w, h = r.Width, r.Height
	var dst *Raster
	if turns == 2 {
		dst = New(w, h, r.Channels)
	} else {
		dst = New(h, w, r.Channels)
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var dx, dy int
			switch turns {
			case 1:
				dx, dy = y, w-1-x
			case 2:
				dx, dy = w-1-x, h-1-y
			case 3:
				dx, dy = h-1-y, x
			}
			var src = (y*w + x) * r.Channels
			var di = (dy*dst.Width + dx) * r.Channels
			copy(dst.Pix[di:di+r.Channels], r.Pix[src:src+r.Channels])
		}
	}
	return dst
}

type crop struct {
	size int
}

// Crop takes a random size x size window, padding with zeros when the tile is smaller.
func Crop(size int) Transform { return crop{size: size} }

func (t crop) Apply(p Pair, rnd *rand.Rand) (Pair, error) {
	if err := checkPair(p); err != nil {
		return Pair{}, err
	}
	var img, mask = pad(p.Image, t.size), pad(p.Mask, t.size)
	var x0 = rnd.Intn(img.Width - t.size + 1)
	var y0 = rnd.Intn(img.Height - t.size + 1)
	return Pair{
		Image: window(img, x0, y0, t.size),
		Mask:  window(mask, x0, y0, t.size),
	}, nil
}

func pad(r *Raster, size int) *Raster {
	if r.Width >= size && r.Height >= size {
		return r
	}
	var w, h = max(r.Width, size), max(r.Height, size)
	var dst = New(w, h, r.Channels)
	for y := 0; y < r.Height; y++ {
		copy(dst.Pix[y*w*r.Channels:], r.Pix[y*r.Width*r.Channels:(y+1)*r.Width*r.Channels])
	}
	return dst
}

func window(r *Raster, x0, y0, size int) *Raster {
	var dst = New(size, size, r.Channels)
	var rowLen = size * r.Channels
	for y := 0; y < size; y++ {
		var src = ((y0+y)*r.Width + x0) * r.Channels
		copy(dst.Pix[y*rowLen:(y+1)*rowLen], r.Pix[src:src+rowLen])
	}
	return dst
}

type resize struct {
	size int
}

// Resize scales to size x size: bilinear for the image, nearest neighbour for the mask.
func Resize(size int) Transform { return resize{size: size} }

func (t resize) Apply(p Pair, rnd *rand.Rand) (Pair, error) {
	if err := checkPair(p); err != nil {
		return Pair{}, err
	}
	return Pair{
		Image: Scale(p.Image, t.size, t.size, draw.BiLinear),
		Mask:  Scale(p.Mask, t.size, t.size, draw.NearestNeighbor),
	}, nil
}

// Scale resizes every channel independently with the given interpolator.
func Scale(r *Raster, width, height int, interp draw.Interpolator) *Raster {
	if r.Width == width && r.Height == height {
		return r
	}
	var dst = New(width, height, r.Channels)
	var src = image.NewGray(image.Rect(0, 0, r.Width, r.Height))
	var out = image.NewGray(image.Rect(0, 0, width, height))
	for c := 0; c < r.Channels; c++ {
		for i := 0; i < r.Width*r.Height; i++ {
			src.Pix[i] = r.Pix[i*r.Channels+c]
		}
		interp.Scale(out, out.Bounds(), src, src.Bounds(), draw.Src, nil)
		for i := 0; i < width*height; i++ {
			dst.Pix[i*r.Channels+c] = out.Pix[i]
		}
	}
	return dst
}

func checkPair(p Pair) error {
	if p.Image == nil || p.Mask == nil {
		return errors.New("raster: image and mask are required")
	}
	if p.Image.Width != p.Mask.Width || p.Image.Height != p.Mask.Height {
		return errors.Errorf("raster: image %vx%v and mask %vx%v differ",
			p.Image.Width, p.Image.Height, p.Mask.Width, p.Mask.Height)
	}
	return nil
}
