// Package dataset turns image/label tile pairs into model-ready batches.
package dataset

import (
	"math/rand"

	"github.com/ChizhovVadim/landcover/internal/raster"
	"github.com/pkg/errors"
)

// Sample is one augmented tile. Image is CHW scaled to [0,1],
// Mask holds one class index per pixel.
type Sample struct {
	Image []float32
	Mask  []uint8
	Size  int
}

type Dataset struct {
	Files     []string
	Classes   int
	Channels  int
	Transform raster.Transform
	Cache     *raster.Cache
}

func New(files []string, classes, channels int, transform raster.Transform, cache *raster.Cache) *Dataset {
	return &Dataset{
		Files:     files,
		Classes:   classes,
		Channels:  channels,
		Transform: transform,
		Cache:     cache,
	}
}

func (d *Dataset) Len() int {
	return len(d.Files)
}

// Get loads the i-th image with its label and applies the transform.
func (d *Dataset) Get(i int, rnd *rand.Rand) (Sample, error) {
	var path = d.Files[i]
	img, err := d.Cache.Load(path, raster.ReadFile)
	if err != nil {
		return Sample{}, errors.Wrap(err, "load image")
	}
	mask, err := d.Cache.Load(raster.LabelPath(path), raster.ReadFile)
	if err != nil {
		return Sample{}, errors.Wrap(err, "load label")
	}
	var pair = raster.Pair{Image: img, Mask: mask}
	if d.Transform != nil {
		pair, err = d.Transform.Apply(pair, rnd)
		if err != nil {
			return Sample{}, errors.Wrapf(err, "transform %v", path)
		}
	}
	if pair.Image.Width != pair.Image.Height {
		return Sample{}, errors.Errorf("%v: tile %vx%v is not square", path, pair.Image.Width, pair.Image.Height)
	}
	image, err := d.toTensor(pair.Image)
	if err != nil {
		return Sample{}, errors.Wrap(err, path)
	}
	return Sample{
		Image: image,
		Mask:  d.toMask(pair.Mask),
		Size:  pair.Image.Width,
	}, nil
}

func (d *Dataset) toTensor(r *raster.Raster) ([]float32, error) {
	if r.Channels != d.Channels && r.Channels != 1 {
		return nil, errors.Errorf("image has %v channels, expected %v", r.Channels, d.Channels)
	}
	var plane = r.Width * r.Height
	var result = make([]float32, d.Channels*plane)
	for c := 0; c < d.Channels; c++ {
		var src = c
		if r.Channels == 1 {
			src = 0
		}
		for i := 0; i < plane; i++ {
			result[c*plane+i] = float32(r.Pix[i*r.Channels+src]) / 255
		}
	}
	return result, nil
}

// toMask takes the first band; values outside the class range map to the last class.
func (d *Dataset) toMask(r *raster.Raster) []uint8 {
	var plane = r.Width * r.Height
	var last = uint8(d.Classes - 1)
	var result = make([]uint8, plane)
	for i := range result {
		var v = r.Pix[i*r.Channels]
		if v > last {
			v = last
		}
		result[i] = v
	}
	return result
}

// Batch is a group of samples with equal size.
type Batch struct {
	Index   int
	Samples []Sample
}

func (b Batch) Size() int {
	if len(b.Samples) == 0 {
		return 0
	}
	return b.Samples[0].Size
}

func (b Batch) Images() [][]float32 {
	var result = make([][]float32, len(b.Samples))
	for i := range b.Samples {
		result[i] = b.Samples[i].Image
	}
	return result
}

func (b Batch) Masks() [][]uint8 {
	var result = make([][]uint8, len(b.Samples))
	for i := range b.Samples {
		result[i] = b.Samples[i].Mask
	}
	return result
}
