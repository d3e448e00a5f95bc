// Package raster loads image and label tiles and applies paired augmentations.
package raster

import (
	"bufio"
	"encoding/binary"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/image/tiff"
)

// Raster is an interleaved (HWC) 8-bit raster.
type Raster struct {
	Width    int
	Height   int
	Channels int
	Pix      []uint8
}

func New(width, height, channels int) *Raster {
	return &Raster{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]uint8, width*height*channels),
	}
}

func (r *Raster) At(x, y, c int) uint8 {
	return r.Pix[(y*r.Width+x)*r.Channels+c]
}

// ReadFile decodes a TIFF file.
func ReadFile(path string) (*Raster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r, err := Decode(bufio.NewReader(f))
	if err != nil {
		return nil, errors.Wrapf(err, "decode %v", path)
	}
	return r, nil
}

// Decode decodes a TIFF stream. Gray images give one channel, everything else
// gives RGB with alpha dropped. 16-bit gray keeps values below 256 as is, which
// is how class labels are stored.
func Decode(r io.Reader) (*Raster, error) {
	img, err := tiff.Decode(r)
	if err != nil {
		return nil, err
	}
	return FromImage(img), nil
}

func FromImage(img image.Image) *Raster {
	var b = img.Bounds()
	var w, h = b.Dx(), b.Dy()
	switch src := img.(type) {
	case *image.Gray:
		var dst = New(w, h, 1)
		for y := 0; y < h; y++ {
			copy(dst.Pix[y*w:(y+1)*w], src.Pix[y*src.Stride:y*src.Stride+w])
		}
		return dst
	case *image.Gray16:
		var dst = New(w, h, 1)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				var v = src.Gray16At(b.Min.X+x, b.Min.Y+y).Y
				if v > 255 {
					v = 255
				}
				dst.Pix[y*w+x] = uint8(v)
			}
		}
		return dst
	case *image.RGBA:
		return fromInterleaved4(src.Pix, src.Stride, w, h)
	case *image.NRGBA:
		return fromInterleaved4(src.Pix, src.Stride, w, h)
	}
	var dst = New(w, h, 3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var r, g, bl, _ = img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			var i = (y*w + x) * 3
			dst.Pix[i] = uint8(r >> 8)
			dst.Pix[i+1] = uint8(g >> 8)
			dst.Pix[i+2] = uint8(bl >> 8)
		}
	}
	return dst
}

func fromInterleaved4(pix []uint8, stride, w, h int) *Raster {
	var dst = New(w, h, 3)
	for y := 0; y < h; y++ {
		var row = pix[y*stride:]
		for x := 0; x < w; x++ {
			copy(dst.Pix[(y*w+x)*3:(y*w+x)*3+3], row[x*4:x*4+3])
		}
	}
	return dst
}

// LabelPath maps .../images/<name> to .../labels/<name>.
// The last "images" directory of the path is replaced.
func LabelPath(imagePath string) string {
	var dir, name = filepath.Split(imagePath)
	var parts = strings.Split(filepath.ToSlash(filepath.Clean(dir)), "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] == "images" {
			parts[i] = "labels"
			break
		}
	}
	return filepath.Join(filepath.FromSlash(strings.Join(parts, "/")), name)
}

const headerSize = 12

// MarshalBinary encodes the raster as a 12-byte header followed by pixels.
func (r *Raster) MarshalBinary() ([]byte, error) {
	var buf = make([]byte, headerSize+len(r.Pix))
	binary.LittleEndian.PutUint32(buf[0:], uint32(r.Width))
	binary.LittleEndian.PutUint32(buf[4:], uint32(r.Height))
	binary.LittleEndian.PutUint32(buf[8:], uint32(r.Channels))
	copy(buf[headerSize:], r.Pix)
	return buf, nil
}

func (r *Raster) UnmarshalBinary(data []byte) error {
	if len(data) < headerSize {
		return errors.New("raster: short buffer")
	}
	var w = int(binary.LittleEndian.Uint32(data[0:]))
	var h = int(binary.LittleEndian.Uint32(data[4:]))
	var c = int(binary.LittleEndian.Uint32(data[8:]))
	if len(data)-headerSize != w*h*c {
		return errors.Errorf("raster: %vx%vx%v does not match %v bytes", w, h, c, len(data)-headerSize)
	}
	r.Width, r.Height, r.Channels = w, h, c
	r.Pix = append(r.Pix[:0], data[headerSize:]...)
	return nil
}
