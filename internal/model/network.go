package model

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

var ErrBadFormat = errors.New("model: unsupported network format")

// Binary specification for the network payload:
// - All the data is stored in little-endian layout
// - All the matrices are written in column-major
// - The magic number/version consists of 4 bytes:
//   - 76 (which is the ASCII code for L), uint8
//   - 67 (which is the ASCII code for C), uint8
//   - 1 The major part of the current version number, uint8
//   - 0 The minor part of the current version number, uint8
//
// - 4 bytes (uint32) for input channels
// - 4 bytes (uint32) for hidden channels
// - 4 bytes (uint32) for classes
// - Weights then biases of the 3x3 layer, weights then biases of the 1x1 layer,
//   every value as float32
func (n *Net) Save(w io.Writer) error {
	var bw = bufio.NewWriter(w)

	var buf = make([]byte, 16)
	copy(buf, []byte{76, 67, 1, 0})
	binary.LittleEndian.PutUint32(buf[4:], uint32(n.cfg.InChannels))
	binary.LittleEndian.PutUint32(buf[8:], uint32(n.cfg.Hidden))
	binary.LittleEndian.PutUint32(buf[12:], uint32(n.cfg.Classes))
	if _, err := bw.Write(buf); err != nil {
		return err
	}

	for _, m := range []*[]float64{&n.weights1.Data, &n.biases1.Data, &n.weights2.Data, &n.biases2.Data} {
		if err := writeSlice(bw, *m); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Load replaces the network topology and parameters with the ones read from r.
// Optimizer state is reset.
func (n *Net) Load(r io.Reader) error {
	var buf = make([]byte, 16)
	if _, err := io.ReadFull(r, buf); err != nil {
		return errors.Wrap(err, "read network header")
	}
	if buf[0] != 76 || buf[1] != 67 {
		return errors.Wrap(ErrBadFormat, "magic word does not match")
	}
	if buf[2] != 1 || buf[3] != 0 {
		return errors.Wrapf(ErrBadFormat, "version %v.%v", buf[2], buf[3])
	}
	var cfg = Config{
		InChannels: int(binary.LittleEndian.Uint32(buf[4:])),
		Hidden:     int(binary.LittleEndian.Uint32(buf[8:])),
		Classes:    int(binary.LittleEndian.Uint32(buf[12:])),
	}
	if cfg.InChannels <= 0 || cfg.Hidden <= 0 || cfg.Classes <= 0 {
		return errors.Wrapf(ErrBadFormat, "topology %+v", cfg)
	}

	var threads = len(n.threadData)
	n.init(cfg, threads)
	for _, m := range []*[]float64{&n.weights1.Data, &n.biases1.Data, &n.weights2.Data, &n.biases2.Data} {
		if err := readSlice(r, *m); err != nil {
			return errors.Wrap(err, "read network parameters")
		}
	}
	return nil
}

func writeSlice(w io.Writer, data []float64) error {
	buf := make([]byte, 4)
	for j := range data {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(data[j])))
		_, err := w.Write(buf)
		if err != nil {
			return err
		}
	}
	return nil
}

func readSlice(r io.Reader, data []float64) error {
	buf := make([]byte, 4)
	for j := range data {
		_, err := io.ReadFull(r, buf)
		if err != nil {
			return err
		}
		data[j] = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf)))
	}
	return nil
}
