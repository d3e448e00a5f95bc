// Package checkpoint stores model snapshots together with the epoch and
// validation score they were taken at.
package checkpoint

import (
	"bufio"
	"encoding/binary"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"
)

var ErrBadMagic = errors.New("checkpoint: not a checkpoint file")

const (
	Ext        = ".bin"
	headerSize = 24
)

var magic = [4]byte{67, 75, 1, 0}

type Saver interface {
	Save(w io.Writer) error
}

type Loader interface {
	Load(r io.Reader) error
}

type Header struct {
	Path    string
	Epoch   int
	Score   float64
	Created time.Time
}

type Store struct {
	Dir string
}

// NewStore creates dir if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create checkpoint dir")
	}
	return &Store{Dir: dir}, nil
}

// File layout, little-endian:
// - magic 67 75 1 0 ("CK", version 1.0)
// - epoch, uint32
// - score, float64
// - created, unix nanoseconds as int64
// - model payload written by the Saver
//
// The file is written to a temporary name and renamed, so readers never see
// a partial checkpoint.
func (s *Store) Save(name string, epoch int, score float64, model Saver) (string, error) {
	var path = filepath.Join(s.Dir, name)
	tmp, err := os.CreateTemp(s.Dir, name+".*.tmp")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	var w = bufio.NewWriter(tmp)
	var buf = make([]byte, headerSize)
	copy(buf, magic[:])
	binary.LittleEndian.PutUint32(buf[4:], uint32(epoch))
	binary.LittleEndian.PutUint64(buf[8:], math.Float64bits(score))
	binary.LittleEndian.PutUint64(buf[16:], uint64(time.Now().UnixNano()))
	if _, err := w.Write(buf); err != nil {
		tmp.Close()
		return "", err
	}
	if err := model.Save(w); err != nil {
		tmp.Close()
		return "", errors.Wrap(err, "write model")
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", err
	}
	log.Println("checkpoint saved",
		"path", path,
		"epoch", epoch,
		"score", score)
	return path, nil
}

// Load reads the header and passes the payload to model.
func Load(path string, model Loader) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, err
	}
	defer f.Close()
	var r = bufio.NewReader(f)
	h, err := readHeader(r)
	if err != nil {
		return Header{}, errors.Wrap(err, path)
	}
	h.Path = path
	if err := model.Load(r); err != nil {
		return Header{}, errors.Wrapf(err, "load model from %v", path)
	}
	return h, nil
}

func ReadHeader(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, err
	}
	defer f.Close()
	h, err := readHeader(f)
	if err != nil {
		return Header{}, errors.Wrap(err, path)
	}
	h.Path = path
	return h, nil
}

func readHeader(r io.Reader) (Header, error) {
	var buf = make([]byte, headerSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return Header{}, ErrBadMagic
		}
		return Header{}, err
	}
	if [4]byte(buf[:4]) != magic {
		return Header{}, ErrBadMagic
	}
	return Header{
		Epoch:   int(binary.LittleEndian.Uint32(buf[4:])),
		Score:   math.Float64frombits(binary.LittleEndian.Uint64(buf[8:])),
		Created: time.Unix(0, int64(binary.LittleEndian.Uint64(buf[16:]))),
	}, nil
}

// List returns the checkpoints in the store ordered by epoch.
// Files that are not checkpoints are skipped.
func (s *Store) List() ([]Header, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, err
	}
	var result []Header
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != Ext {
			continue
		}
		h, err := ReadHeader(filepath.Join(s.Dir, e.Name()))
		if err != nil {
			if errors.Cause(err) == ErrBadMagic {
				log.Println("checkpoint skipped",
					"name", e.Name())
				continue
			}
			return nil, err
		}
		result = append(result, h)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Epoch < result[j].Epoch
	})
	return result, nil
}
