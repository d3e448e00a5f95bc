package checkpoint

import (
	"bytes"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/ChizhovVadim/landcover/internal/model"
	"github.com/pkg/errors"
)

type blob struct {
	data []byte
}

func (b *blob) Save(w io.Writer) error {
	_, err := w.Write(b.data)
	return err
}

func (b *blob) Load(r io.Reader) error {
	var data, err = io.ReadAll(r)
	b.data = data
	return err
}

func TestSaveLoad(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "out"))
	if err != nil {
		t.Fatal(err)
	}
	path, err := store.Save("model-3.bin", 3, 0.625, &blob{data: []byte("weights")})
	if err != nil {
		t.Fatal(err)
	}
	if path != filepath.Join(store.Dir, "model-3.bin") {
		t.Errorf("path %v", path)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o644 {
		t.Errorf("mode %v", info.Mode())
	}
	var loaded blob
	h, err := Load(path, &loaded)
	if err != nil {
		t.Fatal(err)
	}
	if h.Epoch != 3 || h.Score != 0.625 || h.Created.IsZero() || h.Path != path {
		t.Errorf("header %+v", h)
	}
	if string(loaded.data) != "weights" {
		t.Errorf("payload %q", loaded.data)
	}
}

func TestSaveModel(t *testing.T) {
	var store = &Store{Dir: t.TempDir()}
	var net = model.New(model.Config{InChannels: 3, Hidden: 4, Classes: 9}, 1, rand.New(rand.NewSource(1)))
	path, err := store.Save("model-0.bin", 0, 0.1, net)
	if err != nil {
		t.Fatal(err)
	}
	var restored = model.New(model.Config{InChannels: 1, Hidden: 1, Classes: 2}, 1, rand.New(rand.NewSource(2)))
	if _, err := Load(path, restored); err != nil {
		t.Fatal(err)
	}
	if restored.Config() != net.Config() {
		t.Errorf("config %+v, want %+v", restored.Config(), net.Config())
	}
	var a, b bytes.Buffer
	if err := net.Save(&a); err != nil {
		t.Fatal(err)
	}
	if err := restored.Save(&b); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Error("restored parameters differ")
	}
}

func TestList(t *testing.T) {
	var store = &Store{Dir: t.TempDir()}
	for _, epoch := range []int{4, 0, 2} {
		if _, err := store.Save(checkpointName(epoch), epoch, float64(epoch)/10, &blob{}); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(store.Dir, "junk.bin"), []byte("xx"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(store.Dir, "run.yaml"), []byte("a: 1"), 0o644); err != nil {
		t.Fatal(err)
	}
	list, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 || list[0].Epoch != 0 || list[1].Epoch != 2 || list[2].Epoch != 4 {
		t.Errorf("list %+v", list)
	}
}

func checkpointName(epoch int) string {
	return fmt.Sprintf("model-%d%v", epoch, Ext)
}

func TestBadMagic(t *testing.T) {
	var path = filepath.Join(t.TempDir(), "model-0.bin")
	if err := os.WriteFile(path, make([]byte, 64), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := ReadHeader(path)
	if errors.Cause(err) != ErrBadMagic {
		t.Errorf("got %v", err)
	}
	_, err = Load(path, &blob{})
	if errors.Cause(err) != ErrBadMagic {
		t.Errorf("got %v", err)
	}
}
