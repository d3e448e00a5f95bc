package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
}

func writeList(t *testing.T, path string, names []string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(strings.Join(names, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDiscover(t *testing.T) {
	var root = t.TempDir()
	touch(t, filepath.Join(root, "aachen", "images", "a1.tif"))
	touch(t, filepath.Join(root, "aachen", "images", "a2.TIF"))
	touch(t, filepath.Join(root, "aachen", "labels", "a1.tif"))
	touch(t, filepath.Join(root, "aachen", "images", "notes.txt"))
	touch(t, filepath.Join(root, "b.tif"))

	files, err := Discover(root, ".tif")
	if err != nil {
		t.Fatal(err)
	}
	var want = []string{
		filepath.Join(root, "aachen", "images", "a1.tif"),
		filepath.Join(root, "aachen", "images", "a2.TIF"),
	}
	if fmt.Sprint(files) != fmt.Sprint(want) {
		t.Errorf("Discover = %v, want %v", files, want)
	}
}

func TestDiscoverSymlinks(t *testing.T) {
	var root = t.TempDir()
	var store = filepath.Join(root, "store", "tile.tif")
	touch(t, store)
	touch(t, filepath.Join(root, "r", "images", "a.tif"))
	if err := os.Symlink(store, filepath.Join(root, "r", "images", "b.tif")); err != nil {
		t.Skip("symlinks unsupported:", err)
	}
	if err := os.Symlink(filepath.Join(root, "gone.tif"), filepath.Join(root, "r", "images", "c.tif")); err != nil {
		t.Fatal(err)
	}
	files, err := Discover(root, ".tif")
	if err != nil {
		t.Fatal(err)
	}
	var want = []string{
		filepath.Join(root, "r", "images", "a.tif"),
		filepath.Join(root, "r", "images", "b.tif"),
	}
	if fmt.Sprint(files) != fmt.Sprint(want) {
		t.Errorf("Discover = %v, want %v", files, want)
	}
}

func TestDiscoverEmpty(t *testing.T) {
	files, err := Discover(t.TempDir(), ".tif")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 0 {
		t.Errorf("got %v files", len(files))
	}
	var m = Split(files, NewNameSet("a.tif"), NewNameSet("b.tif"))
	if len(m.All) != 0 || len(m.Train) != 0 || len(m.Val) != 0 {
		t.Errorf("expected empty manifest, got %+v", m)
	}
}

func TestDiscoverMissingDir(t *testing.T) {
	_, err := Discover(filepath.Join(t.TempDir(), "missing"), ".tif")
	if err == nil {
		t.Fatal("expected error")
	}
	if !os.IsNotExist(errors.Cause(err)) {
		t.Errorf("unexpected error %v", err)
	}
}

func TestLoadNameList(t *testing.T) {
	var path = filepath.Join(t.TempDir(), "train.txt")
	if err := os.WriteFile(path, []byte("a.tif\n\n  b.tif  \n# comment\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	names, err := LoadNameList(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || !names.Contains("a.tif") || !names.Contains("b.tif") {
		t.Errorf("got %v", names)
	}
	if _, err := LoadNameList(path + ".missing"); err == nil {
		t.Error("expected error for missing list")
	}
}

func TestSplit(t *testing.T) {
	var all = []string{"/d/x/images/a.tif", "/d/x/images/b.tif", "/d/y/images/c.tif", "/d/y/images/d.tif"}
	tests := []struct {
		name                      string
		train, val                NameSet
		wantTrain, wantVal, wantX int
	}{
		{"disjoint", NewNameSet("a.tif", "b.tif"), NewNameSet("c.tif"), 2, 1, 1},
		{"empty lists", NewNameSet(), NewNameSet(), 0, 0, 4},
		{"unknown names", NewNameSet("z.tif"), NewNameSet("q.tif"), 0, 0, 4},
		{"overlap", NewNameSet("a.tif"), NewNameSet("a.tif", "d.tif"), 1, 2, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m = Split(all, tt.train, tt.val)
			if len(m.Train) != tt.wantTrain || len(m.Val) != tt.wantVal || len(m.Excluded) != tt.wantX {
				t.Errorf("train %v val %v excluded %v", len(m.Train), len(m.Val), len(m.Excluded))
			}
			if tt.name != "overlap" && len(m.Train)+len(m.Val) > len(m.All) {
				t.Errorf("split larger than manifest")
			}
		})
	}
}

func TestBuild(t *testing.T) {
	var root = t.TempDir()
	var trainNames, valNames []string
	for i := 0; i < 10; i++ {
		var name = fmt.Sprintf("tile_%d.tif", i)
		touch(t, filepath.Join(root, "region", "images", name))
		touch(t, filepath.Join(root, "region", "labels", name))
		if i < 7 {
			trainNames = append(trainNames, name)
		} else {
			valNames = append(valNames, name)
		}
	}
	writeList(t, filepath.Join(root, "train.txt"), trainNames)
	writeList(t, filepath.Join(root, "val.txt"), valNames)

	m, err := Build(root, ".tif", filepath.Join(root, "train.txt"), filepath.Join(root, "val.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if len(m.All) != 10 || len(m.Train) != 7 || len(m.Val) != 3 || len(m.Excluded) != 0 {
		t.Fatalf("got %v/%v/%v", len(m.All), len(m.Train), len(m.Val))
	}
	var seen = make(map[string]bool)
	for _, p := range m.Train {
		seen[p] = true
	}
	for _, p := range m.Val {
		if seen[p] {
			t.Errorf("%v in both train and validation", p)
		}
	}

	if _, err := Build(root, ".tif", filepath.Join(root, "missing.txt"), filepath.Join(root, "val.txt")); err == nil {
		t.Error("expected error for missing train list")
	}
}
