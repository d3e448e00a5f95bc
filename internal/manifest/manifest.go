// Package manifest discovers image tiles and splits them into training and
// validation sets by name lists.
package manifest

import (
	"bufio"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

const imagesDir = "images"

type Manifest struct {
	All      []string
	Train    []string
	Val      []string
	Excluded []string
}

// NameSet holds base file names read from a list file.
type NameSet map[string]struct{}

func NewNameSet(names ...string) NameSet {
	var result = make(NameSet, len(names))
	for _, name := range names {
		result[name] = struct{}{}
	}
	return result
}

func (s NameSet) Contains(name string) bool {
	_, found := s[name]
	return found
}

// Discover returns every regular file under root with extension ext
// (case-insensitive) that lies inside a directory named images. Symlinks
// to regular files are included.
func Discover(root, ext string) ([]string, error) {
	var result []string
	var err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !isRegular(path, d) {
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ext) {
			return nil
		}
		if !inImagesDir(path) {
			return nil
		}
		result = append(result, path)
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "discover %v", root)
	}
	sort.Strings(result)
	return result, nil
}

func isRegular(path string, d fs.DirEntry) bool {
	if d.Type()&fs.ModeSymlink != 0 {
		info, err := os.Stat(path)
		return err == nil && info.Mode().IsRegular()
	}
	return d.Type().IsRegular()
}

func inImagesDir(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(filepath.Dir(path)), "/") {
		if part == imagesDir {
			return true
		}
	}
	return false
}

// LoadNameList reads one file name per line. Blank lines and lines starting
// with # are skipped.
func LoadNameList(path string) (NameSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var result = make(NameSet)
	var scanner = bufio.NewScanner(f)
	for scanner.Scan() {
		var line = strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		result[line] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "read %v", path)
	}
	return result, nil
}

// Split assigns files to Train and Val by base name. A file listed in both
// goes to both. Files in neither list end up in Excluded.
func Split(all []string, train, val NameSet) Manifest {
	var m = Manifest{All: all}
	for _, path := range all {
		var name = filepath.Base(path)
		var inTrain, inVal = train.Contains(name), val.Contains(name)
		if inTrain {
			m.Train = append(m.Train, path)
		}
		if inVal {
			m.Val = append(m.Val, path)
		}
		if !inTrain && !inVal {
			m.Excluded = append(m.Excluded, path)
		}
	}
	return m
}

// Build discovers files under root and splits them with the given list files.
func Build(root, ext, trainList, valList string) (Manifest, error) {
	all, err := Discover(root, ext)
	if err != nil {
		return Manifest{}, err
	}
	train, err := LoadNameList(trainList)
	if err != nil {
		return Manifest{}, errors.Wrap(err, "load train list")
	}
	val, err := LoadNameList(valList)
	if err != nil {
		return Manifest{}, errors.Wrap(err, "load validation list")
	}
	var m = Split(all, train, val)
	if len(m.Excluded) != 0 {
		log.Println("manifest",
			"excluded", len(m.Excluded))
	}
	return m, nil
}
