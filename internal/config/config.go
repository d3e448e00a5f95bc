// Package config holds the training run parameters.
package config

import (
	"os"
	"path/filepath"

	"github.com/ChizhovVadim/landcover/internal/tracker"
	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const EnvPrefix = "LANDCOVER_"

type Config struct {
	DataDir   string `yaml:"dataDir" env:"DATA_DIR"`
	TrainList string `yaml:"trainList" env:"TRAIN_LIST"`
	ValList   string `yaml:"valList" env:"VAL_LIST"`
	ImageExt  string `yaml:"imageExt" env:"IMAGE_EXT"`

	ImageSize  int `yaml:"imageSize" env:"IMAGE_SIZE"`
	Classes    int `yaml:"classes" env:"CLASSES"`
	InChannels int `yaml:"inChannels" env:"IN_CHANNELS"`
	Hidden     int `yaml:"hidden" env:"HIDDEN"`

	LearningRate float64 `yaml:"learningRate" env:"LEARNING_RATE"`
	BatchSize    int     `yaml:"batchSize" env:"BATCH_SIZE"`
	Epochs       int     `yaml:"epochs" env:"EPOCHS"`
	Workers      int     `yaml:"workers" env:"WORKERS"`
	Threads      int     `yaml:"threads" env:"THREADS"`
	Seed         int64   `yaml:"seed" env:"SEED"`

	Device     string `yaml:"device" env:"DEVICE"`
	OutputDir  string `yaml:"outputDir" env:"OUTPUT_DIR"`
	CacheMB    int    `yaml:"cacheMB" env:"CACHE_MB"`
	StatusAddr string `yaml:"statusAddr" env:"STATUS_ADDR"`

	Tracker tracker.Config `yaml:"tracker" envPrefix:"TRACKER_"`
}

func Default() Config {
	return Config{
		DataDir:      "/root/remote/OpenEarthMap_Mini",
		ImageExt:     ".tif",
		ImageSize:    512,
		Classes:      9,
		InChannels:   3,
		Hidden:       16,
		LearningRate: 0.0001,
		BatchSize:    4,
		Epochs:       50,
		Workers:      10,
		Device:       "auto",
		OutputDir:    "outputs-dice",
		CacheMB:      512,
		Tracker: tracker.Config{
			Mode:    tracker.ModeOffline,
			Project: "remote-sensing",
			Entity:  "pratikstar",
			RunName: "DiceLoss",
		},
	}
}

// LoadFile overlays the YAML file at path on c. Keys missing from the file
// keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.UnmarshalStrict(data, c); err != nil {
		return errors.Wrapf(err, "parse %v", path)
	}
	return nil
}

// ApplyEnv overlays LANDCOVER_* environment variables on c.
func (c *Config) ApplyEnv() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return errors.Wrap(err, "parse environment")
	}
	return nil
}

func (c *Config) TrainListPath() string {
	if c.TrainList != "" {
		return c.TrainList
	}
	return filepath.Join(c.DataDir, "train.txt")
}

func (c *Config) ValListPath() string {
	if c.ValList != "" {
		return c.ValList
	}
	return filepath.Join(c.DataDir, "val.txt")
}

func (c *Config) Validate() error {
	switch {
	case c.DataDir == "":
		return errors.New("config: data dir is required")
	case c.OutputDir == "":
		return errors.New("config: output dir is required")
	case c.ImageSize <= 0:
		return errors.Errorf("config: image size %v", c.ImageSize)
	case c.Classes < 2:
		return errors.Errorf("config: classes %v, at least 2 expected", c.Classes)
	case c.Classes > 256:
		return errors.Errorf("config: classes %v do not fit a byte mask", c.Classes)
	case c.InChannels <= 0 || c.Hidden <= 0:
		return errors.Errorf("config: channels %v hidden %v", c.InChannels, c.Hidden)
	case c.LearningRate <= 0:
		return errors.Errorf("config: learning rate %v", c.LearningRate)
	case c.BatchSize <= 0:
		return errors.Errorf("config: batch size %v", c.BatchSize)
	case c.Epochs < 0:
		return errors.Errorf("config: epochs %v", c.Epochs)
	case c.Workers < 0 || c.Threads < 0 || c.CacheMB < 0:
		return errors.Errorf("config: workers %v threads %v cache %v", c.Workers, c.Threads, c.CacheMB)
	}
	return c.Tracker.Validate()
}

// Params flattens the hyperparameters for the run tracker.
func (c *Config) Params() map[string]interface{} {
	return map[string]interface{}{
		"dataDir":      c.DataDir,
		"imageSize":    c.ImageSize,
		"classes":      c.Classes,
		"inChannels":   c.InChannels,
		"hidden":       c.Hidden,
		"learningRate": c.LearningRate,
		"batchSize":    c.BatchSize,
		"epochs":       c.Epochs,
		"workers":      c.Workers,
		"seed":         c.Seed,
		"device":       c.Device,
	}
}
