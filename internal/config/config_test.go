package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	var c = Default()
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
	if c.ImageSize != 512 || c.Classes != 9 || c.LearningRate != 0.0001 ||
		c.BatchSize != 4 || c.Epochs != 50 || c.Workers != 10 || c.OutputDir != "outputs-dice" {
		t.Errorf("defaults %+v", c)
	}
	if c.TrainListPath() != filepath.Join(c.DataDir, "train.txt") || c.ValListPath() != filepath.Join(c.DataDir, "val.txt") {
		t.Errorf("lists %v %v", c.TrainListPath(), c.ValListPath())
	}
}

func TestPrecedence(t *testing.T) {
	var path = filepath.Join(t.TempDir(), "run.yaml")
	var data = "epochs: 3\nbatchSize: 8\ntracker:\n  mode: disabled\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LANDCOVER_BATCH_SIZE", "2")
	t.Setenv("LANDCOVER_TRACKER_RUN_NAME", "Focal")

	var c = Default()
	if err := c.LoadFile(path); err != nil {
		t.Fatal(err)
	}
	if err := c.ApplyEnv(); err != nil {
		t.Fatal(err)
	}
	if c.Epochs != 3 || c.BatchSize != 2 || c.Tracker.Mode != "disabled" || c.Tracker.RunName != "Focal" {
		t.Errorf("got %+v", c)
	}
	if c.Classes != 9 || c.Tracker.Project != "remote-sensing" {
		t.Errorf("defaults lost: %+v", c)
	}
}

func TestLoadFileUnknownKey(t *testing.T) {
	var path = filepath.Join(t.TempDir(), "run.yaml")
	if err := os.WriteFile(path, []byte("epoch: 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	var c = Default()
	if err := c.LoadFile(path); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"classes", func(c *Config) { c.Classes = 1 }},
		{"learning rate", func(c *Config) { c.LearningRate = 0 }},
		{"batch size", func(c *Config) { c.BatchSize = 0 }},
		{"image size", func(c *Config) { c.ImageSize = -1 }},
		{"tracker mode", func(c *Config) { c.Tracker.Mode = "sometimes" }},
		{"tracker endpoint", func(c *Config) { c.Tracker.Mode = "online" }},
		{"data dir", func(c *Config) { c.DataDir = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c = Default()
			tt.modify(&c)
			if err := c.Validate(); err == nil {
				t.Error("expected error")
			}
		})
	}
}
