// Package tracker records run parameters and per-epoch metrics.
package tracker

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	ModeOnline   = "online"
	ModeOffline  = "offline"
	ModeDisabled = "disabled"
)

type Config struct {
	Mode     string `yaml:"mode" env:"MODE"`
	Project  string `yaml:"project" env:"PROJECT"`
	Entity   string `yaml:"entity" env:"ENTITY"`
	RunName  string `yaml:"runName" env:"RUN_NAME"`

	// Endpoint is the base URL of a server speaking the JSON run protocol of
	// HTTPTracker (GET /api/v1/viewer, POST /api/v1/runs and the per-run
	// history and finish routes). Required in online mode.
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"`
}

func (c Config) Validate() error {
	switch c.Mode {
	case ModeOnline:
		if c.Endpoint == "" {
			return errors.New("tracker: online mode requires an endpoint")
		}
		return nil
	case ModeOffline, ModeDisabled:
		return nil
	}
	return errors.Errorf("tracker: unknown mode %q", c.Mode)
}

type RunInfo struct {
	ID      string
	Project string
	Entity  string
	Name    string
	Params  map[string]interface{}
	Started time.Time
}

type Tracker interface {
	Init(info RunInfo) error
	Log(step int, metrics map[string]float64) error
	// Finish closes the run. A non-nil runErr marks the run as failed.
	Finish(runErr error) error
}

// ExitCode is 0 for a clean run and 1 for a failed one.
func ExitCode(runErr error) int {
	if runErr != nil {
		return 1
	}
	return 0
}

// Open builds the tracker for cfg.Mode and starts a run. Offline and online
// runs keep a run.yaml in dir; online runs also report to cfg.Endpoint.
func Open(cfg Config, dir string, params map[string]interface{}) (Tracker, RunInfo, error) {
	if err := cfg.Validate(); err != nil {
		return nil, RunInfo{}, err
	}
	var info = RunInfo{
		ID:      uuid.NewString(),
		Project: cfg.Project,
		Entity:  cfg.Entity,
		Name:    cfg.RunName,
		Params:  params,
		Started: time.Now(),
	}
	var t Tracker
	switch cfg.Mode {
	case ModeDisabled:
		t = Nop{}
	case ModeOffline:
		t = NewFileTracker(dir)
	case ModeOnline:
		remote, err := NewHTTPTracker(cfg.Endpoint)
		if err != nil {
			return nil, RunInfo{}, err
		}
		if err := remote.Login(); err != nil {
			return nil, RunInfo{}, err
		}
		t = Multi{NewFileTracker(dir), remote}
	}
	if err := t.Init(info); err != nil {
		return nil, RunInfo{}, err
	}
	return t, info, nil
}

type Nop struct{}

func (Nop) Init(info RunInfo) error                        { return nil }
func (Nop) Log(step int, metrics map[string]float64) error { return nil }
func (Nop) Finish(runErr error) error                      { return nil }

// Multi forwards every call to all trackers and stops at the first error.
type Multi []Tracker

func (m Multi) Init(info RunInfo) error {
	for _, t := range m {
		if err := t.Init(info); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) Log(step int, metrics map[string]float64) error {
	for _, t := range m {
		if err := t.Log(step, metrics); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) Finish(runErr error) error {
	for _, t := range m {
		if err := t.Finish(runErr); err != nil {
			return err
		}
	}
	return nil
}
