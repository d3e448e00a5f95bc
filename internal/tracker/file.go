package tracker

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const RunFile = "run.yaml"

type runFile struct {
	ID       string                 `yaml:"id"`
	Project  string                 `yaml:"project"`
	Entity   string                 `yaml:"entity"`
	Name     string                 `yaml:"name"`
	Params   map[string]interface{} `yaml:"params"`
	Started  string                 `yaml:"started"`
	Finished string                 `yaml:"finished,omitempty"`
	ExitCode int                    `yaml:"exitCode"`
	Error    string                 `yaml:"error,omitempty"`
	History  []historyEntry         `yaml:"history"`
}

type historyEntry struct {
	Step    int                `yaml:"step"`
	Metrics map[string]float64 `yaml:"metrics"`
}

// FileTracker keeps the run summary in a YAML file, rewritten on every call.
type FileTracker struct {
	Path string

	mu  sync.Mutex
	run runFile
}

func NewFileTracker(dir string) *FileTracker {
	return &FileTracker{Path: filepath.Join(dir, RunFile)}
}

func (t *FileTracker) Init(info RunInfo) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.run = runFile{
		ID:      info.ID,
		Project: info.Project,
		Entity:  info.Entity,
		Name:    info.Name,
		Params:  info.Params,
		Started: info.Started.Format(time.RFC3339),
	}
	return t.write()
}

func (t *FileTracker) Log(step int, metrics map[string]float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var copied = make(map[string]float64, len(metrics))
	for k, v := range metrics {
		copied[k] = v
	}
	t.run.History = append(t.run.History, historyEntry{Step: step, Metrics: copied})
	return t.write()
}

func (t *FileTracker) Finish(runErr error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.run.Finished = time.Now().Format(time.RFC3339)
	t.run.ExitCode = ExitCode(runErr)
	if runErr != nil {
		t.run.Error = runErr.Error()
	}
	return t.write()
}

func (t *FileTracker) write() error {
	data, err := yaml.Marshal(&t.run)
	if err != nil {
		return errors.Wrap(err, "marshal run")
	}
	if err := os.WriteFile(t.Path, data, 0o644); err != nil {
		return errors.Wrap(err, "write run file")
	}
	return nil
}

// RunStatus is the outcome recorded by FileTracker.Finish.
type RunStatus struct {
	Finished bool
	ExitCode int
	Error    string
}

// ReadRunFile loads a summary written by FileTracker.
func ReadRunFile(path string) (RunInfo, []map[string]float64, error) {
	run, err := readRunFile(path)
	if err != nil {
		return RunInfo{}, nil, err
	}
	started, _ := time.Parse(time.RFC3339, run.Started)
	var history = make([]map[string]float64, len(run.History))
	for i, h := range run.History {
		history[i] = h.Metrics
	}
	return RunInfo{
		ID:      run.ID,
		Project: run.Project,
		Entity:  run.Entity,
		Name:    run.Name,
		Params:  run.Params,
		Started: started,
	}, history, nil
}

// ReadRunStatus reports whether the run in path finished and how.
func ReadRunStatus(path string) (RunStatus, error) {
	run, err := readRunFile(path)
	if err != nil {
		return RunStatus{}, err
	}
	return RunStatus{
		Finished: run.Finished != "",
		ExitCode: run.ExitCode,
		Error:    run.Error,
	}, nil
}

func readRunFile(path string) (runFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return runFile{}, err
	}
	var run runFile
	if err := yaml.Unmarshal(data, &run); err != nil {
		return runFile{}, errors.Wrap(err, path)
	}
	return run, nil
}
