package tracker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

type Credentials struct {
	APIKey string `env:"WANDB_API_KEY"`
}

// HTTPTracker reports a run to a tracking server as JSON over HTTP.
// The key is sent as a bearer token.
type HTTPTracker struct {
	Endpoint string
	APIKey   string
	Client   *http.Client

	runID   string
	started time.Time
}

// NewHTTPTracker reads the API key from the environment.
func NewHTTPTracker(endpoint string) (*HTTPTracker, error) {
	var creds Credentials
	if err := env.Parse(&creds); err != nil {
		return nil, errors.Wrap(err, "parse tracker credentials")
	}
	if creds.APIKey == "" {
		return nil, errors.New("tracker: WANDB_API_KEY is not set")
	}
	return &HTTPTracker{
		Endpoint: strings.TrimRight(endpoint, "/"),
		APIKey:   creds.APIKey,
		Client:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Login checks that the endpoint accepts the API key.
func (t *HTTPTracker) Login() error {
	var viewer struct {
		Entity string `json:"entity"`
	}
	if err := t.call(http.MethodGet, "/api/v1/viewer", nil, &viewer); err != nil {
		return errors.Wrap(err, "tracker login")
	}
	log.Println("tracker login",
		"endpoint", t.Endpoint,
		"entity", viewer.Entity)
	return nil
}

func (t *HTTPTracker) Init(info RunInfo) error {
	var req = struct {
		ID      string                 `json:"id"`
		Project string                 `json:"project"`
		Entity  string                 `json:"entity"`
		Name    string                 `json:"name"`
		Config  map[string]interface{} `json:"config"`
		Started time.Time              `json:"started"`
	}{info.ID, info.Project, info.Entity, info.Name, info.Params, info.Started}
	if err := t.call(http.MethodPost, "/api/v1/runs", req, nil); err != nil {
		return errors.Wrap(err, "tracker init")
	}
	t.runID = info.ID
	t.started = info.Started
	return nil
}

func (t *HTTPTracker) Log(step int, metrics map[string]float64) error {
	if t.runID == "" {
		return errors.New("tracker: run is not initialized")
	}
	var req = struct {
		Step    int                `json:"step"`
		Metrics map[string]float64 `json:"metrics"`
	}{step, metrics}
	return t.call(http.MethodPost, "/api/v1/runs/"+t.runID+"/history", req, nil)
}

func (t *HTTPTracker) Finish(runErr error) error {
	if t.runID == "" {
		return nil
	}
	var req = struct {
		ExitCode int     `json:"exitCode"`
		Runtime  float64 `json:"runtime"`
		Error    string  `json:"error,omitempty"`
	}{ExitCode: ExitCode(runErr), Runtime: time.Since(t.started).Seconds()}
	if runErr != nil {
		req.Error = runErr.Error()
	}
	return t.call(http.MethodPost, "/api/v1/runs/"+t.runID+"/finish", req, nil)
}

func (t *HTTPTracker) call(method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, t.Endpoint+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+t.APIKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := t.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		var msg, _ = io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%v %v: %v %s", method, path, resp.Status, bytes.TrimSpace(msg))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrapf(err, "decode %v", path)
		}
	}
	return nil
}
