package tracker

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pkg/errors"
)

type fakeServer struct {
	mu       sync.Mutex
	calls    []string
	history  []map[string]float64
	finished bool
	exitCode int
	errMsg   string
}

func (s *fakeServer) handler(t *testing.T) http.Handler {
	var mux = http.NewServeMux()
	var auth = func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer secret" {
				http.Error(w, "bad key", http.StatusUnauthorized)
				return
			}
			s.mu.Lock()
			s.calls = append(s.calls, r.Method+" "+r.URL.Path)
			s.mu.Unlock()
			next(w, r)
		}
	}
	mux.HandleFunc("/api/v1/viewer", auth(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"entity":"pratikstar"}`))
	}))
	mux.HandleFunc("/api/v1/runs", auth(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req["project"] != "remote-sensing" {
			http.Error(w, "bad run", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	mux.HandleFunc("/api/v1/runs/", auth(func(w http.ResponseWriter, r *http.Request) {
		switch filepath.Base(r.URL.Path) {
		case "history":
			var req struct {
				Step    int                `json:"step"`
				Metrics map[string]float64 `json:"metrics"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			s.mu.Lock()
			s.history = append(s.history, req.Metrics)
			s.mu.Unlock()
		case "finish":
			var req struct {
				ExitCode int    `json:"exitCode"`
				Error    string `json:"error"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			s.mu.Lock()
			s.finished = true
			s.exitCode = req.ExitCode
			s.errMsg = req.Error
			s.mu.Unlock()
		default:
			http.NotFound(w, r)
		}
	}))
	return mux
}

func testConfig(mode, endpoint string) Config {
	return Config{
		Mode:     mode,
		Project:  "remote-sensing",
		Entity:   "pratikstar",
		RunName:  "DiceLoss",
		Endpoint: endpoint,
	}
}

func TestOnline(t *testing.T) {
	var fake = &fakeServer{}
	var srv = httptest.NewServer(fake.handler(t))
	defer srv.Close()
	t.Setenv("WANDB_API_KEY", "secret")

	var dir = t.TempDir()
	tr, info, err := Open(testConfig(ModeOnline, srv.URL+"/"), dir, map[string]interface{}{"epochs": 2})
	if err != nil {
		t.Fatal(err)
	}
	if info.ID == "" || info.Name != "DiceLoss" {
		t.Errorf("info %+v", info)
	}
	for step := 0; step < 2; step++ {
		if err := tr.Log(step, map[string]float64{"Score": 0.5}); err != nil {
			t.Fatal(err)
		}
	}
	if err := tr.Finish(nil); err != nil {
		t.Fatal(err)
	}
	if len(fake.history) != 2 || !fake.finished || fake.exitCode != 0 {
		t.Errorf("history %v finished %v calls %v", fake.history, fake.finished, fake.calls)
	}
	if fake.calls[0] != "GET /api/v1/viewer" {
		t.Errorf("first call %v", fake.calls[0])
	}
	if _, err := os.Stat(filepath.Join(dir, RunFile)); err != nil {
		t.Errorf("run file: %v", err)
	}
}

func TestOnlineFailedRun(t *testing.T) {
	var fake = &fakeServer{}
	var srv = httptest.NewServer(fake.handler(t))
	defer srv.Close()
	t.Setenv("WANDB_API_KEY", "secret")

	var dir = t.TempDir()
	tr, _, err := Open(testConfig(ModeOnline, srv.URL), dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.Finish(errors.New("load validation list: no such file")); err != nil {
		t.Fatal(err)
	}
	if !fake.finished || fake.exitCode != 1 || fake.errMsg != "load validation list: no such file" {
		t.Errorf("finished %v exit code %v error %q", fake.finished, fake.exitCode, fake.errMsg)
	}
	st, err := ReadRunStatus(filepath.Join(dir, RunFile))
	if err != nil {
		t.Fatal(err)
	}
	if !st.Finished || st.ExitCode != 1 || st.Error != fake.errMsg {
		t.Errorf("run status %+v", st)
	}
}

func TestOnlineRejectedKey(t *testing.T) {
	var srv = httptest.NewServer((&fakeServer{}).handler(t))
	defer srv.Close()
	t.Setenv("WANDB_API_KEY", "wrong")
	if _, _, err := Open(testConfig(ModeOnline, srv.URL), t.TempDir(), nil); err == nil {
		t.Fatal("expected login error")
	}
}

func TestOnlineMissingKey(t *testing.T) {
	t.Setenv("WANDB_API_KEY", "")
	if _, _, err := Open(testConfig(ModeOnline, "http://127.0.0.1:1"), t.TempDir(), nil); err == nil {
		t.Fatal("expected error without API key")
	}
}

func TestOffline(t *testing.T) {
	var dir = t.TempDir()
	tr, info, err := Open(testConfig(ModeOffline, ""), dir, map[string]interface{}{"batchSize": 4})
	if err != nil {
		t.Fatal(err)
	}
	var metrics = map[string]float64{"DiceLoss": 0.3, "Score": 0.4}
	if err := tr.Log(0, metrics); err != nil {
		t.Fatal(err)
	}
	metrics["Score"] = 0.9
	if err := tr.Finish(nil); err != nil {
		t.Fatal(err)
	}
	got, history, err := ReadRunFile(filepath.Join(dir, RunFile))
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != info.ID || got.Project != "remote-sensing" || got.Started.IsZero() {
		t.Errorf("run %+v", got)
	}
	if len(history) != 1 || history[0]["Score"] != 0.4 {
		t.Errorf("history %v", history)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"offline", testConfig(ModeOffline, ""), false},
		{"disabled", testConfig(ModeDisabled, ""), false},
		{"online", testConfig(ModeOnline, "http://127.0.0.1:8080"), false},
		{"online without endpoint", testConfig(ModeOnline, ""), true},
		{"unknown mode", testConfig("cloud", ""), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v", err)
			}
		})
	}
}

func TestModes(t *testing.T) {
	tr, _, err := Open(testConfig(ModeDisabled, ""), t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := tr.(Nop); !ok {
		t.Errorf("disabled mode gives %T", tr)
	}
	if _, _, err := Open(testConfig("cloud", ""), t.TempDir(), nil); err == nil {
		t.Error("expected error for unknown mode")
	}
}
