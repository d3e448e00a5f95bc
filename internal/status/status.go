// Package status serves a read-only view of a training run over HTTP.
package status

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

type Checkpoint struct {
	Path  string  `json:"path"`
	Epoch int     `json:"epoch"`
	Score float64 `json:"score"`
}

type Snapshot struct {
	State       string             `json:"state"`
	Epoch       int                `json:"epoch"`
	Epochs      int                `json:"epochs"`
	BestScore   float64            `json:"bestScore"`
	BestEpoch   int                `json:"bestEpoch"`
	TrainLogs   map[string]float64 `json:"trainLogs,omitempty"`
	ValidLogs   map[string]float64 `json:"validLogs,omitempty"`
	Checkpoints []Checkpoint       `json:"checkpoints"`
	Started     time.Time          `json:"started"`
}

// Board holds the latest snapshot. Writers replace it, handlers read copies.
type Board struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

func (b *Board) Update(fn func(s *Snapshot)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(&b.snapshot)
}

func (b *Board) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var s = b.snapshot
	s.TrainLogs = copyLogs(s.TrainLogs)
	s.ValidLogs = copyLogs(s.ValidLogs)
	s.Checkpoints = append([]Checkpoint(nil), s.Checkpoints...)
	return s
}

func copyLogs(logs map[string]float64) map[string]float64 {
	if logs == nil {
		return nil
	}
	var result = make(map[string]float64, len(logs))
	for k, v := range logs {
		result[k] = v
	}
	return result
}

func NewRouter(b *Board) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	var r = gin.New()
	r.Use(gin.Recovery())
	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, b.Snapshot())
	})
	r.GET("/checkpoints", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"checkpoints": b.Snapshot().Checkpoints,
		})
	})
	return r
}

// Serve runs the status server until ctx is done.
func Serve(ctx context.Context, addr string, b *Board) error {
	var srv = &http.Server{
		Addr:    addr,
		Handler: NewRouter(b),
	}
	var errc = make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	log.Println("status server started",
		"addr", addr)
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	var shutdownCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Println("status server stopped")
	return nil
}
