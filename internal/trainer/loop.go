// Package trainer drives the epoch loop: train, validate and keep the model
// with the best validation score.
package trainer

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/ChizhovVadim/landcover/internal/dataset"
	"github.com/pkg/errors"
)

const ScoreKey = "Score"

var ErrNoScore = errors.New("trainer: validation logs have no " + ScoreKey)

type State int

const (
	Initializing State = iota
	Training
	Done
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "Initializing"
	case Training:
		return "Training"
	case Done:
		return "Done"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Logs are aggregate metrics of one epoch keyed by metric name.
type Logs map[string]float64

func (l Logs) String() string {
	var keys = make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var parts = make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%v=%.4f", k, l[k])
	}
	return strings.Join(parts, " ")
}

type BatchSource interface {
	Each(ctx context.Context, fn func(dataset.Batch) error) error
}

type Runner interface {
	TrainEpoch(ctx context.Context, loader BatchSource) (Logs, error)
	ValidEpoch(ctx context.Context, loader BatchSource) (Logs, error)
}

type Checkpointer interface {
	Save(epoch int, score float64) (string, error)
}

// BestScore is the highest validation score seen so far and its epoch.
type BestScore struct {
	Score float64
	Epoch int
}

// Improve returns the updated best and true only when score is strictly higher.
func (b BestScore) Improve(epoch int, score float64) (BestScore, bool) {
	if b.Score < score {
		return BestScore{Score: score, Epoch: epoch}, true
	}
	return b, false
}

type EpochResult struct {
	Epoch      int
	Train      Logs
	Valid      Logs
	Best       BestScore
	Checkpoint string
}

type Loop struct {
	Epochs       int
	Runner       Runner
	Checkpointer Checkpointer
	// OnEpoch is called after every epoch; an error stops the loop.
	OnEpoch func(EpochResult) error
	Out     io.Writer
}

// Run trains for Epochs epochs and checkpoints whenever the validation score
// beats every previous one. The returned best is valid even on error.
func (l *Loop) Run(ctx context.Context, train, valid BatchSource) (BestScore, error) {
	var out = l.Out
	if out == nil {
		out = os.Stdout
	}
	var best BestScore
	for epoch := 0; epoch < l.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return best, err
		}
		fmt.Fprintf(out, "\nEpoch: %d\n", epoch+1)

		trainLogs, err := l.Runner.TrainEpoch(ctx, train)
		if err != nil {
			return best, errors.Wrapf(err, "train epoch %v", epoch+1)
		}
		fmt.Fprintf(out, "train: %v\n", trainLogs)

		validLogs, err := l.Runner.ValidEpoch(ctx, valid)
		if err != nil {
			return best, errors.Wrapf(err, "valid epoch %v", epoch+1)
		}
		fmt.Fprintf(out, "valid: %v\n", validLogs)

		score, found := validLogs[ScoreKey]
		if !found {
			return best, ErrNoScore
		}

		var result = EpochResult{
			Epoch: epoch,
			Train: trainLogs,
			Valid: validLogs,
		}
		if next, improved := best.Improve(epoch, score); improved {
			path, err := l.Checkpointer.Save(epoch, score)
			if err != nil {
				return best, errors.Wrapf(err, "save checkpoint epoch %v", epoch+1)
			}
			best = next
			result.Checkpoint = path
			fmt.Fprintf(out, "Model saved: %v\n", path)
		}
		result.Best = best

		if l.OnEpoch != nil {
			if err := l.OnEpoch(result); err != nil {
				return best, err
			}
		}
	}
	return best, nil
}
