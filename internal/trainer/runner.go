package trainer

import (
	"context"

	"github.com/ChizhovVadim/landcover/internal/dataset"
	"github.com/ChizhovVadim/landcover/internal/ml"
	"github.com/ChizhovVadim/landcover/internal/model"
)

// SegmentationRunner trains and evaluates a model.Net one batch at a time.
// Loss is reported under the criterion name, mean IoU under Score.
type SegmentationRunner struct {
	Net       *model.Net
	Optimizer ml.Optimizer
	Criterion ml.ICriterion
}

type epochStats struct {
	loss      float64
	samples   int
	confusion *ml.Confusion
}

func (s *epochStats) logs(lossName string) Logs {
	var loss float64
	if s.samples != 0 {
		loss = s.loss / float64(s.samples)
	}
	return Logs{
		lossName: loss,
		ScoreKey: s.confusion.MeanIoU(),
	}
}

func (r *SegmentationRunner) TrainEpoch(ctx context.Context, loader BatchSource) (Logs, error) {
	var stats = epochStats{confusion: ml.NewConfusion(r.Net.Classes())}
	var err = loader.Each(ctx, func(batch dataset.Batch) error {
		var images, masks = batch.Images(), batch.Masks()
		var probs, lossStats = r.forward(images, masks, batch.Size(), &stats)
		var grads = make([][]float32, len(probs))
		for i := range probs {
			grads[i] = make([]float32, len(probs[i]))
			r.Criterion.Gradient(lossStats, probs[i], masks[i], grads[i])
		}
		r.Net.Backward(images, probs, grads, batch.Size())
		r.Net.Apply(r.Optimizer)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats.logs(r.Criterion.Name()), nil
}

func (r *SegmentationRunner) ValidEpoch(ctx context.Context, loader BatchSource) (Logs, error) {
	var stats = epochStats{confusion: ml.NewConfusion(r.Net.Classes())}
	var err = loader.Each(ctx, func(batch dataset.Batch) error {
		r.forward(batch.Images(), batch.Masks(), batch.Size(), &stats)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats.logs(r.Criterion.Name()), nil
}

func (r *SegmentationRunner) forward(images [][]float32, masks [][]uint8, size int, stats *epochStats) ([][]float32, *ml.LossStats) {
	var probs = r.Net.Forward(images, size)
	var lossStats = ml.NewLossStats(r.Net.Classes())
	for i := range probs {
		r.Criterion.Accumulate(lossStats, probs[i], masks[i])
		stats.confusion.AddProbs(probs[i], masks[i])
	}
	stats.loss += r.Criterion.Value(lossStats) * float64(len(images))
	stats.samples += len(images)
	return probs, lossStats
}
