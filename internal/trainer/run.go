package trainer

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"time"

	"github.com/ChizhovVadim/landcover/internal/checkpoint"
	"github.com/ChizhovVadim/landcover/internal/config"
	"github.com/ChizhovVadim/landcover/internal/dataset"
	"github.com/ChizhovVadim/landcover/internal/device"
	"github.com/ChizhovVadim/landcover/internal/manifest"
	"github.com/ChizhovVadim/landcover/internal/ml"
	"github.com/ChizhovVadim/landcover/internal/model"
	"github.com/ChizhovVadim/landcover/internal/raster"
	"github.com/ChizhovVadim/landcover/internal/status"
	"github.com/ChizhovVadim/landcover/internal/tracker"
)

func CheckpointName(epoch int) string {
	return fmt.Sprintf("model-%d%v", epoch, checkpoint.Ext)
}

type modelCheckpointer struct {
	store *checkpoint.Store
	net   *model.Net
}

func (c *modelCheckpointer) Save(epoch int, score float64) (string, error) {
	return c.store.Save(CheckpointName(epoch), epoch, score, c.net)
}

func TrainTransform(size int) raster.Transform {
	return raster.Compose{raster.Rotate(), raster.Crop(size)}
}

func ValidTransform(size int) raster.Transform {
	return raster.Resize(size)
}

// Run executes a full training run described by cfg and writes the console
// report to out.
// The tracker run is finished with the returned error.
func Run(ctx context.Context, cfg config.Config, out io.Writer) (err error) {
	var start = time.Now()
	if err := cfg.Validate(); err != nil {
		return err
	}

	var board = &status.Board{}
	board.Update(func(s *status.Snapshot) {
		s.State = Initializing.String()
		s.Epochs = cfg.Epochs
		s.Started = start
	})
	if cfg.StatusAddr != "" {
		var statusCtx, stopStatus = context.WithCancel(ctx)
		defer stopStatus()
		go func() {
			if err := status.Serve(statusCtx, cfg.StatusAddr, board); err != nil {
				log.Println("status server", "error", err)
			}
		}()
	}
	defer board.Update(func(s *status.Snapshot) { s.State = Done.String() })

	store, err := checkpoint.NewStore(cfg.OutputDir)
	if err != nil {
		return err
	}

	tr, run, err := tracker.Open(cfg.Tracker, cfg.OutputDir, cfg.Params())
	if err != nil {
		return err
	}
	defer func() {
		if finishErr := tr.Finish(err); finishErr != nil {
			log.Println("tracker finish", "error", finishErr)
		}
	}()
	log.Println("run started",
		"id", run.ID,
		"name", run.Name,
		"tracker", cfg.Tracker.Mode)

	files, err := manifest.Build(cfg.DataDir, cfg.ImageExt, cfg.TrainListPath(), cfg.ValListPath())
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Total samples      :", len(files.All))
	fmt.Fprintln(out, "Training samples   :", len(files.Train))
	fmt.Fprintln(out, "Validation samples :", len(files.Val))
	fmt.Fprintln(out, "Excluded samples   :", len(files.Excluded))

	dev, err := device.Select(cfg.Device)
	if err != nil {
		return err
	}
	var threads = cfg.Threads
	if threads == 0 {
		threads = dev.Threads
	}
	log.Println("device", dev,
		"features", dev.Features,
		"threads", threads)

	var cache = raster.NewCache(cfg.CacheMB << 20)
	var trainLoader = &dataset.Loader{
		Dataset:   dataset.New(files.Train, cfg.Classes, cfg.InChannels, TrainTransform(cfg.ImageSize), cache),
		BatchSize: cfg.BatchSize,
		Workers:   cfg.Workers,
		Shuffle:   true,
		DropLast:  true,
		Seed:      cfg.Seed,
	}
	var validLoader = newValidLoader(cfg, files.Val, cache)

	var net = model.New(modelConfig(cfg), threads, rand.New(rand.NewSource(cfg.Seed)))
	var runner = &SegmentationRunner{
		Net:       net,
		Optimizer: ml.NewAdam(cfg.LearningRate),
		Criterion: ml.NewDiceLoss(),
	}

	board.Update(func(s *status.Snapshot) { s.State = Training.String() })
	var loop = &Loop{
		Epochs:       cfg.Epochs,
		Runner:       runner,
		Checkpointer: &modelCheckpointer{store: store, net: net},
		Out:          out,
		OnEpoch: func(r EpochResult) error {
			var hits, misses = cache.Stats()
			log.Println("epoch finished",
				"epoch", r.Epoch+1,
				"best", r.Best.Score,
				"cacheHits", hits,
				"cacheMisses", misses)
			board.Update(func(s *status.Snapshot) {
				s.Epoch = r.Epoch + 1
				s.BestScore = r.Best.Score
				s.BestEpoch = r.Best.Epoch
				s.TrainLogs = r.Train
				s.ValidLogs = r.Valid
				if r.Checkpoint != "" {
					s.Checkpoints = append(s.Checkpoints, status.Checkpoint{
						Path:  r.Checkpoint,
						Epoch: r.Epoch,
						Score: r.Best.Score,
					})
				}
			})
			return tr.Log(r.Epoch, trackerMetrics(r))
		},
	}
	best, err := loop.Run(ctx, trainLoader, validLoader)
	if err != nil {
		return err
	}
	log.Println("training finished",
		"bestScore", best.Score,
		"bestEpoch", best.Epoch)

	fmt.Fprintf(out, "Elapsed time: %.3f min\n", time.Since(start).Minutes())
	return nil
}

func modelConfig(cfg config.Config) model.Config {
	return model.Config{
		InChannels: cfg.InChannels,
		Hidden:     cfg.Hidden,
		Classes:    cfg.Classes,
	}
}

func newValidLoader(cfg config.Config, files []string, cache *raster.Cache) *dataset.Loader {
	return &dataset.Loader{
		Dataset:   dataset.New(files, cfg.Classes, cfg.InChannels, ValidTransform(cfg.ImageSize), cache),
		BatchSize: cfg.BatchSize,
		Workers:   cfg.Workers,
		Seed:      cfg.Seed,
	}
}

func trackerMetrics(r EpochResult) map[string]float64 {
	var result = make(map[string]float64, len(r.Train)+len(r.Valid)+1)
	for k, v := range r.Train {
		result["train/"+k] = v
	}
	for k, v := range r.Valid {
		result["valid/"+k] = v
	}
	result["best/"+ScoreKey] = r.Best.Score
	return result
}

// Evaluate runs the validation step for the checkpoint at path.
func Evaluate(ctx context.Context, cfg config.Config, path string) (Logs, checkpoint.Header, error) {
	if err := cfg.Validate(); err != nil {
		return nil, checkpoint.Header{}, err
	}
	files, err := manifest.Build(cfg.DataDir, cfg.ImageExt, cfg.TrainListPath(), cfg.ValListPath())
	if err != nil {
		return nil, checkpoint.Header{}, err
	}
	dev, err := device.Select(cfg.Device)
	if err != nil {
		return nil, checkpoint.Header{}, err
	}
	var threads = cfg.Threads
	if threads == 0 {
		threads = dev.Threads
	}
	var net = model.New(modelConfig(cfg), threads, rand.New(rand.NewSource(cfg.Seed)))
	header, err := checkpoint.Load(path, net)
	if err != nil {
		return nil, checkpoint.Header{}, err
	}
	if net.Classes() != cfg.Classes {
		log.Println("evaluate",
			"checkpointClasses", net.Classes(),
			"configClasses", cfg.Classes)
	}
	cfg.Classes = net.Classes()
	cfg.InChannels = net.Config().InChannels
	var runner = &SegmentationRunner{
		Net:       net,
		Criterion: ml.NewDiceLoss(),
	}
	logs, err := runner.ValidEpoch(ctx, newValidLoader(cfg, files.Val, nil))
	if err != nil {
		return nil, checkpoint.Header{}, err
	}
	return logs, header, nil
}
