package dataset

import (
	"context"
	"math/rand"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Loader prepares batches with a pool of workers and delivers them in order.
type Loader struct {
	Dataset   *Dataset
	BatchSize int
	Workers   int
	Shuffle   bool
	DropLast  bool
	Seed      int64
	// Prefetch bounds the number of prepared batches waiting for the consumer.
	Prefetch int

	epoch atomic.Int64
}

// Len returns the number of batches per epoch.
func (l *Loader) Len() int {
	return len(l.batches(l.indices(nil)))
}

// Samples returns the number of samples visited per epoch.
func (l *Loader) Samples() int {
	var n = l.Dataset.Len()
	if l.DropLast && l.BatchSize > 0 {
		n -= n % l.BatchSize
	}
	return n
}

// Each runs one epoch. fn is called sequentially with batches in order;
// the first error from a worker or from fn stops the epoch.
func (l *Loader) Each(ctx context.Context, fn func(Batch) error) error {
	if l.BatchSize <= 0 {
		return errors.Errorf("dataset: batch size %v", l.BatchSize)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	var epoch = l.epoch.Add(1) - 1
	var rnd *rand.Rand
	if l.Shuffle {
		rnd = rand.New(rand.NewSource(l.Seed + epoch))
	}
	var batches = l.batches(l.indices(rnd))
	if len(batches) == 0 {
		return nil
	}

	var workers = max(1, l.Workers)
	var prefetch = l.Prefetch
	if prefetch <= 0 {
		prefetch = 2 * workers
	}

	g, ctx := errgroup.WithContext(ctx)

	var jobs = make(chan int)
	var tokens = make(chan struct{}, prefetch)
	var ready = make([]chan Batch, len(batches))
	for i := range ready {
		ready[i] = make(chan Batch, 1)
	}

	g.Go(func() error {
		defer close(jobs)
		for i := range batches {
			select {
			case tokens <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
			select {
			case jobs <- i:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := range jobs {
				var batch, err = l.makeBatch(epoch, i, batches[i])
				if err != nil {
					return err
				}
				ready[i] <- batch
			}
			return nil
		})
	}

	g.Go(func() error {
		for i := range ready {
			select {
			case batch := <-ready[i]:
				<-tokens
				if err := fn(batch); err != nil {
					return err
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	return g.Wait()
}

func (l *Loader) indices(rnd *rand.Rand) []int {
	var result = make([]int, l.Dataset.Len())
	for i := range result {
		result[i] = i
	}
	if rnd != nil {
		rnd.Shuffle(len(result), func(i, j int) {
			result[i], result[j] = result[j], result[i]
		})
	}
	return result
}

func (l *Loader) batches(indices []int) [][]int {
	if l.BatchSize <= 0 {
		return nil
	}
	var result [][]int
	for i := 0; i < len(indices); i += l.BatchSize {
		var end = i + l.BatchSize
		if end > len(indices) {
			if l.DropLast {
				break
			}
			end = len(indices)
		}
		result = append(result, indices[i:end])
	}
	return result
}

func (l *Loader) makeBatch(epoch int64, index int, items []int) (Batch, error) {
	var batch = Batch{
		Index:   index,
		Samples: make([]Sample, len(items)),
	}
	for i, item := range items {
		var rnd = rand.New(rand.NewSource(l.Seed ^ (epoch << 32) ^ int64(item)))
		var sample, err = l.Dataset.Get(item, rnd)
		if err != nil {
			return Batch{}, err
		}
		if i > 0 && sample.Size != batch.Samples[0].Size {
			return Batch{}, errors.Errorf("dataset: batch mixes sizes %v and %v", batch.Samples[0].Size, sample.Size)
		}
		batch.Samples[i] = sample
	}
	return batch, nil
}
