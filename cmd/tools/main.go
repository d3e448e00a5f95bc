package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/ChizhovVadim/landcover/internal/checkpoint"
	"github.com/ChizhovVadim/landcover/internal/config"
	"github.com/ChizhovVadim/landcover/internal/manifest"
	"github.com/ChizhovVadim/landcover/internal/trainer"
	"github.com/pkg/errors"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	var err = run(os.Args, os.Stdout)
	if err != nil {
		log.Println(err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	var cfg = config.Default()
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}

	var cli = NewCli(args)
	var params = cli.Params()
	var applyParams = func() {
		cfg.DataDir = mapPath(params.GetString("data", cfg.DataDir))
		cfg.TrainList = mapPath(params.GetString("train", cfg.TrainList))
		cfg.ValList = mapPath(params.GetString("val", cfg.ValList))
		cfg.ImageSize = params.GetInt("size", cfg.ImageSize)
		cfg.BatchSize = params.GetInt("batch", cfg.BatchSize)
		cfg.Workers = params.GetInt("workers", cfg.Workers)
	}
	cli.AddCommand("split", func() error {
		applyParams()
		return runSplit(cfg, params.GetInt("verbose", 0) != 0, out)
	})
	cli.AddCommand("inspect", func() error {
		var path = mapPath(params.GetString("ckpt", cfg.OutputDir))
		return runInspect(path, out)
	})
	cli.AddCommand("evaluate", func() error {
		applyParams()
		var path = mapPath(params.GetString("ckpt", ""))
		if path == "" {
			return fmt.Errorf("evaluate: -ckpt is required")
		}
		return runEvaluate(cfg, path, out)
	})
	return cli.Execute()
}

func runSplit(cfg config.Config, verbose bool, out io.Writer) error {
	m, err := manifest.Build(cfg.DataDir, cfg.ImageExt, cfg.TrainListPath(), cfg.ValListPath())
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Total samples      :", len(m.All))
	fmt.Fprintln(out, "Training samples   :", len(m.Train))
	fmt.Fprintln(out, "Validation samples :", len(m.Val))
	fmt.Fprintln(out, "Excluded samples   :", len(m.Excluded))
	if verbose {
		for _, path := range m.Excluded {
			fmt.Fprintln(out, "excluded", path)
		}
	}
	return nil
}

// runInspect prints one checkpoint header, or all checkpoints of a directory.
func runInspect(path string, out io.Writer) error {
	var info, err = os.Stat(path)
	if err != nil {
		return errors.Wrap(err, "inspect")
	}
	var headers []checkpoint.Header
	if info.IsDir() {
		headers, err = (&checkpoint.Store{Dir: path}).List()
		if err != nil {
			return err
		}
	} else {
		h, err := checkpoint.ReadHeader(path)
		if err != nil {
			return err
		}
		headers = append(headers, h)
	}
	for _, h := range headers {
		fmt.Fprintf(out, "%v\tepoch %d\tscore %.4f\tcreated %v\n",
			filepath.Base(h.Path), h.Epoch, h.Score, h.Created.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runEvaluate(cfg config.Config, path string, out io.Writer) error {
	logs, header, err := trainer.Evaluate(context.Background(), cfg, path)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%v (epoch %d, saved score %.4f)\n", filepath.Base(path), header.Epoch, header.Score)
	fmt.Fprintf(out, "valid: %v\n", logs)
	return nil
}
