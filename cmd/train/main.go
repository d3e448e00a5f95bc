package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ChizhovVadim/landcover/internal/config"
	"github.com/ChizhovVadim/landcover/internal/trainer"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	var configPath string
	var flags = config.Default()
	flag.StringVar(&configPath, "config", "", "Path to YAML config file")
	flag.StringVar(&flags.DataDir, "data", flags.DataDir, "Dataset root directory")
	flag.StringVar(&flags.TrainList, "train", flags.TrainList, "Training name list (default <data>/train.txt)")
	flag.StringVar(&flags.ValList, "val", flags.ValList, "Validation name list (default <data>/val.txt)")
	flag.StringVar(&flags.OutputDir, "out", flags.OutputDir, "Checkpoint directory")
	flag.IntVar(&flags.ImageSize, "size", flags.ImageSize, "Tile size fed to the model")
	flag.IntVar(&flags.Classes, "classes", flags.Classes, "Number of classes")
	flag.IntVar(&flags.Hidden, "hidden", flags.Hidden, "Hidden channels")
	flag.Float64Var(&flags.LearningRate, "lr", flags.LearningRate, "Learning rate")
	flag.IntVar(&flags.BatchSize, "batch", flags.BatchSize, "Batch size")
	flag.IntVar(&flags.Epochs, "epochs", flags.Epochs, "Number of epochs")
	flag.IntVar(&flags.Workers, "workers", flags.Workers, "Number of loader workers")
	flag.IntVar(&flags.Threads, "threads", flags.Threads, "Number of model threads (0 = all cores)")
	flag.Int64Var(&flags.Seed, "seed", flags.Seed, "Random seed")
	flag.StringVar(&flags.Device, "device", flags.Device, "Device: auto, cpu or cuda")
	flag.IntVar(&flags.CacheMB, "cache", flags.CacheMB, "Raster cache size in MB (0 disables)")
	flag.StringVar(&flags.StatusAddr, "status", flags.StatusAddr, "Status server address, e.g. :8080")
	flag.StringVar(&flags.Tracker.Mode, "tracker", flags.Tracker.Mode, "Tracker mode: online, offline or disabled")
	flag.StringVar(&flags.Tracker.RunName, "name", flags.Tracker.RunName, "Run name")
	flag.Parse()

	cfg, err := loadConfig(configPath, &flags)
	if err != nil {
		log.Println(err)
		os.Exit(1)
	}
	log.Printf("%+v", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = trainer.Run(ctx, cfg, os.Stdout)
	if err != nil {
		log.Println(err)
		stop()
		os.Exit(1)
	}
}

// loadConfig layers defaults, the config file, the environment and the
// flags given on the command line, in that order.
func loadConfig(path string, flags *config.Config) (config.Config, error) {
	var cfg = config.Default()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return config.Config{}, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return config.Config{}, err
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "data":
			cfg.DataDir = flags.DataDir
		case "train":
			cfg.TrainList = flags.TrainList
		case "val":
			cfg.ValList = flags.ValList
		case "out":
			cfg.OutputDir = flags.OutputDir
		case "size":
			cfg.ImageSize = flags.ImageSize
		case "classes":
			cfg.Classes = flags.Classes
		case "hidden":
			cfg.Hidden = flags.Hidden
		case "lr":
			cfg.LearningRate = flags.LearningRate
		case "batch":
			cfg.BatchSize = flags.BatchSize
		case "epochs":
			cfg.Epochs = flags.Epochs
		case "workers":
			cfg.Workers = flags.Workers
		case "threads":
			cfg.Threads = flags.Threads
		case "seed":
			cfg.Seed = flags.Seed
		case "device":
			cfg.Device = flags.Device
		case "cache":
			cfg.CacheMB = flags.CacheMB
		case "status":
			cfg.StatusAddr = flags.StatusAddr
		case "tracker":
			cfg.Tracker.Mode = flags.Tracker.Mode
		case "name":
			cfg.Tracker.RunName = flags.Tracker.RunName
		}
	})
	return cfg, cfg.Validate()
}
