package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/soltixdb/pvratio/internal/config"
	"github.com/soltixdb/pvratio/internal/logging"
	"github.com/soltixdb/pvratio/internal/queue"
	"github.com/soltixdb/pvratio/internal/services"
	"github.com/soltixdb/pvratio/internal/tables"
)

func main() {
	// Command line flags
	configPath := flag.String("config", "", "Path to configuration file (optional)")
	generation := flag.String("generation", "", "Plant generation CSV")
	weather := flag.String("weather", "", "Plant weather sensor CSV")
	output := flag.String("output", "", "Output directory (default: results.export_dir)")
	format := flag.String("format", "csv", "Output format (csv, json, json.sz)")
	window := flag.Int("window", 0, "Rolling window size")
	threshold := flag.Float64("threshold", 0, "Cleaning threshold")
	multiplier := flag.Float64("multiplier", 0, "Fault multiplier")
	policy := flag.String("non-finite", "", "Non-finite ratio policy (exclude, sentinel)")
	sentinel := flag.Float64("sentinel", 0, "Sentinel value for the sentinel policy")
	publish := flag.Bool("publish", false, "Publish alerts to the configured queue")

	flag.Parse()

	if *generation == "" || *weather == "" {
		fmt.Fprintln(os.Stderr, "Error: -generation and -weather are required")
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.LoadOrDefault(*configPath)
	logger, err := logging.NewFromConfig(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobal(logger)

	f, err := tables.ParseFormat(*format)
	if err != nil {
		logger.Fatal("Invalid format", "error", err)
	}
	if *output == "" {
		*output = cfg.Results.ExportDir
	}

	// Only flags given on the command line override the configured defaults
	var overrides services.ParamOverrides
	flag.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "window":
			overrides.WindowSize = window
		case "threshold":
			overrides.CleaningThreshold = threshold
		case "multiplier":
			overrides.FaultMultiplier = multiplier
		case "non-finite":
			overrides.NonFinitePolicy = policy
		case "sentinel":
			overrides.Sentinel = sentinel
		}
	})

	var publisher queue.Publisher
	if *publish {
		cfg.Queue.Enabled = true
		publisher, err = queue.NewPublisher(cfg.Queue)
		if err != nil {
			logger.Fatal("Failed to connect to Queue", "error", err)
		}
		defer func() { _ = publisher.Close() }()
	}

	analysis, err := services.NewAnalysisService(logger, cfg, publisher)
	if err != nil {
		logger.Fatal("Failed to create analysis service", "error", err)
	}
	defer analysis.Close()

	genFile, err := os.Open(*generation)
	if err != nil {
		logger.Fatal("Failed to open generation file", "error", err)
	}
	defer genFile.Close()

	weatherFile, err := os.Open(*weather)
	if err != nil {
		logger.Fatal("Failed to open weather file", "error", err)
	}
	defer weatherFile.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run, err := analysis.Run(ctx, services.AnalyzeRequest{
		Generation: genFile,
		Weather:    weatherFile,
		Params:     overrides,
	})
	if err != nil {
		logger.Fatal("Analysis failed", "error", err)
	}

	paths, err := tables.WriteDir(*output, f, run.Result)
	if err != nil {
		logger.Fatal("Failed to write results", "error", err, "output", *output)
	}

	res := run.Result
	if run.Model != nil {
		logger.Info("Predictor fitted",
			"samples", run.Model.Samples,
			"r2", run.Model.R2,
			"rmse", run.Model.RMSE,
			"mae", run.Model.MAE,
		)
	}
	for _, m := range res.MaintenanceSummaries() {
		logger.Info("Cleaning required",
			"entity", m.EntityID,
			"flags", m.Flags,
			"first", m.FirstFlagAt,
			"last", m.LastFlagAt,
			"min_smoothed_ratio", m.MinRatio,
		)
	}
	for _, e := range res.Faults.Faulty {
		logger.Warn("Possible fault",
			"entity", e.EntityID,
			"power_mean", e.PowerMean,
			"ratio_mean", e.RatioMean,
			"power_outlier", e.PowerOutlier,
			"ratio_outlier", e.RatioOutlier,
		)
	}
	logger.Info("Analysis written",
		"run_id", run.ID,
		"records", len(res.Ratios),
		"entities", len(res.Entities),
		"maintenance_flags", len(res.Maintenance),
		"faulty_entities", len(res.Faults.Faulty),
		"alerts_published", run.Alerts.Published,
		"files", paths,
	)
}
