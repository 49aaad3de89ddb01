package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tripdesk/tripdesk/internal/config"
	"github.com/tripdesk/tripdesk/internal/mcp"
	"github.com/tripdesk/tripdesk/internal/pipeline"
	"github.com/tripdesk/tripdesk/internal/report"
)

const version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	switch os.Args[1] {
	case "process":
		if err := runProcess(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "file":
		if err := runFile(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "health":
		if err := runHealth(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "mcp":
		if err := runMCP(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "version", "--version", "-v":
		fmt.Printf("tripdesk %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// cliFlags are the options shared by the processing commands.
type cliFlags struct {
	configPath  string
	csvPath     string
	summaryPath string
	strict      bool
	args        []string
}

func parseFlags(args []string) (cliFlags, error) {
	var f cliFlags
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--strict":
			f.strict = true
		case arg == "--config":
			i++
			if i >= len(args) {
				return f, fmt.Errorf("--config needs a path")
			}
			f.configPath = args[i]
		case arg == "--csv":
			i++
			if i >= len(args) {
				return f, fmt.Errorf("--csv needs a path")
			}
			f.csvPath = args[i]
		case arg == "--summary":
			i++
			if i >= len(args) {
				return f, fmt.Errorf("--summary needs a path")
			}
			f.summaryPath = args[i]
		case strings.HasPrefix(arg, "-"):
			return f, fmt.Errorf("unknown flag: %s", arg)
		default:
			f.args = append(f.args, arg)
		}
	}
	return f, nil
}

func buildPipeline(configPath string) (*pipeline.Pipeline, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("building logger: %w", err)
	}
	p, err := pipeline.New(cfg, log)
	if err != nil {
		log.Sync()
		return nil, nil, err
	}
	return p, log, nil
}

// newLogger builds a production zap logger writing to stderr so
// stdout stays clean for command output.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

func runProcess(args []string) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}
	if len(f.args) != 1 {
		return fmt.Errorf("usage: tripdesk process <dir> [--strict] [--csv out.csv] [--summary out.json] [--config file]")
	}

	p, log, err := buildPipeline(f.configPath)
	if err != nil {
		return err
	}
	defer p.Close()
	defer log.Sync()

	rep, err := p.ProcessBatch(context.Background(), f.args[0], pipeline.Options{Strict: f.strict})
	if err != nil {
		return err
	}

	if f.csvPath != "" || f.summaryPath != "" {
		if err := report.SaveBatch(rep, f.csvPath, f.summaryPath); err != nil {
			return err
		}
	}
	if f.csvPath == "" {
		if err := report.WriteCSV(os.Stdout, rep.Results); err != nil {
			return err
		}
	}

	fmt.Fprintf(os.Stderr, "Processed %d inquiries: %d ok, %d empty, %d too short, %d errors (%.1f%% success, avg confidence %.3f)\n",
		rep.Stats.Total, rep.Stats.Succeeded, rep.Stats.EmptyFiles,
		rep.Stats.TooShort, rep.Stats.Errors, rep.Stats.SuccessRate, rep.Stats.AvgConfidence)
	return nil
}

func runFile(args []string) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}
	if len(f.args) != 1 {
		return fmt.Errorf("usage: tripdesk file <path> [--strict] [--config file]")
	}

	p, log, err := buildPipeline(f.configPath)
	if err != nil {
		return err
	}
	defer p.Close()
	defer log.Sync()

	res := p.ProcessFile(context.Background(), f.args[0], pipeline.Options{Strict: f.strict})
	return printJSON(res)
}

func runHealth(args []string) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}

	p, log, err := buildPipeline(f.configPath)
	if err != nil {
		return err
	}
	defer p.Close()
	defer log.Sync()

	h := p.HealthCheck(context.Background())
	if err := printJSON(h); err != nil {
		return err
	}
	if !h.Healthy {
		os.Exit(1)
	}
	return nil
}

func runMCP(args []string) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}

	p, log, err := buildPipeline(f.configPath)
	if err != nil {
		return err
	}
	defer p.Close()
	defer log.Sync()

	log.Info("mcp server starting", zap.String("version", version))
	return mcp.ServeStdio(mcp.NewServer(p, version))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printUsage() {
	fmt.Println(`tripdesk - trip inquiry extraction pipeline

Usage:
  tripdesk process <dir> [--strict] [--csv out.csv] [--summary out.json] [--config file]
      Process every inquiry file in a directory and emit a CSV report.

  tripdesk file <path> [--strict] [--config file]
      Process a single inquiry file and print the result as JSON.

  tripdesk health [--config file]
      Probe pipeline components; exits non-zero when unhealthy.

  tripdesk mcp [--config file]
      Serve the pipeline over the Model Context Protocol on stdio.

  tripdesk version
      Print the version.

Environment:
  TRIPDESK_MODEL_PATH      Path to the NER ONNX model
  TRIPDESK_TOKENIZER_PATH  Path to the tokenizer.json
  TRIPDESK_NER_THRESHOLD   NER confidence threshold (default 0.5)
  TRIPDESK_WORKERS         Worker pool size
  TRIPDESK_TASK_TIMEOUT    Per-inquiry timeout (e.g. 30s)
  TRIPDESK_ORT_LIBRARY     ONNX Runtime shared library path
  TRIPDESK_LOG_LEVEL       Log level (debug, info, warn, error)`)
}
