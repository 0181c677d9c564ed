package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strconv"
	"strings"

	"github.com/vk/dataprep/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("dataprep", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
dataprep - Build a training-ready dataset from gridded source datasets.

Usage:
  dataprep [options] [CONFIG_PATH]

Arguments:
  CONFIG_PATH
    Path to a .yaml file, a single .hcl file or a directory of .hcl files.

Recreating inputs:
  dataprep --recreate built.nc [--only-inputs a,b] [--chunks time=10] CONFIG_PATH
    Rebuilds the inputs of CONFIG_PATH from a dataset it built.

Options:
`)
		flagSet.PrintDefaults()
	}

	configFlag := flagSet.String("config", "", "Path to the build configuration.")
	cFlag := flagSet.String("c", "", "Path to the build configuration (shorthand).")
	outputFlag := flagSet.String("output", "", "Path of the netCDF file to write. Defaults to the config path with a .nc extension.")
	oFlag := flagSet.String("o", "", "Path of the netCDF file to write (shorthand).")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	workersFlag := flagSet.Int("workers", runtime.NumCPU(), "Number of statistics computed concurrently.")
	recreateFlag := flagSet.String("recreate", "", "Path of a built dataset whose inputs are rebuilt instead of running a build.")
	recreateFormatFlag := flagSet.String("recreate-output-format", app.DefaultRecreatePathFormat, "Path of each rebuilt input; "+app.InputNamePlaceholder+" is replaced by the input name.")
	onlyInputsFlag := flagSet.String("only-inputs", "", "Comma-separated inputs to rebuild. Defaults to all.")
	chunksFlag := flagSet.String("chunks", "", "Chunk sizes of the rebuilt inputs, as dim=size pairs separated by commas.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	path := ""
	if *configFlag != "" {
		path = *configFlag
	} else if *cFlag != "" {
		path = *cFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	slog.Debug("Config path determined.", "path", path)

	if path == "" {
		slog.Debug("No config path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	outputPath := *outputFlag
	if outputPath == "" {
		outputPath = *oFlag
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	chunks, err := parseChunks(*chunksFlag)
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		ConfigPath: path,
		OutputPath: outputPath,
		LogFormat:  logFormat,
		LogLevel:   logLevel,
		Workers:    *workersFlag,

		RecreateFrom:       *recreateFlag,
		RecreatePathFormat: *recreateFormatFlag,
		RecreateInputs:     splitList(*onlyInputsFlag),
		RecreateChunks:     chunks,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// parseChunks reads "time=10,grid_index=500" into chunk sizes.
func parseChunks(s string) (map[string]int, error) {
	items := splitList(s)
	if len(items) == 0 {
		return nil, nil
	}
	out := make(map[string]int, len(items))
	for _, item := range items {
		dim, size, ok := strings.Cut(item, "=")
		n, err := strconv.Atoi(strings.TrimSpace(size))
		if !ok || strings.TrimSpace(dim) == "" || err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid chunks entry %q: want dim=size with a positive size", item)
		}
		out[strings.TrimSpace(dim)] = n
	}
	return out, nil
}
