package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/benroywillis/Cyclebite-sub001/internal/app"
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

// pathList collects a flag that may be repeated or hold comma-separated
// values.
type pathList []string

func (p *pathList) String() string { return strings.Join(*p, ",") }

func (p *pathList) Set(v string) error {
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			*p = append(*p, s)
		}
	}
	return nil
}

// Parse processes command-line arguments. It returns a populated Config, a
// boolean indicating if the program should exit cleanly, or an ExitError.
// Flag defaults come from the CYCLEBITE_* environment variables.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("cyclebite", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
Cyclebite - Structural recognition of traced compute kernels.

Usage:
  cyclebite [options] [PROGRAM [DESCRIPTOR]]

Arguments:
  PROGRAM
    Program graph of the traced application (JSON).
  DESCRIPTOR
    Kernel descriptor naming the hot cycles (JSON).

Options:
`)
		flagSet.PrintDefaults()
	}

	defaults := app.ConfigFromEnv()
	var configPaths pathList

	programFlag := flagSet.String("program", "", "Path to the program graph.")
	kernelFlag := flagSet.String("kernel", "", "Path to the kernel descriptor.")
	instanceFlag := flagSet.String("instance", "", "Path to the instance descriptor. Takes precedence over -kernel.")
	profileFlag := flagSet.String("profile", "", "Path to the profiler output (edge and block counts).")
	blockInfoFlag := flagSet.String("block-info", "", "Path to the per-block source information.")
	outputFlag := flagSet.String("output", "", "Path of the statistics file. Defaults to standard output.")
	flagSet.Var(&configPaths, "config", "Configuration .hcl file or directory. May be repeated.")
	healthPortFlag := flagSet.Int("healthcheck-port", defaults.HealthcheckPort, "Port for the HTTP health check server. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", defaults.LogFormat, "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", defaults.LogLevel, "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	workersFlag := flagSet.Int("workers", defaults.Workers, "Number of tasks analysed concurrently. 0 uses the configuration file, then the CPU count.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	programPath, kernelPath := *programFlag, *kernelFlag
	rest := flagSet.Args()
	if programPath == "" && len(rest) > 0 {
		programPath, rest = rest[0], rest[1:]
	}
	if kernelPath == "" && *instanceFlag == "" && len(rest) > 0 {
		kernelPath, rest = rest[0], rest[1:]
	}
	if len(rest) > 0 {
		return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("unexpected arguments: %s", strings.Join(rest, " "))}
	}

	if programPath == "" && kernelPath == "" && *instanceFlag == "" {
		slog.Debug("No inputs provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
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
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		ProgramPath:     programPath,
		KernelPath:      kernelPath,
		InstancePath:    *instanceFlag,
		ProfilePath:     *profileFlag,
		BlockInfoPath:   *blockInfoFlag,
		OutputPath:      *outputFlag,
		ConfigPaths:     configPaths,
		HealthcheckPort: *healthPortFlag,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
		Workers:         *workersFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
