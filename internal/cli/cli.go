package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vk/genflow/internal/app"
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

// parseReference reads "character1,character2,scene"; trailing parts may be
// omitted and any part may be empty.
func parseReference(v string) (app.ItemReferences, error) {
	parts := strings.Split(v, ",")
	if len(parts) > 3 {
		return app.ItemReferences{}, fmt.Errorf("invalid -ref %q: expected at most 3 comma-separated names", v)
	}
	for len(parts) < 3 {
		parts = append(parts, "")
	}
	return app.ItemReferences{
		Character1: strings.TrimSpace(parts[0]),
		Character2: strings.TrimSpace(parts[1]),
		Scene:      strings.TrimSpace(parts[2]),
	}, nil
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("genflow", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
genflow - Generate images in batches from workflow graph templates.

Usage:
  genflow [options] PROMPT [PROMPT...]
  genflow -list
  genflow -describe TEMPLATE

Arguments:
  PROMPT
    One generation item. Items run one after another.

Options:
`)
		flagSet.PrintDefaults()
	}

	var (
		configPaths []string
		references  []app.ItemReferences
	)
	flagSet.Func("config", "Path to an .hcl config file or directory (repeatable). Default: genflow.hcl", func(v string) error {
		configPaths = append(configPaths, v)
		return nil
	})
	flagSet.Func("ref", "Reference images of one item as 'character1,character2,scene' (repeat once per prompt).", func(v string) error {
		ref, err := parseReference(v)
		if err != nil {
			return err
		}
		references = append(references, ref)
		return nil
	})
	workflowFlag := flagSet.String("workflow", "", "Template name. Empty uses the configured default.")
	projectFlag := flagSet.String("project", "", "Project whose item directories receive the images.")
	chapterFlag := flagSet.String("chapter", "", "Chapter inside the project.")
	styleFlag := flagSet.String("style", "", "Configured style applied to every prompt.")
	widthFlag := flagSet.Int("width", 0, "Image width. 0 keeps the template's value.")
	heightFlag := flagSet.Int("height", 0, "Image height. 0 keeps the template's value.")
	negativeFlag := flagSet.String("negative", "", "Negative prompt. Overrides the style's negative prompt.")
	listFlag := flagSet.Bool("list", false, "List the available templates and exit.")
	describeFlag := flagSet.String("describe", "", "Print the nodes of a template and exit.")
	pollFlag := flagSet.Duration("poll-interval", app.DefaultPollInterval, "How often batch progress is logged.")
	healthPortFlag := flagSet.Int("healthcheck-port", 0, "Port for the HTTP health check server. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	prompts := flagSet.Args()
	if len(prompts) == 0 && !*listFlag && *describeFlag == "" {
		slog.Debug("No prompts provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}
	if len(configPaths) == 0 {
		configPaths = []string{"genflow.hcl"}
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		ConfigPaths:     configPaths,
		List:            *listFlag,
		Describe:        *describeFlag,
		Workflow:        *workflowFlag,
		Project:         *projectFlag,
		Chapter:         *chapterFlag,
		Style:           *styleFlag,
		Width:           *widthFlag,
		Height:          *heightFlag,
		Negative:        *negativeFlag,
		Prompts:         prompts,
		References:      references,
		PollInterval:    *pollFlag,
		HealthcheckPort: *healthPortFlag,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "prompts", len(prompts))
	return config, false, nil
}
