package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"dockexec/internal/app"
	"dockexec/internal/config"
	apperrors "dockexec/internal/errors"
	"dockexec/internal/runner"
	"dockexec/internal/ui"
	"dockexec/pkg/runtime"
)

// version is set at build time via ldflags
var version = "dev"

var (
	cfg      *config.Config
	exitCode int
)

var rootCmd = &cobra.Command{
	Use:     "dockexec",
	Short:   "dockexec - run a command in a throwaway container",
	Version: version,
	Long: `dockexec runs one command in a fresh container, captures its output and exit
status, enforces an optional timeout and always removes the container afterwards.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configFile, _ := cmd.Flags().GetString("config")
		verbose, _ := cmd.Flags().GetBool("verbose")

		loaded, err := config.Load(configFile)
		if err != nil {
			return err
		}
		cfg = loaded

		level := cfg.SlogLevel()
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run [flags] IMAGE [--] COMMAND [ARG...]",
	Short: "Run a command in a new container",
	Long: `Run creates a container from IMAGE, runs COMMAND in it and prints the captured
stdout and stderr. The process exits with the command's exit code, 124 when the
timeout fired, or 1 when the container could not be run.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout, _ := cmd.Flags().GetDuration("timeout")
		env, _ := cmd.Flags().GetStringArray("env")
		workdir, _ := cmd.Flags().GetString("workdir")
		name, _ := cmd.Flags().GetString("name")
		mountSpecs, _ := cmd.Flags().GetStringArray("mount")
		labelSpecs, _ := cmd.Flags().GetStringArray("label")

		mounts, err := parseMounts(mountSpecs)
		if err != nil {
			return err
		}
		labels, err := parseLabels(labelSpecs)
		if err != nil {
			return err
		}

		image, command, err := splitImageCommand(args)
		if err != nil {
			return err
		}

		req := runner.Request{
			Name:       name,
			Image:      image,
			Command:    command,
			Timeout:    timeout,
			Env:        env,
			WorkingDir: workdir,
			Mounts:     mounts,
			Labels:     labels,
		}

		outcome, err := app.Run(cmd.Context(), req, options(cmd))
		exitCode = app.ExitCode(outcome, err)
		return err
	},
}

var execCmd = &cobra.Command{
	Use:   "exec",
	Short: "Run the command described by a job file",
	Long: `Exec reads a job YAML file, validates it and runs its command exactly like
'dockexec run' would.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")

		outcome, err := app.Exec(cmd.Context(), file, options(cmd))
		exitCode = app.ExitCode(outcome, err)
		return err
	},
}

var recordCmd = &cobra.Command{
	Use:   "record FILE",
	Short: "Show a run record written with --record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		record, err := app.LoadRecord(args[0])
		if err != nil {
			return err
		}

		output, _ := cmd.Flags().GetString("output")
		return record.Render(cmd.OutOrStdout(), output)
	},
}

func options(cmd *cobra.Command) app.Options {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	recordPath, _ := cmd.Flags().GetString("record")
	grace, _ := cmd.Flags().GetDuration("grace-period")

	return app.Options{
		Config:      cfg,
		Factory:     app.NewRuntimeFactory(),
		Console:     ui.NewConsole(),
		Logger:      slog.Default(),
		DryRun:      dryRun,
		RecordPath:  recordPath,
		GracePeriod: grace,
	}
}

// splitImageCommand separates IMAGE from the command, dropping a "--" separator.
// Flag parsing stops at IMAGE, so the separator arrives as a positional argument.
func splitImageCommand(args []string) (string, []string, error) {
	image, command := args[0], args[1:]
	if len(command) > 0 && command[0] == "--" {
		command = command[1:]
	}
	if len(command) == 0 {
		return "", nil, fmt.Errorf("no command given for image %s", image)
	}
	return image, command, nil
}

// parseMounts parses SOURCE:TARGET[:ro|rw] bind mount flags.
func parseMounts(specs []string) ([]runtime.Mount, error) {
	mounts := make([]runtime.Mount, 0, len(specs))
	for _, spec := range specs {
		parts := strings.Split(spec, ":")
		if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid mount %q: expected SOURCE:TARGET[:ro|rw]", spec)
		}

		m := runtime.Mount{Source: parts[0], Target: parts[1]}
		if len(parts) == 3 {
			switch parts[2] {
			case "ro":
				m.ReadOnly = true
			case "rw":
			default:
				return nil, fmt.Errorf("invalid mount mode %q in %q: expected ro or rw", parts[2], spec)
			}
		}
		mounts = append(mounts, m)
	}
	return mounts, nil
}

// parseLabels parses KEY=VALUE label flags.
func parseLabels(specs []string) (map[string]string, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	labels := make(map[string]string, len(specs))
	for _, spec := range specs {
		key, value, ok := strings.Cut(spec, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid label %q: expected KEY=VALUE", spec)
		}
		labels[key] = value
	}
	return labels, nil
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("dry-run", false, "Validate and print the run without creating a container")
	cmd.Flags().String("record", "", "Write a JSON run record to this path")
	cmd.Flags().Duration("grace-period", 0, "Time between stop and kill on timeout (default from config)")
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a dockexec config YAML file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	runCmd.Flags().SetInterspersed(false)
	runCmd.Flags().Duration("timeout", 0, "Stop the command after this long (0 waits forever)")
	runCmd.Flags().StringArrayP("env", "e", nil, "Set an environment variable (KEY=VALUE)")
	runCmd.Flags().StringP("workdir", "w", "", "Working directory inside the container")
	runCmd.Flags().String("name", "", "Container name (default dockexec-<run id>)")
	runCmd.Flags().StringArray("mount", nil, "Bind mount SOURCE:TARGET[:ro|rw]")
	runCmd.Flags().StringArrayP("label", "l", nil, "Set a container label (KEY=VALUE)")
	addRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)

	execCmd.Flags().StringP("file", "f", "", "Path to the job YAML file (required)")
	addRunFlags(execCmd)
	if err := execCmd.MarkFlagRequired("file"); err != nil {
		slog.Error("Failed to mark file flag as required for exec command", "error", err)
	}
	rootCmd.AddCommand(execCmd)

	recordCmd.Flags().StringP("output", "o", "text", "Output format: text, json or yaml")
	rootCmd.AddCommand(recordCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		apperrors.HandleError(err)
		if exitCode == 0 {
			exitCode = app.ExitCodeFailure
		}
	}
	os.Exit(exitCode)
}
