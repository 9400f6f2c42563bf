package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/clustercheck/clustercheck/pkg/config"
	"github.com/clustercheck/clustercheck/pkg/verdict"
	"github.com/clustercheck/clustercheck/pkg/version"
)

const pluginName = "CheckCluster"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, os.Getenv))
}

// run executes the CLI and returns the process exit code.
func run(args []string, stdout, stderr io.Writer, getenv func(string) string) int {
	app := &cli{stdout: stdout, stderr: stderr, getenv: getenv, exitCode: verdict.StatusOK.ExitCode()}

	root := app.rootCommand()
	root.SetArgs(attachFlagValues(args))
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			return exit.code
		}
		// Flag and argument errors never reach a command body.
		app.report(verdict.StatusUnknown, err.Error())
		return verdict.StatusUnknown.ExitCode()
	}
	return app.exitCode
}

type cli struct {
	stdout     io.Writer
	stderr     io.Writer
	getenv     func(string) string
	configPath string
	exitCode   int
}

// exitError carries an exit code for problems already reported to the user.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "check-cluster",
		Short:         "Fleet-wide verdict for a periodic check, computed once per interval",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", config.DefaultConfigPath, "path to configuration file")

	root.AddCommand(c.runCommand())
	root.AddCommand(c.summaryCommand())
	root.AddCommand(c.validateCommand())
	root.AddCommand(c.versionCommand())
	return root
}

func (c *cli) validateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-config",
		Short: "Validate the configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := config.Load(c.configPath); err != nil {
				fmt.Fprintf(c.stderr, "configuration invalid: %v\n", err)
				return &exitError{code: verdict.StatusUnknown.ExitCode()}
			}
			fmt.Fprintf(c.stdout, "configuration at %s is valid\n", c.configPath)
			return nil
		},
	}
}

func (c *cli) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(c.stdout, version.Current())
		},
	}
}

// report prints the plugin status line and records the exit code.
func (c *cli) report(status verdict.Status, message string) {
	fmt.Fprintf(c.stdout, "%s %s: %s\n", pluginName, status, message)
	c.exitCode = status.ExitCode()
}
