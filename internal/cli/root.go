// Package cli implements the nagini administrative client commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mattjoyce/nagini/internal/config"
	"github.com/mattjoyce/nagini/internal/fleet"
	"github.com/mattjoyce/nagini/internal/log"
)

// VersionInfo describes the build.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

var versionInfo = VersionInfo{Version: "dev", Commit: "unknown", BuildDate: "unknown"}

// SetVersionInfo records build metadata for the version command.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo = VersionInfo{Version: version, Commit: commit, BuildDate: buildDate}
}

var rootCmd = &cobra.Command{
	Use:   "nagini",
	Short: "Deploy and supervise an application across a fleet of hosts",
	Long: `nagini drives the nagini-server agents listed in a config directory
(nagini.yaml plus host.list): it ships files, starts and stops agents and
application nodes, and watches node output.

Every command needs the config directory, given with --config or NAGINI_CONFIG.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupLogging,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringP("config", "c", "", "config directory or nagini.yaml path")
	pf.String("log-level", "warn", "diagnostic log level (debug, info, warn, error)")
	pf.String("log-format", "text", "diagnostic log format (text, json)")

	viper.SetEnvPrefix("NAGINI")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindPFlag("config", pf.Lookup("config"))
	_ = viper.BindPFlag("log_level", pf.Lookup("log-level"))
	_ = viper.BindPFlag("log_format", pf.Lookup("log-format"))
}

// Execute runs the client with args and returns the process exit code.
func Execute(ctx context.Context, args []string) int {
	rootCmd.SetArgs(args)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
		return 1
	}
	return 0
}

func setupLogging(cmd *cobra.Command, _ []string) error {
	log.SetupWithWriter(cmd.ErrOrStderr(), viper.GetString("log_level"), viper.GetString("log_format"))
	return nil
}

// errNoConfig is returned when neither --config nor NAGINI_CONFIG is set.
var errNoConfig = errors.New("no config given (use --config or NAGINI_CONFIG)")

func loadConfig() (*config.Config, error) {
	path := viper.GetString("config")
	if path == "" {
		return nil, errNoConfig
	}
	return config.Load(config.ExpandHome(path))
}

// newClient is swapped in tests.
var newClient = func(cmd *cobra.Command, cfg *config.Config) *fleet.Client {
	return fleet.New(cfg, fleet.WithOutput(cmd.OutOrStdout()))
}

func loadClient(cmd *cobra.Command) (*fleet.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newClient(cmd, cfg), nil
}

// finish prints a fleet report and turns its non-tolerated failures into the
// command error.
func finish(cmd *cobra.Command, rep *fleet.Report) error {
	if rep == nil {
		return nil
	}
	rep.Print(cmd.ErrOrStderr())
	return rep.Err()
}
