package cli

import (
	"github.com/spf13/cobra"

	"github.com/mattjoyce/nagini/internal/fleet"
	"github.com/mattjoyce/nagini/internal/protocol"
)

var controlHost string

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Control the nagini-server agents",
	Long: `Ping, stop, start or reload the agents. Without --host the command runs
against every host in host.list.`,
}

var controlPingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Show agent status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := loadClient(cmd)
		if err != nil {
			return err
		}
		if controlHost != "" {
			st, err := c.Ping(cmd.Context(), controlHost)
			if err != nil {
				return err
			}
			fleet.RenderStatus(cmd.OutOrStdout(), fleet.NewDefaultTheme(), []protocol.ServerStatus{st})
			return nil
		}
		rep, statuses := c.PingAll(cmd.Context())
		fleet.RenderStatus(cmd.OutOrStdout(), fleet.NewDefaultTheme(), statuses)
		return finish(cmd, rep)
	},
}

var controlStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop agents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := loadClient(cmd)
		if err != nil {
			return err
		}
		if controlHost != "" {
			return c.Stop(cmd.Context(), controlHost)
		}
		return finish(cmd, c.StopAll(cmd.Context()))
	},
}

var controlStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Launch agents through the remote shell",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := loadClient(cmd)
		if err != nil {
			return err
		}
		if controlHost != "" {
			return c.Start(cmd.Context(), controlHost)
		}
		return finish(cmd, c.StartAll(cmd.Context()))
	},
}

var reconfigPath string

var controlReconfigCmd = &cobra.Command{
	Use:   "reconfig",
	Short: "Reload the agent configuration",
	Long: `Reload the configuration on the agents. --path defaults to the remote config
directory. Hosts are reloaded in host.list order and the command stops at the
first failure.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := loadClient(cmd)
		if err != nil {
			return err
		}
		path := reconfigPath
		if path == "" {
			path = c.Layout().ConfigPath()
		}
		if controlHost != "" {
			return c.Reconfig(cmd.Context(), controlHost, path)
		}
		return c.ReconfigAll(cmd.Context(), path)
	},
}

func init() {
	rootCmd.AddCommand(controlCmd)
	controlCmd.PersistentFlags().StringVar(&controlHost, "host", "", "single host to address (default: every host)")
	controlCmd.AddCommand(controlPingCmd, controlStopCmd, controlStartCmd, controlReconfigCmd)
	controlReconfigCmd.Flags().StringVar(&reconfigPath, "path", "", "remote config path to load")
}
