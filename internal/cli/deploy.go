package cli

import (
	"github.com/spf13/cobra"
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Build and ship the application or the configuration",
}

var deployAppCmd = &cobra.Command{
	Use:   "app",
	Short: "Fetch, build and put the application on every host",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := loadClient(cmd)
		if err != nil {
			return err
		}
		rep, err := c.DeployApp(cmd.Context())
		if err != nil {
			return err
		}
		return finish(cmd, rep)
	},
}

var deployConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Replace the config directory on every host and reload it",
	Long: `Delete the remote config directory on every host, put the local config
directory in its place and reload every agent.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := loadClient(cmd)
		if err != nil {
			return err
		}
		rep, err := c.DeployConfig(cmd.Context(), c.Config().Dir)
		if rep != nil {
			rep.Print(cmd.ErrOrStderr())
		}
		if err != nil {
			return err
		}
		return rep.Err()
	},
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Stop every node and remove the application or configuration",
}

var cleanAppCmd = &cobra.Command{
	Use:   "app",
	Short: "Remove the application directory on every host",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := loadClient(cmd)
		if err != nil {
			return err
		}
		return finish(cmd, c.CleanApp(cmd.Context()))
	},
}

var cleanConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Remove the config directory on every host",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := loadClient(cmd)
		if err != nil {
			return err
		}
		return finish(cmd, c.CleanConfig(cmd.Context()))
	},
}

func init() {
	rootCmd.AddCommand(deployCmd, cleanCmd)
	deployCmd.AddCommand(deployAppCmd, deployConfigCmd)
	cleanCmd.AddCommand(cleanAppCmd, cleanConfigCmd)
}
