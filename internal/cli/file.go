package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var (
	fileHost           string
	fileLocalPath      string
	fileRemotePath     string
	fileRemoteNodePath string
)

var errRemotePath = errors.New("exactly one of --remote-path or --remote-node-path is required")

var fileCmd = &cobra.Command{
	Use:   "file",
	Short: "Transfer files to and from the agents",
	Long: `Put, get or delete files on the agents.

--remote-path addresses a path on each host. --remote-node-path addresses a path
relative to every node_<id> directory, and ignores --host.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := setupLogging(cmd, args); err != nil {
			return err
		}
		if (fileRemotePath == "") == (fileRemoteNodePath == "") {
			return errRemotePath
		}
		return nil
	},
}

var filePutCmd = &cobra.Command{
	Use:   "put",
	Short: "Send a local file or directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := loadClient(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		switch {
		case fileRemoteNodePath != "":
			rep, err := c.PutNodes(ctx, fileLocalPath, fileRemoteNodePath)
			if err != nil {
				return err
			}
			return finish(cmd, rep)
		case fileHost != "":
			return c.Put(ctx, fileHost, fileLocalPath, fileRemotePath)
		default:
			rep, err := c.PutAll(ctx, fileLocalPath, fileRemotePath)
			if err != nil {
				return err
			}
			return finish(cmd, rep)
		}
	},
}

var fileGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Fetch a remote file or directory",
	Long: `Fetch a remote path into --local-path. With several hosts each copy lands in
<local-path>/<host>; with --remote-node-path in <local-path>/<host>/node_<id>.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := loadClient(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		switch {
		case fileRemoteNodePath != "":
			return finish(cmd, c.GetNodes(ctx, fileRemoteNodePath, fileLocalPath))
		case fileHost != "":
			return c.Get(ctx, fileHost, fileRemotePath, fileLocalPath)
		default:
			return finish(cmd, c.GetAll(ctx, fileRemotePath, fileLocalPath))
		}
	},
}

var fileDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove a remote file or directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := loadClient(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		switch {
		case fileRemoteNodePath != "":
			return finish(cmd, c.DeleteNodes(ctx, fileRemoteNodePath))
		case fileHost != "":
			return c.Delete(ctx, fileHost, fileRemotePath)
		default:
			return finish(cmd, c.DeleteAll(ctx, fileRemotePath))
		}
	},
}

func init() {
	rootCmd.AddCommand(fileCmd)
	pf := fileCmd.PersistentFlags()
	pf.StringVar(&fileHost, "host", "", "single host to address (default: every host)")
	pf.StringVar(&fileRemotePath, "remote-path", "", "remote path")
	pf.StringVar(&fileRemoteNodePath, "remote-node-path", "", "remote path relative to each node directory")

	filePutCmd.Flags().StringVar(&fileLocalPath, "local-path", "", "local file or directory to send")
	_ = filePutCmd.MarkFlagRequired("local-path")
	fileGetCmd.Flags().StringVar(&fileLocalPath, "local-path", ".", "local directory to unpack into")

	fileCmd.AddCommand(filePutCmd, fileGetCmd, fileDeleteCmd)
}
