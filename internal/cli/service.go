package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/nagini/internal/fleet"
)

var (
	serviceNodes    []int
	serviceAllNodes bool
	watchInterval   time.Duration
	watchTail       int
)

var errNoNodes = errors.New("one of --nodes or --all-nodes is required")

// selectNodes resolves --nodes/--all-nodes.
func selectNodes(c *fleet.Client) ([]int, error) {
	if serviceAllNodes {
		if len(serviceNodes) > 0 {
			return nil, errors.New("--nodes and --all-nodes are mutually exclusive")
		}
		return c.AllNodes(), nil
	}
	if len(serviceNodes) == 0 {
		return nil, errNoNodes
	}
	return serviceNodes, nil
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the application on nodes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := loadClient(cmd)
		if err != nil {
			return err
		}
		ids, err := selectNodes(c)
		if err != nil {
			return err
		}
		return finish(cmd, c.StartNodes(cmd.Context(), ids))
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the application on nodes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := loadClient(cmd)
		if err != nil {
			return err
		}
		ids, err := selectNodes(c)
		if err != nil {
			return err
		}
		return finish(cmd, c.StopNodes(cmd.Context(), ids))
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow application output on nodes",
	Long: `Poll the output of the selected nodes until none is running the application.
A node that stops running, or whose host cannot be reached, leaves the watch.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := loadClient(cmd)
		if err != nil {
			return err
		}
		ids, err := selectNodes(c)
		if err != nil {
			return err
		}
		fleetCfg := c.Config().Client.Fleet
		interval := watchInterval
		if !cmd.Flags().Changed("interval") {
			interval = fleetCfg.WatchInterval
		}
		tail := watchTail
		if !cmd.Flags().Changed("tail") {
			tail = fleetCfg.WatchTail
		}
		if len(ids) == 1 {
			return c.WatchNode(cmd.Context(), ids[0], interval, tail)
		}
		return c.WatchNodes(cmd.Context(), ids, interval, tail)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{startCmd, stopCmd, watchCmd} {
		cmd.Flags().IntSliceVar(&serviceNodes, "nodes", nil, "node ids, e.g. 1,2")
		cmd.Flags().BoolVar(&serviceAllNodes, "all-nodes", false, "address every configured node")
		rootCmd.AddCommand(cmd)
	}
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 5*time.Second, "poll interval")
	watchCmd.Flags().IntVar(&watchTail, "tail", 0, "lines to show on the first poll (0 shows everything buffered)")
}
