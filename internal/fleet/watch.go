package fleet

import (
	"context"
	"fmt"
	"time"
)

// WatchNode polls one node every interval until it stops running or ctx ends.
func (c *Client) WatchNode(ctx context.Context, nodeID int, interval time.Duration, tail int) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		running, err := c.WatchOnce(ctx, nodeID, tail)
		if err != nil {
			return err
		}
		if !running {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// WatchNodes polls ids every interval. A node leaves the set as soon as a poll
// reports it not running or its host cannot be reached; the watch ends when
// the set is empty.
func (c *Client) WatchNodes(ctx context.Context, ids []int, interval time.Duration, tail int) error {
	active := append([]int(nil), ids...)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for len(active) > 0 {
		next := make([]int, 0, len(active))
		for _, id := range active {
			running, err := c.WatchOnce(ctx, id, tail)
			if err != nil {
				c.logger.Warn("watch poll failed", "node_id", id, "error", err)
			}
			if err != nil || !running {
				fmt.Fprintf(c.out, "node %d is not running application, removed from watch list.\n", id)
				continue
			}
			next = append(next, id)
		}
		active = next
		if len(active) == 0 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return ctx.Err()
}
