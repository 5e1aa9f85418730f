package fleet

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/mattjoyce/nagini/internal/protocol"
	"github.com/mattjoyce/nagini/internal/transfer"
)

// Hosts lists the configured hosts in host.list order.
func (c *Client) Hosts() []string {
	return c.cfg.Hosts.Hosts()
}

// AllNodes lists every configured node id in ascending order.
func (c *Client) AllNodes() []int {
	return c.cfg.Hosts.AllNodes()
}

// hostNode is one node addressed through its host.
type hostNode struct {
	host string
	id   int
}

func (c *Client) hostNodes() []hostNode {
	var out []hostNode
	for _, h := range c.Hosts() {
		for _, id := range c.cfg.Hosts.Nodes(h) {
			out = append(out, hostNode{host: h, id: id})
		}
	}
	return out
}

func hostNodeLabel(hn hostNode) string {
	return hn.host + "/node_" + strconv.Itoa(hn.id)
}

// PingAll collects the status of every reachable host.
func (c *Client) PingAll(ctx context.Context) (*Report, []protocol.ServerStatus) {
	hosts := c.Hosts()
	statuses := make([]protocol.ServerStatus, len(hosts))
	reached := make([]bool, len(hosts))
	index := make(map[string]int, len(hosts))
	for i, h := range hosts {
		index[h] = i
	}

	rep := fanOut(ctx, c, "ping", hosts, hostLabel, func(ctx context.Context, h string) error {
		st, err := c.Ping(ctx, h)
		if err != nil {
			return err
		}
		statuses[index[h]] = st
		reached[index[h]] = true
		return nil
	})

	var out []protocol.ServerStatus
	for i, ok := range reached {
		if ok {
			out = append(out, statuses[i])
		}
	}
	return rep, out
}

// StopAll stops every agent.
func (c *Client) StopAll(ctx context.Context) *Report {
	return fanOut(ctx, c, "stop", c.Hosts(), hostLabel, c.Stop)
}

// StartAll launches every agent through the remote shell.
func (c *Client) StartAll(ctx context.Context) *Report {
	return fanOut(ctx, c, "start", c.Hosts(), hostLabel, c.Start)
}

// ReconfigAll reloads configPath on every host in order. It stops at the first
// failure, unreachable hosts included.
func (c *Client) ReconfigAll(ctx context.Context, configPath string) error {
	for _, h := range c.Hosts() {
		if err := c.Reconfig(ctx, h, configPath); err != nil {
			return fmt.Errorf("reconfig %s: %w", h, err)
		}
	}
	return nil
}

// PutAll packs localPath once and sends it under remotePath on every host.
func (c *Client) PutAll(ctx context.Context, localPath, remotePath string) (*Report, error) {
	return c.putAll(ctx, localPath, remotePath, transfer.PackOptions{})
}

func (c *Client) putAll(ctx context.Context, localPath, remotePath string, opts transfer.PackOptions) (*Report, error) {
	a, err := c.pack(localPath, opts)
	if err != nil {
		return nil, err
	}
	defer a.remove()
	return fanOut(ctx, c, "put", c.Hosts(), hostLabel, func(ctx context.Context, h string) error {
		return c.putArchive(ctx, h, a, remotePath)
	}), nil
}

// PutNodes sends localPath under node_<id>/rel for every node.
func (c *Client) PutNodes(ctx context.Context, localPath, rel string) (*Report, error) {
	a, err := c.pack(localPath, transfer.PackOptions{})
	if err != nil {
		return nil, err
	}
	defer a.remove()
	return fanOut(ctx, c, "put", c.hostNodes(), hostNodeLabel, func(ctx context.Context, hn hostNode) error {
		return c.putArchive(ctx, hn.host, a, c.NodePath(hn.id, rel))
	}), nil
}

// GetAll fetches remotePath from every host into localDir/<host>.
func (c *Client) GetAll(ctx context.Context, remotePath, localDir string) *Report {
	return fanOut(ctx, c, "get", c.Hosts(), hostLabel, func(ctx context.Context, h string) error {
		return c.Get(ctx, h, remotePath, filepath.Join(localDir, h))
	})
}

// GetNodes fetches node_<id>/rel from every node into localDir/<host>/node_<id>.
func (c *Client) GetNodes(ctx context.Context, rel, localDir string) *Report {
	return fanOut(ctx, c, "get", c.hostNodes(), hostNodeLabel, func(ctx context.Context, hn hostNode) error {
		dest := filepath.Join(localDir, hn.host, "node_"+strconv.Itoa(hn.id))
		return c.Get(ctx, hn.host, c.NodePath(hn.id, rel), dest)
	})
}

// DeleteAll removes remotePath on every host.
func (c *Client) DeleteAll(ctx context.Context, remotePath string) *Report {
	return fanOut(ctx, c, "delete", c.Hosts(), hostLabel, func(ctx context.Context, h string) error {
		return c.Delete(ctx, h, remotePath)
	})
}

// DeleteNodes removes node_<id>/rel on every node.
func (c *Client) DeleteNodes(ctx context.Context, rel string) *Report {
	return fanOut(ctx, c, "delete", c.hostNodes(), hostNodeLabel, func(ctx context.Context, hn hostNode) error {
		return c.Delete(ctx, hn.host, c.NodePath(hn.id, rel))
	})
}

// StartNodes starts the application of every node in ids.
func (c *Client) StartNodes(ctx context.Context, ids []int) *Report {
	return fanOut(ctx, c, "start", ids, nodeLabel, c.StartNode)
}

// StopNodes stops the application of every node in ids.
func (c *Client) StopNodes(ctx context.Context, ids []int) *Report {
	return fanOut(ctx, c, "stop", ids, nodeLabel, c.StopNode)
}
