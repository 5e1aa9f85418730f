package fleet

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/mattjoyce/nagini/internal/protocol"
)

// Outcome is the result of one operation on one target.
type Outcome struct {
	Target string
	Err    error
}

// Unreachable reports whether the target could not be connected to.
func (o Outcome) Unreachable() bool {
	return protocol.IsConnectionError(o.Err)
}

// Report collects the per-target outcomes of a fleet operation.
type Report struct {
	Op       string
	Outcomes []Outcome
}

// Merge appends the outcomes of o.
func (r *Report) Merge(o *Report) {
	if o == nil {
		return
	}
	r.Outcomes = append(r.Outcomes, o.Outcomes...)
}

// Failed lists every outcome with an error, unreachable targets included.
func (r *Report) Failed() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// Err joins the failures that are not tolerated. Unreachable hosts are
// tolerated; any other failure is not.
func (r *Report) Err() error {
	var errs []error
	for _, o := range r.Outcomes {
		if o.Err != nil && !o.Unreachable() {
			errs = append(errs, fmt.Errorf("%s: %w", o.Target, o.Err))
		}
	}
	return errors.Join(errs...)
}

// Print writes one summary line per target.
func (r *Report) Print(w io.Writer) {
	for _, o := range r.Outcomes {
		switch {
		case o.Err == nil:
			fmt.Fprintf(w, "%s %s: ok\n", r.Op, o.Target)
		case o.Unreachable():
			fmt.Fprintf(w, "%s %s: unreachable (%v)\n", r.Op, o.Target, o.Err)
		default:
			fmt.Fprintf(w, "%s %s: failed (%v)\n", r.Op, o.Target, o.Err)
		}
	}
}

func (c *Client) parallelism() int {
	if n := c.cfg.Client.Fleet.Parallelism; n > 0 {
		return n
	}
	return 1
}

// fanOut runs fn for every target, at most parallelism at a time, and never
// stops early on a per-target failure.
func fanOut[T any](ctx context.Context, c *Client, op string, targets []T, label func(T) string, fn func(context.Context, T) error) *Report {
	rep := &Report{Op: op, Outcomes: make([]Outcome, len(targets))}

	var g errgroup.Group
	g.SetLimit(c.parallelism())
	for i, t := range targets {
		g.Go(func() error {
			name := label(t)
			err := fn(ctx, t)
			rep.Outcomes[i] = Outcome{Target: name, Err: err}
			switch {
			case err == nil:
			case protocol.IsConnectionError(err):
				c.logger.Warn("target unreachable, skipping", "op", op, "target", name, "error", err)
			default:
				c.logger.Error("operation failed", "op", op, "target", name, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return rep
}

func hostLabel(h string) string { return h }

func nodeLabel(id int) string { return fmt.Sprintf("node %d", id) }
