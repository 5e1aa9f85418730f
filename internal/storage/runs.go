package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/nagini/internal/supervisor"
)

// RunRecord is one row of the run ledger.
type RunRecord struct {
	ID         string    `json:"id"`
	NodeID     int       `json:"node_id"`
	JobName    string    `json:"job_name"`
	Argv       []string  `json:"argv"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
	ExitCode   int       `json:"exit_code"`
	ArchiveLog string    `json:"archive_log,omitempty"`
}

// RunLog records finished node jobs.
type RunLog struct {
	db *sql.DB
}

func NewRunLog(db *sql.DB) *RunLog {
	return &RunLog{db: db}
}

// RecordRun implements supervisor.Recorder.
func (l *RunLog) RecordRun(ctx context.Context, run supervisor.Run) error {
	argv, err := json.Marshal(run.Argv)
	if err != nil {
		return fmt.Errorf("encode argv: %w", err)
	}
	var archive any
	if run.ArchiveLog != "" {
		archive = run.ArchiveLog
	}

	_, err = l.db.ExecContext(ctx, `
INSERT INTO run_log(id, node_id, job_name, argv, started_at, ended_at, exit_code, archive_log)
VALUES(?, ?, ?, ?, ?, ?, ?, ?);
`, uuid.NewString(), run.NodeID, run.JobName, string(argv),
		run.StartedAt.UTC().Format(time.RFC3339Nano), run.EndedAt.UTC().Format(time.RFC3339Nano),
		run.ExitCode, archive)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// ListRuns returns up to limit runs of a node, newest first.
func (l *RunLog) ListRuns(ctx context.Context, nodeID, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `
SELECT id, node_id, job_name, argv, started_at, ended_at, exit_code, archive_log
FROM run_log
WHERE node_id = ?
ORDER BY started_at DESC, rowid DESC
LIMIT ?;
`, nodeID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			r          RunRecord
			argv       string
			startedAtS string
			endedAtS   string
			archive    sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.NodeID, &r.JobName, &argv, &startedAtS, &endedAtS, &r.ExitCode, &archive); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if err := json.Unmarshal([]byte(argv), &r.Argv); err != nil {
			return nil, fmt.Errorf("decode argv: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, startedAtS); err == nil {
			r.StartedAt = t
		}
		if t, err := time.Parse(time.RFC3339Nano, endedAtS); err == nil {
			r.EndedAt = t
		}
		r.ArchiveLog = archive.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}
