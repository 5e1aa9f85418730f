package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mattjoyce/nagini/internal/supervisor"
)

func openTestDB(t *testing.T) *RunLog {
	t.Helper()
	db, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "nagini", "history.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewRunLog(db)
}

func TestOpenSQLiteBootstrapsTables(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "history.db")
	db, err := OpenSQLite(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	var name string
	if err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?;", "run_log").Scan(&name); err != nil {
		t.Fatalf("table run_log missing: %v", err)
	}
}

func TestOpenSQLiteRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	if _, err := OpenSQLite(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestRunLogRecordAndList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	runs := openTestDB(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		err := runs.RecordRun(ctx, supervisor.Run{
			NodeID:     1,
			JobName:    "application-1",
			Argv:       []string{"java", "-cp", "a.jar", "Main"},
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
			EndedAt:    base.Add(time.Duration(i)*time.Minute + 30*time.Second),
			ExitCode:   i,
			ArchiveLog: "/opt/nagini/node_1/application.log.1.2",
		})
		if err != nil {
			t.Fatalf("RecordRun: %v", err)
		}
	}
	if err := runs.RecordRun(ctx, supervisor.Run{NodeID: 2, JobName: "application-2", StartedAt: base, EndedAt: base}); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	got, err := runs.ListRuns(ctx, 1, 2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(got))
	}
	if got[0].ExitCode != 2 || got[1].ExitCode != 1 {
		t.Fatalf("expected newest first, got exit codes %d,%d", got[0].ExitCode, got[1].ExitCode)
	}
	if !got[0].StartedAt.Equal(base.Add(2 * time.Minute)) {
		t.Fatalf("unexpected started_at %v", got[0].StartedAt)
	}
	if len(got[0].Argv) != 4 || got[0].Argv[3] != "Main" {
		t.Fatalf("argv not preserved: %v", got[0].Argv)
	}

	other, err := runs.ListRuns(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(other) != 1 || other[0].ArchiveLog != "" {
		t.Fatalf("unexpected node 2 runs: %+v", other)
	}
	if other[0].Argv != nil && len(other[0].Argv) != 0 {
		t.Fatalf("expected empty argv, got %v", other[0].Argv)
	}
}
