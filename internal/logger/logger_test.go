package logger

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shaunagostinho/coolmuscle-steer/internal/coolmuscle"
)

func readTrace(t *testing.T, dir string) [][]string {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(dir, "steer_*.csv"))
	if err != nil || len(files) != 1 {
		t.Fatalf("expected one trace file, got %v (%v)", files, err)
	}
	f, err := os.Open(files[0])
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	return rows
}

func TestRecordWritesRows(t *testing.T) {
	dir := t.TempDir()
	l := New(Config{Enabled: true, Path: dir, IntervalMs: 50})
	defer l.Close()

	t0 := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	l.Record(coolmuscle.Sample{Stamp: t0, State: "enabled", Valid: true, Pulse: 500, Rad: 0.785398, Deg: 45})
	l.Record(coolmuscle.Sample{Stamp: t0.Add(10 * time.Millisecond), State: "enabled", Valid: true, Pulse: 501})
	l.Record(coolmuscle.Sample{Stamp: t0.Add(60 * time.Millisecond), State: "disabled", Halted: true})
	l.Close()

	rows := readTrace(t, dir)
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2: %v", len(rows), rows)
	}
	if rows[0][0] != "timestamp" || len(rows[0]) != len(csvHeader) {
		t.Errorf("bad header %v", rows[0])
	}
	if rows[1][1] != "enabled" || rows[1][4] != "500" || rows[1][5] != "0.785398" || rows[1][6] != "45.000" {
		t.Errorf("bad sample row %v", rows[1])
	}
	if rows[2][2] != "1" || rows[2][3] != "0" || rows[2][4] != "" {
		t.Errorf("bad halted row %v", rows[2])
	}
}

func TestRecordDisabled(t *testing.T) {
	dir := t.TempDir()
	l := New(Config{Enabled: false, Path: dir})
	l.Record(coolmuscle.Sample{Stamp: time.Now(), State: "enabled"})

	files, _ := filepath.Glob(filepath.Join(dir, "*.csv"))
	if len(files) != 0 {
		t.Errorf("disabled logger wrote %v", files)
	}

	l.SetEnabled(true)
	if !l.IsEnabled() {
		t.Fatal("IsEnabled() = false after SetEnabled(true)")
	}
	l.Record(coolmuscle.Sample{Stamp: time.Now(), State: "enabled"})
	l.SetEnabled(false)

	if rows := readTrace(t, dir); len(rows) != 2 {
		t.Errorf("got %d rows, want 2", len(rows))
	}
}

func TestNewDefaults(t *testing.T) {
	l := New(Config{})
	if l.dir != "/var/log/steerd" {
		t.Errorf("dir = %q", l.dir)
	}
	if l.interval != 100*time.Millisecond {
		t.Errorf("interval = %v", l.interval)
	}
}
