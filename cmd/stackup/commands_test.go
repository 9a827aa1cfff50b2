package main

import (
	"net"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func writeTOML(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write toml: %v", err)
	}
	return p
}

func TestBuildRootHasSubcommands(t *testing.T) {
	root := buildRoot()
	want := map[string]bool{
		"up": false, "build": false, "gen": false, "reclaim": false,
		"status": false, "history": false, "version": false,
	}
	for _, sub := range root.Commands() {
		if _, ok := want[sub.Name()]; ok {
			want[sub.Name()] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Fatalf("subcommand %q not registered", name)
		}
	}
}

func TestLoadStackBadPath(t *testing.T) {
	c := command{flags: &GlobalFlags{ConfigPath: "/nonexistent/stackup.toml"}}
	if _, _, err := c.loadStack(); err == nil {
		t.Fatalf("expected error for missing config")
	}
}

func TestBuildCommandRunsConfiguredBuilds(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix sh")
	}
	dir := t.TempDir()
	cfg := `
[[services]]
name = "svc"
workdir = "` + dir + `"
build = "sh -c 'echo built > marker'"
binary = "/bin/true"
port = 50099
`
	path := writeTOML(t, dir, "stackup.toml", cfg)
	c := command{flags: &GlobalFlags{ConfigPath: path}}
	if err := c.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "marker")); err != nil {
		t.Fatalf("build did not run: %v", err)
	}
}

func TestGenWithoutCodegenConfigured(t *testing.T) {
	dir := t.TempDir()
	cfg := `
[[services]]
name = "svc"
binary = "/bin/true"
port = 50098
`
	path := writeTOML(t, dir, "stackup.toml", cfg)
	c := command{flags: &GlobalFlags{ConfigPath: path}}
	if err := c.Gen(); err == nil {
		t.Fatalf("expected error when no codegen command is configured")
	}
}

func TestReclaimSinglePortFreeIsNoop(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	c := command{flags: &GlobalFlags{}}
	if err := c.Reclaim(ReclaimFlags{Port: port, Grace: 100 * time.Millisecond}); err != nil {
		t.Fatalf("Reclaim: %v", err)
	}
}

func TestHistoryWithoutJournalConfigured(t *testing.T) {
	dir := t.TempDir()
	cfg := `
[[services]]
name = "svc"
binary = "/bin/true"
port = 50097
`
	path := writeTOML(t, dir, "stackup.toml", cfg)
	c := command{flags: &GlobalFlags{ConfigPath: path}}
	if err := c.History(HistoryFlags{Limit: 5}); err == nil {
		t.Fatalf("expected error when no journal DSN is configured")
	}
}

func TestHistoryWithSqliteJournal(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.ToSlash(filepath.Join(dir, "journal.db"))
	cfg := `
[journal]
dsn = "` + dbPath + `"

[[services]]
name = "svc"
binary = "/bin/true"
port = 50096
`
	path := writeTOML(t, dir, "stackup.toml", cfg)
	c := command{flags: &GlobalFlags{ConfigPath: path}}
	if err := c.History(HistoryFlags{Limit: 5}); err != nil {
		t.Fatalf("History: %v", err)
	}
}

func TestRunStatusUnreachable(t *testing.T) {
	err := runStatus(StatusFlags{URL: "http://127.0.0.1:1", Timeout: 500 * time.Millisecond})
	if err == nil {
		t.Fatalf("expected error for unreachable endpoint")
	}
}
