package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stackup.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validConfig = `
env = ["RUST_LOG=info"]

[codegen]
command = "protoc --python_out=gen proto/*.proto"
proto_dir = "proto"
out_dir = "gen"

[client]
command = "python director/main.py"

[[services]]
name = "gateway"
workdir = "services/gateway"
build = "cargo build --release"
binary = "target/release/gateway"
port = 50050
order = 2

[[services]]
name = "engine"
workdir = "services/engine"
build = "cargo build --release"
binary = "target/release/engine"
port = 50051
order = 0

[[services]]
name = "files"
workdir = "services/files"
build = "cargo build --release"
binary = "target/release/files"
port = 50052
order = 1
startsecs = "2s"
stop_wait = "5s"
`

func TestLoadValidConfig(t *testing.T) {
	fc, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(fc.Services) != 3 {
		t.Fatalf("services = %d, want 3", len(fc.Services))
	}
	if fc.Codegen.Command == "" || fc.Client.Command == "" {
		t.Fatalf("codegen/client not parsed: %+v", fc)
	}
}

func TestSpecsSortedByOrder(t *testing.T) {
	fc, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	specs := fc.Specs()
	want := []string{"engine", "files", "gateway"}
	for i, name := range want {
		if specs[i].Name != name {
			t.Fatalf("specs[%d] = %q, want %q (full: %+v)", i, specs[i].Name, name, specs)
		}
	}
	if specs[1].StartDuration != 2*time.Second || specs[1].StopWait != 5*time.Second {
		t.Fatalf("durations not parsed: %+v", specs[1])
	}
	if specs[0].Binary != "target/release/engine" || specs[0].WorkDir != "services/engine" {
		t.Fatalf("spec fields lost: %+v", specs[0])
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			"no services",
			`env = []`,
			"no services",
		},
		{
			"duplicate name",
			`[[services]]
name = "a"
binary = "x"
port = 50050
[[services]]
name = "a"
binary = "y"
port = 50051`,
			"duplicate service name",
		},
		{
			"duplicate port",
			`[[services]]
name = "a"
binary = "x"
port = 50050
[[services]]
name = "b"
binary = "y"
port = 50050`,
			"share port",
		},
		{
			"port out of range",
			`[[services]]
name = "a"
binary = "x"
port = 70000`,
			"out of range",
		},
		{
			"missing binary",
			`[[services]]
name = "a"
port = 50050`,
			"binary is required",
		},
		{
			"missing name",
			`[[services]]
binary = "x"
port = 50050`,
			"name is required",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want substring %q", err, tc.want)
			}
		})
	}
}

func TestGlobalEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "stack.env")
	if err := os.WriteFile(envFile, []byte("# comment\nFROM_FILE=file\nSHARED=file\n"), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	fc := &FileConfig{
		Env:      []string{"SHARED=config", "FROM_CFG=cfg"},
		EnvFiles: []string{envFile},
	}
	kvs, err := fc.GlobalEnv()
	if err != nil {
		t.Fatalf("GlobalEnv: %v", err)
	}
	m := map[string]string{}
	for _, kv := range kvs {
		i := strings.IndexByte(kv, '=')
		m[kv[:i]] = kv[i+1:]
	}
	if m["FROM_FILE"] != "file" || m["FROM_CFG"] != "cfg" {
		t.Fatalf("env sources lost: %v", m)
	}
	if m["SHARED"] != "config" {
		t.Fatalf("config env should override env file: got %q", m["SHARED"])
	}
}

func TestGlobalEnvMissingFile(t *testing.T) {
	fc := &FileConfig{EnvFiles: []string{"/nonexistent/stack.env"}}
	if _, err := fc.GlobalEnv(); err == nil {
		t.Fatalf("expected error for missing env file")
	}
}

func TestMergeLogConfigClearsSharedPaths(t *testing.T) {
	global := &LogConfig{Dir: "/var/log/stack", Stdout: "/var/log/all.out", MaxSizeMB: 20}
	lc := mergeLogConfig(global, nil)
	if lc.Dir != "/var/log/stack" || lc.MaxSizeMB != 20 {
		t.Fatalf("global settings lost: %+v", lc)
	}
	if lc.StdoutPath != "" {
		t.Fatalf("shared stdout path must not propagate: %+v", lc)
	}

	per := &LogConfig{Stdout: "/var/log/svc.out"}
	lc = mergeLogConfig(global, per)
	if lc.StdoutPath != "/var/log/svc.out" {
		t.Fatalf("per-service override lost: %+v", lc)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
