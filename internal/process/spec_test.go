package process

import (
	"path/filepath"
	"testing"
)

func TestBinaryPathResolution(t *testing.T) {
	cases := []struct {
		name    string
		workdir string
		binary  string
		want    string
	}{
		{"absolute", "/srv/app", "/usr/bin/service", "/usr/bin/service"},
		{"relative against workdir", "/srv/app", "target/release/service", filepath.Join("/srv/app", "target/release/service")},
		{"relative no workdir", "", "bin/service", "bin/service"},
		{"empty", "/srv/app", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := Spec{WorkDir: tc.workdir, Binary: tc.binary}
			if got := s.BinaryPath(); got != tc.want {
				t.Fatalf("BinaryPath() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestBuildCommandUsesArgsDirectly(t *testing.T) {
	s := Spec{Binary: "/bin/echo", Args: []string{"a b", "c"}}
	cmd := s.BuildCommand()
	if cmd.Path != "/bin/echo" {
		t.Fatalf("path = %q", cmd.Path)
	}
	// args are passed through verbatim, never re-split by a shell
	if len(cmd.Args) != 3 || cmd.Args[1] != "a b" || cmd.Args[2] != "c" {
		t.Fatalf("args = %#v", cmd.Args)
	}
}
