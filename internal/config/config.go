package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/stackup/internal/logger"
	"github.com/loykin/stackup/internal/process"
)

// FileConfig represents the top-level TOML structure of stackup.toml.
type FileConfig struct {
	Env      []string        `toml:"env" mapstructure:"env"`
	EnvFiles []string        `toml:"env_files" mapstructure:"env_files"`
	UseOSEnv bool            `toml:"use_os_env" mapstructure:"use_os_env"`
	Log      *LogConfig      `toml:"log" mapstructure:"log"`
	Journal  JournalConfig   `toml:"journal" mapstructure:"journal"`
	Server   ServerConfig    `toml:"server" mapstructure:"server"`
	Reclaim  ReclaimConfig   `toml:"reclaim" mapstructure:"reclaim"`
	Codegen  CodegenConfig   `toml:"codegen" mapstructure:"codegen"`
	Client   ClientConfig    `toml:"client" mapstructure:"client"`
	Services []ServiceConfig `toml:"services" mapstructure:"services"`
}

type LogConfig struct {
	Dir        string `toml:"dir" mapstructure:"dir"`
	Stdout     string `toml:"stdout" mapstructure:"stdout"`
	Stderr     string `toml:"stderr" mapstructure:"stderr"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

// JournalConfig selects where run history is persisted. Empty DSN disables
// the journal.
type JournalConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

// ServerConfig configures the status endpoint served while the stack runs.
// Empty listen address disables it.
type ServerConfig struct {
	Listen string `toml:"listen" mapstructure:"listen"`
}

type ReclaimConfig struct {
	Grace time.Duration `toml:"grace" mapstructure:"grace"`
}

type CodegenConfig struct {
	Command  string   `toml:"command" mapstructure:"command"`
	ProtoDir string   `toml:"proto_dir" mapstructure:"proto_dir"`
	OutDir   string   `toml:"out_dir" mapstructure:"out_dir"`
	WorkDir  string   `toml:"workdir" mapstructure:"workdir"`
	Env      []string `toml:"env" mapstructure:"env"`
}

// ClientConfig describes the foreground client process the supervisor blocks
// on; its exit tears down the stack.
type ClientConfig struct {
	Command string   `toml:"command" mapstructure:"command"`
	WorkDir string   `toml:"workdir" mapstructure:"workdir"`
	Env     []string `toml:"env" mapstructure:"env"`
}

type ServiceConfig struct {
	Name          string        `toml:"name" mapstructure:"name"`
	WorkDir       string        `toml:"workdir" mapstructure:"workdir"`
	Build         string        `toml:"build" mapstructure:"build"`
	Binary        string        `toml:"binary" mapstructure:"binary"`
	Args          []string      `toml:"args" mapstructure:"args"`
	Port          int           `toml:"port" mapstructure:"port"`
	Order         int           `toml:"order" mapstructure:"order"`
	Env           []string      `toml:"env" mapstructure:"env"`
	StartDelay    time.Duration `toml:"start_delay" mapstructure:"start_delay"`
	StartDuration time.Duration `toml:"startsecs" mapstructure:"startsecs"`
	StopWait      time.Duration `toml:"stop_wait" mapstructure:"stop_wait"`
	Log           *LogConfig    `toml:"log" mapstructure:"log"`
}

// Load parses and validates a stackup TOML config file.
func Load(path string) (*FileConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, err
	}
	if err := fc.Validate(); err != nil {
		return nil, err
	}
	return &fc, nil
}

// Validate enforces the launcher invariants a config must satisfy before any
// phase runs: unique names, unique ports, valid port range, runnable binaries.
func (fc *FileConfig) Validate() error {
	if len(fc.Services) == 0 {
		return fmt.Errorf("config declares no services")
	}
	names := make(map[string]struct{}, len(fc.Services))
	ports := make(map[int]string, len(fc.Services))
	for i, sc := range fc.Services {
		if strings.TrimSpace(sc.Name) == "" {
			return fmt.Errorf("services[%d]: name is required", i)
		}
		if _, dup := names[sc.Name]; dup {
			return fmt.Errorf("duplicate service name %q", sc.Name)
		}
		names[sc.Name] = struct{}{}
		if sc.Port < 1 || sc.Port > 65535 {
			return fmt.Errorf("service %q: port %d out of range", sc.Name, sc.Port)
		}
		if holder, dup := ports[sc.Port]; dup {
			return fmt.Errorf("services %q and %q share port %d", holder, sc.Name, sc.Port)
		}
		ports[sc.Port] = sc.Name
		if strings.TrimSpace(sc.Binary) == "" {
			return fmt.Errorf("service %q: binary is required", sc.Name)
		}
	}
	return nil
}

// Specs converts the configured services to launch specs in startup order
// (ascending order index, ties broken by name).
func (fc *FileConfig) Specs() []process.Spec {
	specs := make([]process.Spec, 0, len(fc.Services))
	for _, sc := range fc.Services {
		specs = append(specs, process.Spec{
			Name:          sc.Name,
			WorkDir:       sc.WorkDir,
			Binary:        sc.Binary,
			Args:          append([]string(nil), sc.Args...),
			Port:          sc.Port,
			Order:         sc.Order,
			Env:           append([]string(nil), sc.Env...),
			StartDelay:    sc.StartDelay,
			StartDuration: sc.StartDuration,
			StopWait:      sc.StopWait,
			Log:           mergeLogConfig(fc.Log, sc.Log),
		})
	}
	sort.SliceStable(specs, func(i, j int) bool {
		if specs[i].Order != specs[j].Order {
			return specs[i].Order < specs[j].Order
		}
		return specs[i].Name < specs[j].Name
	})
	return specs
}

// SortedServices returns the configured services in startup order, matching
// the ordering of Specs.
func (fc *FileConfig) SortedServices() []ServiceConfig {
	out := append([]ServiceConfig(nil), fc.Services...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// GlobalEnv merges env sources for the whole run. Precedence: OS env (when
// enabled) provides the base; env_files apply next in order; the top-level env
// list overrides last.
func (fc *FileConfig) GlobalEnv() ([]string, error) {
	m := make(map[string]string)
	if fc.UseOSEnv {
		for _, kv := range os.Environ() {
			if i := strings.IndexByte(kv, '='); i >= 0 {
				m[kv[:i]] = kv[i+1:]
			}
		}
	}
	for _, p := range fc.EnvFiles {
		pairs, err := loadEnvFile(p)
		if err != nil {
			return nil, err
		}
		for k, v := range pairs {
			m[k] = v
		}
	}
	for _, kv := range fc.Env {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out, nil
}

// loadEnvFile parses a simple .env file with KEY=VALUE lines (no export, no
// quotes). Lines starting with # are ignored.
func loadEnvFile(path string) (map[string]string, error) {
	clean := filepath.Clean(path)
	b, err := os.ReadFile(clean)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i >= 0 {
			k := strings.TrimSpace(line[:i])
			v := strings.TrimSpace(line[i+1:])
			m[k] = v
		}
	}
	return m, nil
}

func mergeLogConfig(global, per *LogConfig) logger.Config {
	var lc logger.Config
	if global != nil {
		lc = logger.Config{
			Dir:        global.Dir,
			StdoutPath: global.Stdout,
			StderrPath: global.Stderr,
			MaxSizeMB:  global.MaxSizeMB,
			MaxBackups: global.MaxBackups,
			MaxAgeDays: global.MaxAgeDays,
			Compress:   global.Compress,
		}
		// A shared stdout/stderr path would interleave services; per-service
		// files are derived from Dir instead.
		lc.StdoutPath = ""
		lc.StderrPath = ""
	}
	if per != nil {
		if per.Dir != "" {
			lc.Dir = per.Dir
		}
		if per.Stdout != "" {
			lc.StdoutPath = per.Stdout
		}
		if per.Stderr != "" {
			lc.StderrPath = per.Stderr
		}
		if per.MaxSizeMB != 0 {
			lc.MaxSizeMB = per.MaxSizeMB
		}
		if per.MaxBackups != 0 {
			lc.MaxBackups = per.MaxBackups
		}
		if per.MaxAgeDays != 0 {
			lc.MaxAgeDays = per.MaxAgeDays
		}
		if per.Compress {
			lc.Compress = true
		}
	}
	return lc
}
