package config

import (
	"errors"
	"time"
)

// ErrInvalid wraps every configuration error.
var ErrInvalid = errors.New("invalid configuration")

const (
	// FileName is the main configuration file inside a config directory.
	FileName = "nagini.yaml"
	// HostListName lists hosts and their node ids, one host per line.
	HostListName = "host.list"
)

// Config represents the complete nagini configuration shared by client and agents.
type Config struct {
	LogLevel  string       `yaml:"log_level"`
	LogFormat string       `yaml:"log_format"`
	Server    ServerConfig `yaml:"server"`
	Client    ClientConfig `yaml:"client"`

	// Dir is the absolute config directory the file was loaded from.
	Dir string `yaml:"-"`
	// Hosts is parsed from host.list.
	Hosts *HostMap `yaml:"-"`
}

// ServerConfig defines the agent side: where it lives and what it runs.
type ServerConfig struct {
	User         string     `yaml:"user"`
	BasePath     string     `yaml:"base_path"`
	TempPath     string     `yaml:"temp_path"`
	Port         int        `yaml:"port"`
	WatchEnabled bool       `yaml:"watch_enabled"`
	StartScript  string     `yaml:"start_script"`
	HistoryPath  string     `yaml:"history_path"`
	HTTP         HTTPConfig `yaml:"http"`
	App          AppConfig  `yaml:"app"`
}

// HTTPConfig enables the agent's read-only admin endpoint.
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// AppConfig describes how a node's application is launched. StartCommand wins
// when set; otherwise the launcher form is assembled from the remaining fields.
type AppConfig struct {
	StartCommand  string   `yaml:"start_command"`
	Exec          string   `yaml:"exec"`
	ExecOptions   string   `yaml:"exec_options"`
	ClasspathFlag string   `yaml:"classpath_flag"`
	ClasspathDirs []string `yaml:"classpath_dirs"`
	Main          string   `yaml:"main"`
	Args          string   `yaml:"args"`
}

// ClientConfig defines the administrative client.
type ClientConfig struct {
	BasePath    string          `yaml:"base_path"`
	TempPath    string          `yaml:"temp_path"`
	RemoteShell string          `yaml:"remote_shell"`
	App         ClientAppConfig `yaml:"app"`
	Fleet       FleetConfig     `yaml:"fleet"`
}

// ClientAppConfig drives `deploy app`.
type ClientAppConfig struct {
	FetchCommand string   `yaml:"fetch_command"`
	BuildCommand string   `yaml:"build_command"`
	BuildOutputs []string `yaml:"build_outputs"`
}

// FleetConfig tunes fleet-wide iteration.
type FleetConfig struct {
	Parallelism    int           `yaml:"parallelism"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ConnectRate    float64       `yaml:"connect_rate"`
	WatchInterval  time.Duration `yaml:"watch_interval"`
	WatchTail      int           `yaml:"watch_tail"`
}

// Defaults returns a configuration with defaults applied.
func Defaults() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "json",
		Server: ServerConfig{
			TempPath:     "$/nagini/tmp",
			Port:         6060,
			WatchEnabled: true,
			StartScript:  "$/nagini/bin/nagini-server.sh",
			HistoryPath:  "$/nagini/history.db",
			HTTP: HTTPConfig{
				Listen: "127.0.0.1:6061",
			},
			App: AppConfig{
				Exec:          "java",
				ClasspathFlag: "-cp",
			},
		},
		Client: ClientConfig{
			BasePath:    "~/.nagini",
			TempPath:    "$/tmp",
			RemoteShell: "ssh",
			Fleet: FleetConfig{
				Parallelism:    1,
				ConnectTimeout: 5 * time.Second,
				WatchInterval:  5 * time.Second,
			},
		},
	}
}
