package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads nagini.yaml and host.list from configPath, which may be the config
// directory or the nagini.yaml file inside it.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("%w: config not found: %s\n"+
			"Hint: Check the path or run with --config flag", ErrInvalid, absPath)
	}
	dir := absPath
	file := filepath.Join(absPath, FileName)
	if !info.IsDir() {
		dir = filepath.Dir(absPath)
		file = absPath
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrInvalid, file, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.Dir = dir

	hosts, err := LoadHostList(filepath.Join(dir, HostListName))
	if err != nil {
		return nil, err
	}
	cfg.Hosts = hosts
	return cfg, nil
}

// Parse decodes a nagini.yaml document over the defaults, resolves path
// placeholders and validates the result. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	dec := yaml.NewDecoder(bytes.NewReader([]byte(interpolateEnv(string(data)))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: parse yaml: %v", ErrInvalid, err)
	}

	resolvePaths(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return cfg, nil
}

// resolvePaths expands '$' in agent paths against server.base_path, and in
// client paths against client.base_path.
func resolvePaths(cfg *Config) {
	server := cfg.ServerLayout()
	cfg.Server.TempPath = server.Expand(cfg.Server.TempPath, -1)
	cfg.Server.StartScript = server.Expand(cfg.Server.StartScript, -1)
	cfg.Server.HistoryPath = server.Expand(cfg.Server.HistoryPath, -1)

	cfg.Client.BasePath = ExpandHome(cfg.Client.BasePath)
	client := Layout{Base: cfg.Client.BasePath}
	cfg.Client.TempPath = ExpandHome(client.Expand(cfg.Client.TempPath, -1))
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("log_level must be one of: debug, info, warn, error (got %q)", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return fmt.Errorf("log_format must be json or text (got %q)", cfg.LogFormat)
	}

	if cfg.Server.BasePath == "" {
		return fmt.Errorf("server.base_path is required")
	}
	if !filepath.IsAbs(cfg.Server.BasePath) {
		return fmt.Errorf("server.base_path must be absolute (got %q)", cfg.Server.BasePath)
	}
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", cfg.Server.Port)
	}
	if cfg.Server.TempPath == "" {
		return fmt.Errorf("server.temp_path is required")
	}
	if cfg.Server.HTTP.Enabled && cfg.Server.HTTP.Listen == "" {
		return fmt.Errorf("server.http.listen is required when server.http.enabled is true")
	}
	if m := envVarPattern.FindStringSubmatch(cfg.Server.App.StartCommand); len(m) > 1 {
		return fmt.Errorf("server.app.start_command: environment variable ${%s} is not set", m[1])
	}

	fleet := cfg.Client.Fleet
	if fleet.Parallelism < 1 {
		return fmt.Errorf("client.fleet.parallelism must be at least 1")
	}
	if fleet.ConnectTimeout <= 0 {
		return fmt.Errorf("client.fleet.connect_timeout must be positive")
	}
	if fleet.WatchInterval <= 0 {
		return fmt.Errorf("client.fleet.watch_interval must be positive")
	}
	if fleet.WatchTail < 0 {
		return fmt.Errorf("client.fleet.watch_tail must not be negative")
	}
	if fleet.ConnectRate < 0 {
		return fmt.Errorf("client.fleet.connect_rate must not be negative")
	}
	return nil
}
