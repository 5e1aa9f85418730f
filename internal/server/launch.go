package server

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/mattjoyce/nagini/internal/config"
)

// LaunchError means a node's command line could not be assembled.
type LaunchError struct {
	NodeID int
	Err    error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("build command for node %d: %v", e.NodeID, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

func applicationJobName(nodeID int) string {
	return "application-" + strconv.Itoa(nodeID)
}

// BuildArgv assembles the command of a node. A literal start command is split
// on whitespace after '$' and '#' substitution. Otherwise the launcher form is
// used: exec, exec options, the classpath flag with every file directly under
// each application/<dir> joined by ':', the main entry point and its args.
func BuildArgv(app config.AppConfig, layout config.Layout, nodeID int) ([]string, error) {
	if cmd := strings.TrimSpace(app.StartCommand); cmd != "" {
		argv := strings.Fields(layout.Expand(cmd, nodeID))
		return argv, nil
	}

	if app.Main == "" {
		return nil, &LaunchError{NodeID: nodeID, Err: errors.New("neither app.start_command nor app.main is configured")}
	}
	if app.Exec == "" {
		return nil, &LaunchError{NodeID: nodeID, Err: errors.New("app.exec is empty")}
	}

	argv := []string{layout.Expand(app.Exec, nodeID)}
	argv = append(argv, strings.Fields(layout.Expand(app.ExecOptions, nodeID))...)

	classpath, err := collectClasspath(layout, app.ClasspathDirs)
	if err != nil {
		return nil, &LaunchError{NodeID: nodeID, Err: err}
	}
	if len(classpath) > 0 {
		flag := app.ClasspathFlag
		if flag == "" {
			flag = "-cp"
		}
		argv = append(argv, flag, strings.Join(classpath, ":"))
	}

	argv = append(argv, app.Main)
	argv = append(argv, strings.Fields(layout.Expand(app.Args, nodeID))...)
	return argv, nil
}

// collectClasspath lists the files directly under each application/<dir>, in
// directory order then name order.
func collectClasspath(layout config.Layout, dirs []string) ([]string, error) {
	var out []string
	for _, dir := range dirs {
		full := filepath.Join(layout.ApplicationPath(), dir)
		entries, err := os.ReadDir(full)
		if err != nil {
			return nil, fmt.Errorf("read classpath dir %s: %w", full, err)
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if !e.IsDir() {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)
		for _, name := range names {
			out = append(out, filepath.Join(full, name))
		}
	}
	return out, nil
}
