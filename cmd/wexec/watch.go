package main

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"

	"wexec/internal/config"
	"wexec/internal/filter"
	"wexec/internal/fsutil"
	"wexec/internal/logging"
	"wexec/internal/loop"
	"wexec/internal/supervisor"
	"wexec/internal/watcher"
)

// runWatch wires the filter, watcher, supervisor and control loop together.
// Every configuration error is reported before the first watch is registered.
func runWatch(settings config.Settings, d deps) (loop.Result, error) {
	logger := logging.NewLoggerWithOutput(settings.LogLevel, d.Stderr)

	cwd, err := d.Getwd()
	if err != nil {
		return loop.Result{}, err
	}
	workDir, err := fsutil.Canonical(cwd)
	if err != nil {
		return loop.Result{}, err
	}

	targets := make([]watcher.Target, 0, len(settings.Paths))
	watchedFiles := []string{}
	for _, path := range settings.Paths {
		if !filepath.IsAbs(path) {
			path = filepath.Join(workDir, path)
		}
		target, err := watcher.Resolve(path)
		if err != nil {
			return loop.Result{}, err
		}
		if !fsutil.Within(workDir, target.Path) {
			logger.Warn("watch path is outside the working directory; its changes will be ignored", map[string]string{
				"path": target.Path,
			})
		}
		if !target.Dir {
			watchedFiles = append(watchedFiles, target.Path)
		}
		targets = append(targets, target)
	}

	options := filter.Options{
		WorkingDirectory: workDir,
		WatchedFiles:     watchedFiles,
		Extensions:       settings.Exts,
		IgnoreGlobs:      settings.Ignore,
		NoDefaultIgnore:  settings.NoDefaultIgnore,
	}
	globalRoot := workDir
	if !settings.NoProjectIgnore {
		project, err := filter.LoadProjectIgnore(workDir)
		if err != nil {
			logger.Warn("failed to read project gitignore", map[string]string{"error": err.Error()})
		} else if project != nil {
			options.ProjectIgnore = project
			globalRoot = project.Root()
			logger.Debug("project gitignore loaded", map[string]string{
				"root":     project.Root(),
				"patterns": strconv.Itoa(project.Len()),
			})
		}
	}
	if !settings.NoGlobalIgnore {
		global, err := filter.LoadGlobalIgnore(globalRoot)
		if err != nil {
			logger.Warn("failed to read global gitignore", map[string]string{"error": err.Error()})
		} else if global != nil {
			options.GlobalIgnore = global
		}
	}
	ruleset, err := filter.New(options)
	if err != nil {
		return loop.Result{}, err
	}

	sup, err := supervisor.New(supervisor.Options{
		Command:      settings.Command,
		Policy:       settings.OnBusyUpdate,
		Signal:       settings.Signal,
		GracePeriod:  settings.Supervisor.GracePeriod,
		PollInterval: settings.Supervisor.PollInterval,
		QueueBackoff: settings.Supervisor.QueueBackoff,
		Clear:        settings.Clear,
		Stdout:       d.Stdout,
		Stderr:       d.Stderr,
		Logger:       logger,
	})
	if err != nil {
		return loop.Result{}, err
	}

	source, err := watcher.New(watcher.Options{Logger: logger})
	if err != nil {
		return loop.Result{}, err
	}
	defer source.Close()
	for _, target := range targets {
		if _, err := source.Add(target.Path); err != nil {
			return loop.Result{}, err
		}
	}

	signals := d.Signals
	if signals == nil {
		notified, stop := loop.NotifyTermination()
		defer stop()
		signals = notified
	}

	controller, err := loop.New(loop.Options{
		Filter:     ruleset,
		Supervisor: sup,
		Events:     source.Events(),
		Errors:     source.Errors(),
		Signals:    signals,
		Debounce:   settings.Debounce,
		Logger:     logger,
	})
	if err != nil {
		return loop.Result{}, err
	}

	logger.Debug("watching", map[string]string{
		"paths":   strings.Join(settings.Paths, ","),
		"policy":  settings.OnBusyUpdate.String(),
		"ignores": strings.Join(ruleset.IgnorePatterns(), ","),
	})
	ctx := d.Context
	if ctx == nil {
		ctx = context.Background()
	}
	return controller.Run(ctx)
}
