package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"timeplanner/internal/model"
)

// LoadSchedule reads a weekly schedule from a YAML or JSON file, chosen by
// extension. Omitted fields keep the blank-form defaults.
func LoadSchedule(path string) (model.WeeklySchedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.WeeklySchedule{}, err
	}

	s := model.DefaultSchedule()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &s)
	default:
		err = yaml.Unmarshal(data, &s)
	}
	if err != nil {
		return model.WeeklySchedule{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return s, nil
}

// WatchSchedule reloads the schedule file on change and calls onUpdate with
// the latest version. It performs an initial load before entering the watch
// loop.
func WatchSchedule(ctx context.Context, path string, interval time.Duration, onUpdate func(model.WeeklySchedule)) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	s, err := LoadSchedule(path)
	if err != nil {
		return err
	}
	if onUpdate != nil {
		onUpdate(s)
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	lastMod := info.ModTime()

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				info, err := os.Stat(path)
				if err != nil {
					continue // transient errors
				}
				if !info.ModTime().After(lastMod) {
					continue
				}
				s, err := LoadSchedule(path)
				if err != nil {
					continue
				}
				lastMod = info.ModTime()
				if onUpdate != nil {
					onUpdate(s)
				}
			}
		}
	}()

	return nil
}
