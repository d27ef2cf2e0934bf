package simengine

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/domain"
)

type deviceFile struct {
	Devices []struct {
		ID    string `yaml:"id"`
		Label string `yaml:"label"`
		Kind  string `yaml:"kind"`
	} `yaml:"devices"`
}

// LoadDeviceFile reads a YAML device list:
//
//	devices:
//	  - {id: cam-1, label: Webcam, kind: videoinput}
func LoadDeviceFile(path string) ([]domain.DeviceInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read device file: %w", err)
	}
	var f deviceFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse device file: %w", err)
	}

	devs := make([]domain.DeviceInfo, 0, len(f.Devices))
	for i, d := range f.Devices {
		kind := domain.DeviceKind(d.Kind)
		switch kind {
		case domain.DeviceKindAudioInput, domain.DeviceKindVideoInput, domain.DeviceKindAudioOutput:
		default:
			return nil, fmt.Errorf("device %d: unknown kind %q", i, d.Kind)
		}
		if d.ID == "" {
			return nil, fmt.Errorf("device %d: id is required", i)
		}
		devs = append(devs, domain.DeviceInfo{ID: d.ID, Label: d.Label, Kind: kind})
	}
	return devs, nil
}

// WatchDeviceFile loads path into the engine and reloads it whenever the
// file is written, firing the engine's hot-plug listeners. The returned
// func stops watching.
func WatchDeviceFile(e *Engine, path string, logger *zap.SugaredLogger) (func() error, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	devs, err := LoadDeviceFile(path)
	if err != nil {
		return nil, err
	}
	e.SetDevices(devs)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	// Editors replace files on save, so watch the directory.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}

	target := filepath.Clean(path)
	closed := make(chan struct{})
	go func() {
		for {
			select {
			case <-closed:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				devs, err := LoadDeviceFile(path)
				if err != nil {
					logger.Warnw("Device file reload failed", "path", path, "error", err)
					continue
				}
				e.SetDevices(devs)
				logger.Infow("Device list reloaded", "path", path, "devices", len(devs))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warnw("Device watcher error", "error", err)
			}
		}
	}()

	return func() error {
		close(closed)
		return watcher.Close()
	}, nil
}
