package rtc

import (
	"context"
	"fmt"

	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/domain"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/events"
)

// GetDevices enumerates devices and keeps the current selection, falling
// back to the first device of each kind.
func (a *Adapter) GetDevices(ctx context.Context) (domain.Devices, error) {
	return a.refreshDevices(ctx)
}

func (a *Adapter) refreshDevices(ctx context.Context) (domain.Devices, error) {
	all, err := a.engine.EnumerateDevices(ctx)
	if err != nil {
		return domain.Devices{}, fmt.Errorf("enumerate devices: %w", err)
	}
	devices := domain.GroupDevices(all)

	a.mu.Lock()
	mic, cam := a.mic, a.cam
	selected := a.devices
	a.mu.Unlock()

	if mic != nil {
		selected.SelectedMicID = mic.DeviceID()
	}
	if cam != nil {
		selected.SelectedCameraID = cam.DeviceID()
	}
	devices.SelectedMicID = pickSelected(selected.SelectedMicID, devices.Microphones)
	devices.SelectedCameraID = pickSelected(selected.SelectedCameraID, devices.Cameras)
	devices.SelectedSpeakerID = pickSelected(selected.SelectedSpeakerID, devices.Speakers)

	a.mu.Lock()
	a.devices = devices
	a.mu.Unlock()
	return devices.Clone(), nil
}

func pickSelected(current string, list []domain.DeviceInfo) string {
	for _, d := range list {
		if d.ID == current {
			return current
		}
	}
	if len(list) > 0 {
		return list[0].ID
	}
	return ""
}

// watchDevices subscribes to hot-plug notifications once.
func (a *Adapter) watchDevices() {
	a.mu.Lock()
	if a.removeDevices != nil {
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()

	remove := a.engine.OnDeviceChange(a.onDeviceChange)

	a.mu.Lock()
	a.removeDevices = remove
	a.mu.Unlock()
}

// onDeviceChange re-enumerates and moves any open track whose device
// vanished onto the first remaining device of its kind.
func (a *Adapter) onDeviceChange() {
	ctx := context.Background()

	a.mu.Lock()
	mic, cam := a.mic, a.cam
	a.mu.Unlock()
	var micID, camID string
	if mic != nil {
		micID = mic.DeviceID()
	}
	if cam != nil {
		camID = cam.DeviceID()
	}

	devices, err := a.refreshDevices(ctx)
	if err != nil {
		a.logger.Warnw("Failed to refresh devices", "error", err)
		return
	}
	a.logger.Infow("Devices changed",
		"microphones", len(devices.Microphones),
		"cameras", len(devices.Cameras),
		"speakers", len(devices.Speakers),
	)
	a.emit(events.DevicesUpdated{Devices: devices})

	var sel domain.DeviceSelection
	if micID != "" && !devices.Has(domain.DeviceKindAudioInput, micID) && len(devices.Microphones) > 0 {
		sel.MicrophoneID = devices.Microphones[0].ID
	}
	if camID != "" && !devices.Has(domain.DeviceKindVideoInput, camID) && len(devices.Cameras) > 0 {
		sel.CameraID = devices.Cameras[0].ID
	}
	if sel.MicrophoneID == "" && sel.CameraID == "" {
		return
	}
	if err := a.SetInputDevice(ctx, sel); err != nil {
		a.logger.Warnw("Failed to switch away from removed device", "error", err)
	}
}
