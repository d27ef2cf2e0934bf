package domain

import "fmt"

type DeviceKind string

const (
	DeviceKindAudioInput  DeviceKind = "audioinput"
	DeviceKindVideoInput  DeviceKind = "videoinput"
	DeviceKindAudioOutput DeviceKind = "audiooutput"
)

type DeviceInfo struct {
	ID    string     `json:"deviceId"`
	Label string     `json:"label"`
	Kind  DeviceKind `json:"kind"`
}

// DisplayLabel falls back to "<Kind> <id prefix>" when the OS hides the label.
func (d DeviceInfo) DisplayLabel() string {
	if d.Label != "" {
		return d.Label
	}
	prefix := d.ID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	switch d.Kind {
	case DeviceKindAudioInput:
		return fmt.Sprintf("Microphone %s", prefix)
	case DeviceKindVideoInput:
		return fmt.Sprintf("Camera %s", prefix)
	default:
		return fmt.Sprintf("Speaker %s", prefix)
	}
}

type Devices struct {
	Microphones       []DeviceInfo `json:"microphones"`
	Cameras           []DeviceInfo `json:"cameras"`
	Speakers          []DeviceInfo `json:"speakers"`
	SelectedMicID     string       `json:"selectedMicrophoneId"`
	SelectedCameraID  string       `json:"selectedCameraId"`
	SelectedSpeakerID string       `json:"selectedSpeakerId"`
}

// Clone returns a copy with fresh slices.
func (d Devices) Clone() Devices {
	d.Microphones = append([]DeviceInfo(nil), d.Microphones...)
	d.Cameras = append([]DeviceInfo(nil), d.Cameras...)
	d.Speakers = append([]DeviceInfo(nil), d.Speakers...)
	return d
}

// Has reports whether a device with id exists in the list for kind.
func (d Devices) Has(kind DeviceKind, id string) bool {
	for _, dev := range d.list(kind) {
		if dev.ID == id {
			return true
		}
	}
	return false
}

func (d Devices) list(kind DeviceKind) []DeviceInfo {
	switch kind {
	case DeviceKindAudioInput:
		return d.Microphones
	case DeviceKindVideoInput:
		return d.Cameras
	default:
		return d.Speakers
	}
}

// GroupDevices splits an enumeration by kind and fills in missing labels.
func GroupDevices(all []DeviceInfo) Devices {
	var d Devices
	for _, dev := range all {
		dev.Label = dev.DisplayLabel()
		switch dev.Kind {
		case DeviceKindAudioInput:
			d.Microphones = append(d.Microphones, dev)
		case DeviceKindVideoInput:
			d.Cameras = append(d.Cameras, dev)
		case DeviceKindAudioOutput:
			d.Speakers = append(d.Speakers, dev)
		}
	}
	return d
}

// DeviceSelection names the devices to switch to; empty fields are left alone.
type DeviceSelection struct {
	MicrophoneID string `json:"microphoneId,omitempty"`
	CameraID     string `json:"cameraId,omitempty"`
	SpeakerID    string `json:"speakerId,omitempty"`
}
