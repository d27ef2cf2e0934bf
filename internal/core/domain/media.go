package domain

import "encoding/json"

type Codec string

const (
	CodecVP8  Codec = "vp8"
	CodecVP9  Codec = "vp9"
	CodecH264 Codec = "h264"
	CodecAV1  Codec = "av1"
)

type ChannelProfile string

const (
	ProfileCommunication    ChannelProfile = "communication"
	ProfileLiveBroadcasting ChannelProfile = "live_broadcasting"
)

// ChannelMode is the engine-level session mode.
type ChannelMode string

const (
	ModeRTC  ChannelMode = "rtc"
	ModeLive ChannelMode = "live"
)

// Mode maps the profile onto the engine mode.
func (p ChannelProfile) Mode() ChannelMode {
	if p == ProfileLiveBroadcasting {
		return ModeLive
	}
	return ModeRTC
}

type ClientRole string

const (
	ClientRoleBroadcaster ClientRole = "broadcaster"
	ClientRoleAudience    ClientRole = "audience"
)

type GeoRegion string

const (
	RegionChina        GeoRegion = "CHINA"
	RegionAsia         GeoRegion = "ASIA"
	RegionEurope       GeoRegion = "EUROPE"
	RegionNorthAmerica GeoRegion = "NORTH_AMERICA"
	RegionJapan        GeoRegion = "JAPAN"
	RegionIndia        GeoRegion = "INDIA"
	RegionGlobal       GeoRegion = "GLOBAL"
)

type EncryptionMode string

const (
	EncryptionNone       EncryptionMode = "none"
	EncryptionAES128XTS  EncryptionMode = "aes-128-xts"
	EncryptionAES256XTS  EncryptionMode = "aes-256-xts"
	EncryptionAES128GCM  EncryptionMode = "aes-128-gcm"
	EncryptionAES256GCM  EncryptionMode = "aes-256-gcm"
	EncryptionAES128GCM2 EncryptionMode = "aes-128-gcm2"
	EncryptionAES256GCM2 EncryptionMode = "aes-256-gcm2"
)

type EncryptionConfig struct {
	Enabled bool           `json:"enabled"`
	Mode    EncryptionMode `json:"mode"`
	Key     string         `json:"key,omitempty"`
	Salt    string         `json:"salt,omitempty"`
}

// Active reports whether the config should be applied to a client.
func (e EncryptionConfig) Active() bool {
	return e.Enabled && e.Mode != "" && e.Mode != EncryptionNone && e.Key != ""
}

// EncoderConfig describes a video encoder profile; bitrates are kbps.
type EncoderConfig struct {
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	FrameRate  int    `json:"frameRate"`
	BitrateMin int    `json:"bitrateMin"`
	BitrateMax int    `json:"bitrateMax"`
	Preset     string `json:"preset,omitempty"`
}

type VideoQualityPreset string

const (
	QualityAuto  VideoQualityPreset = "auto"
	Quality120p  VideoQualityPreset = "120p"
	Quality180p  VideoQualityPreset = "180p"
	Quality240p  VideoQualityPreset = "240p"
	Quality360p  VideoQualityPreset = "360p"
	Quality480p  VideoQualityPreset = "480p"
	Quality720p  VideoQualityPreset = "720p"
	Quality1080p VideoQualityPreset = "1080p"
)

var videoQualityProfiles = map[VideoQualityPreset]EncoderConfig{
	Quality120p:  {Width: 160, Height: 120, FrameRate: 15, BitrateMax: 65, Preset: "120p_1"},
	Quality180p:  {Width: 320, Height: 180, FrameRate: 15, BitrateMax: 140, Preset: "180p_1"},
	Quality240p:  {Width: 320, Height: 240, FrameRate: 15, BitrateMax: 200, Preset: "240p_1"},
	Quality360p:  {Width: 640, Height: 360, FrameRate: 30, BitrateMax: 600, Preset: "360p_7"},
	Quality480p:  {Width: 640, Height: 480, FrameRate: 15, BitrateMax: 500, Preset: "480p_1"},
	Quality720p:  {Width: 1280, Height: 720, FrameRate: 30, BitrateMax: 1710, Preset: "720p_3"},
	Quality1080p: {Width: 1920, Height: 1080, FrameRate: 30, BitrateMax: 3150, Preset: "1080p_3"},
}

// EncoderProfile returns the encoder config for p. Auto and unknown presets
// return ok=false, meaning "leave the engine default".
func (p VideoQualityPreset) EncoderProfile() (EncoderConfig, bool) {
	cfg, ok := videoQualityProfiles[p]
	return cfg, ok
}

type ScreenShareQuality string

const (
	ScreenQualityAuto  ScreenShareQuality = "auto"
	ScreenQuality720p  ScreenShareQuality = "720p"
	ScreenQuality1080p ScreenShareQuality = "1080p"
	ScreenQuality1440p ScreenShareQuality = "1440p"
	ScreenQuality4K    ScreenShareQuality = "4k"
)

var screenQualityProfiles = map[ScreenShareQuality]EncoderConfig{
	ScreenQuality720p:  {Width: 1280, Height: 720, FrameRate: 15, BitrateMax: 1130, Preset: "720p_2"},
	ScreenQuality1080p: {Width: 1920, Height: 1080, FrameRate: 15, BitrateMax: 2080, Preset: "1080p_2"},
	ScreenQuality1440p: {Width: 2560, Height: 1440, FrameRate: 15, BitrateMax: 4780},
	ScreenQuality4K:    {Width: 3840, Height: 2160, FrameRate: 15, BitrateMax: 8910},
}

// EncoderProfile returns the screen encoder config; auto maps to 720p.
func (q ScreenShareQuality) EncoderProfile() EncoderConfig {
	if cfg, ok := screenQualityProfiles[q]; ok {
		return cfg
	}
	return screenQualityProfiles[ScreenQuality720p]
}

type ScreenShareOptions struct {
	WithAudio bool               `json:"withAudio"`
	Quality   ScreenShareQuality `json:"quality,omitempty"`
	Token     string             `json:"token,omitempty"`
}

type BackgroundType string

const (
	BackgroundNone  BackgroundType = "none"
	BackgroundBlur  BackgroundType = "blur"
	BackgroundImage BackgroundType = "image"
	BackgroundColor BackgroundType = "color"
)

// DefaultBlurStrength applies when a blur background is decoded without a
// strength.
const DefaultBlurStrength = 50

type VirtualBackgroundConfig struct {
	Type         BackgroundType `json:"type"`
	BlurStrength int            `json:"blurStrength"` // 0-100
	ImageURL     string         `json:"imageUrl,omitempty"`
	Color        string         `json:"color,omitempty"`
}

// UnmarshalJSON keeps an explicit blurStrength, including 0, and defaults a
// missing one to DefaultBlurStrength for blur backgrounds.
func (c *VirtualBackgroundConfig) UnmarshalJSON(data []byte) error {
	type plain VirtualBackgroundConfig
	aux := struct {
		*plain
		BlurStrength *int `json:"blurStrength"`
	}{plain: (*plain)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	switch {
	case aux.BlurStrength != nil:
		c.BlurStrength = *aux.BlurStrength
	case c.Type == BackgroundBlur:
		c.BlurStrength = DefaultBlurStrength
	}
	return nil
}

// BlurTier maps the 0-100 slider onto the engine's three blur degrees.
func (c VirtualBackgroundConfig) BlurTier() int {
	switch {
	case c.BlurStrength < 33:
		return 1
	case c.BlurStrength < 67:
		return 2
	default:
		return 3
	}
}

type BeautyOptions struct {
	Smoothness    int `json:"smoothness"`
	Lightening    int `json:"lightening"`
	Redness       int `json:"redness"`
	Sharpness     int `json:"sharpness"`
	ContrastLevel int `json:"contrastLevel"` // 0 low, 1 normal, 2 high
}

func DefaultBeautyOptions() BeautyOptions {
	return BeautyOptions{Smoothness: 50, Lightening: 30, Redness: 10, Sharpness: 30, ContrastLevel: 1}
}

// NormalizedBeauty is BeautyOptions on the processor's 0-1 scale.
type NormalizedBeauty struct {
	Smoothness    float64
	Lightening    float64
	Redness       float64
	Sharpness     float64
	ContrastLevel int
}

func (b BeautyOptions) Normalized() NormalizedBeauty {
	clamp := func(v int) float64 {
		if v < 0 {
			v = 0
		}
		if v > 100 {
			v = 100
		}
		return float64(v) / 100
	}
	contrast := b.ContrastLevel
	if contrast < 0 || contrast > 2 {
		contrast = 1
	}
	return NormalizedBeauty{
		Smoothness:    clamp(b.Smoothness),
		Lightening:    clamp(b.Lightening),
		Redness:       clamp(b.Redness),
		Sharpness:     clamp(b.Sharpness),
		ContrastLevel: contrast,
	}
}

type NoiseSuppressionLevel string

const (
	NoiseOff    NoiseSuppressionLevel = "off"
	NoiseLow    NoiseSuppressionLevel = "low"
	NoiseMedium NoiseSuppressionLevel = "medium"
	NoiseHigh   NoiseSuppressionLevel = "high"
	NoiseAI     NoiseSuppressionLevel = "ai"
)

type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

type VideoKind string

const (
	VideoCamera VideoKind = "camera"
	VideoScreen VideoKind = "screen"
)

type RemoteStreamType int

const (
	StreamHigh RemoteStreamType = 0
	StreamLow  RemoteStreamType = 1
)
