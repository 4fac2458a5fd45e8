// Package config resolves, parses, validates, and defaults waveform configuration.
package config

// Config is the fully materialized runtime configuration used by waveform.
type Config struct {
	Audio      AudioConfig      `toml:"audio"`
	Recording  RecordingConfig  `toml:"recording"`
	Permission PermissionConfig `toml:"permission"`
	Cues       CuesConfig       `toml:"cues"`
	Bridge     BridgeConfig     `toml:"bridge"`
	Log        LogConfig        `toml:"log"`
	Debug      DebugConfig      `toml:"debug"`
}

// AudioConfig controls preferred and fallback input-source selection.
type AudioConfig struct {
	Input          string `toml:"input"`
	Fallback       string `toml:"fallback"`
	AllowBluetooth bool   `toml:"allow_bluetooth"`
}

// RecordingConfig controls defaults applied when a host omits arguments.
type RecordingConfig struct {
	SampleRate     int    `toml:"sample_rate"`
	FileNameFormat string `toml:"file_name_format"`
	TempDir        string `toml:"temp_dir"`
	FFmpegPath     string `toml:"ffmpeg_path"`
	Quality        string `toml:"quality"`
}

// PermissionConfig controls how an undetermined permission is resolved.
type PermissionConfig struct {
	AwaitRequest     bool `toml:"await_request"`
	RequestTimeoutMS int  `toml:"request_timeout_ms"`
}

// CuesConfig controls audible and desktop-notification start/stop feedback.
type CuesConfig struct {
	Enable          bool   `toml:"enable"`
	StartFile       string `toml:"start_file"`
	StopFile        string `toml:"stop_file"`
	Notify          bool   `toml:"notify"`
	NotifyTimeoutMS int    `toml:"notify_timeout_ms"`
}

// BridgeConfig controls the owner-process socket.
type BridgeConfig struct {
	Socket           string `toml:"socket"`
	RequestTimeoutMS int    `toml:"request_timeout_ms"`
}

// LogConfig controls the runtime log file.
type LogConfig struct {
	Level      string `toml:"level"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

// DebugConfig controls optional debug artifact output.
type DebugConfig struct {
	AudioDump bool `toml:"audio_dump"`
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
