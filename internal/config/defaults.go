package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Audio: AudioConfig{
			Input:          "default",
			Fallback:       "default",
			AllowBluetooth: true,
		},
		Recording: RecordingConfig{
			SampleRate:     16000,
			FileNameFormat: "yyyy-MM-dd-HH-mm-ss",
			Quality:        "high",
		},
		Permission: PermissionConfig{
			AwaitRequest:     true,
			RequestTimeoutMS: 3000,
		},
		Cues: CuesConfig{Enable: false, Notify: false, NotifyTimeoutMS: 300000},
		Bridge: BridgeConfig{
			RequestTimeoutMS: 5000,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}
