package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// Parse decodes TOML content over base and validates the result.
//
// Keys the decoder does not recognize are reported as warnings.
func Parse(content string, base Config) (Config, []Warning, error) {
	cfg := base
	md, err := toml.Decode(content, &cfg)
	if err != nil {
		var perr toml.ParseError
		if errors.As(err, &perr) {
			return Config{}, nil, fmt.Errorf("line %d: %s", perr.Position.Line, perr.Message)
		}
		return Config{}, nil, err
	}

	warnings := make([]Warning, 0)
	for _, key := range md.Undecoded() {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("unknown key %q", key.String())})
	}

	normalize(&cfg)

	validationWarnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	warnings = append(warnings, validationWarnings...)
	return cfg, warnings, nil
}

func normalize(cfg *Config) {
	cfg.Audio.Input = strings.TrimSpace(cfg.Audio.Input)
	cfg.Audio.Fallback = strings.TrimSpace(cfg.Audio.Fallback)
	cfg.Recording.FileNameFormat = strings.TrimSpace(cfg.Recording.FileNameFormat)
	cfg.Recording.TempDir = expandUserPath(cfg.Recording.TempDir)
	cfg.Recording.FFmpegPath = strings.TrimSpace(cfg.Recording.FFmpegPath)
	cfg.Recording.Quality = strings.ToLower(strings.TrimSpace(cfg.Recording.Quality))
	cfg.Bridge.Socket = expandUserPath(cfg.Bridge.Socket)
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
}
