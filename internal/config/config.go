// Package config holds the run configuration for a single conversion.
package config

import (
	"encoding/json"
	"os"
	"time"
)

// Options is the full configuration for one run. It is built once in main
// and read-only for the lifetime of the run.
type Options struct {
	Headers       map[string]string `json:"headers"`
	Threads       int               `json:"threads"`
	MaxRetries    int               `json:"max_retries"`
	FetchTimeout  Duration          `json:"fetch_timeout"`
	BackoffBase   Duration          `json:"backoff_base"`
	BackoffCap    Duration          `json:"backoff_cap"`
	WorkDir       string            `json:"work_dir"`
	FFmpegPath    string            `json:"ffmpeg_path"`
	FFmpegOptions []string          `json:"ffmpeg_options"`
	KeepSegments  bool              `json:"keep_segments"`
}

// Duration unmarshals from a JSON string like "10s".
type Duration time.Duration

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Default returns the built-in configuration.
func Default() Options {
	return Options{
		Headers: map[string]string{
			"User-Agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		},
		Threads:      8,
		MaxRetries:   3,
		FetchTimeout: Duration(10 * time.Second),
		BackoffBase:  Duration(500 * time.Millisecond),
		BackoffCap:   Duration(8 * time.Second),
		WorkDir:      "./tmp",
		FFmpegPath:   "ffmpeg",
	}
}

// Load overlays a JSON config file onto opts. A missing file leaves opts
// untouched.
func Load(path string, opts *Options) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, opts)
}
