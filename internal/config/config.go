// Package config holds the operational tunables and the startup check over
// the required environment. The external settings (urls, keys, buckets)
// stay in the environment and are read by the component that needs them;
// this file only covers what an operator may want to retune without a
// rebuild.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Tunables are the poll budgets and timeouts of the service, durations in
// milliseconds. Every field defaults to the contract constant, so a missing
// or partial file is fine.
type Tunables struct {
	Server      ServerTunables      `yaml:"server"`
	Coordinator CoordinatorTunables `yaml:"coordinator"`
	Worker      WorkerTunables      `yaml:"worker"`
	Credentials CredentialTunables  `yaml:"credentials"`
}

type ServerTunables struct {
	ReadTimeoutMs  int `yaml:"read_timeout_ms"`
	WriteTimeoutMs int `yaml:"write_timeout_ms"`
	IdleTimeoutMs  int `yaml:"idle_timeout_ms"`
	DrainTimeoutMs int `yaml:"drain_timeout_ms"`
}

type CoordinatorTunables struct {
	PollAttempts   int `yaml:"poll_attempts"`
	PollIntervalMs int `yaml:"poll_interval_ms"`
}

type WorkerTunables struct {
	LeaseAttempts   int `yaml:"lease_attempts"`
	LeaseIntervalMs int `yaml:"lease_interval_ms"`
}

type CredentialTunables struct {
	RefreshIntervalMs int `yaml:"refresh_interval_ms"`
	ReadAttempts      int `yaml:"read_attempts"`
	ReadIntervalMs    int `yaml:"read_interval_ms"`
}

func (s ServerTunables) ReadTimeout() time.Duration  { return ms(s.ReadTimeoutMs) }
func (s ServerTunables) WriteTimeout() time.Duration { return ms(s.WriteTimeoutMs) }
func (s ServerTunables) IdleTimeout() time.Duration  { return ms(s.IdleTimeoutMs) }
func (s ServerTunables) DrainTimeout() time.Duration { return ms(s.DrainTimeoutMs) }

func (c CoordinatorTunables) PollInterval() time.Duration { return ms(c.PollIntervalMs) }

func (w WorkerTunables) LeaseInterval() time.Duration { return ms(w.LeaseIntervalMs) }

func (c CredentialTunables) RefreshInterval() time.Duration { return ms(c.RefreshIntervalMs) }
func (c CredentialTunables) ReadInterval() time.Duration    { return ms(c.ReadIntervalMs) }

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// Defaults returns the contract constants: a 4.5 s coordinator wait, a 5 s
// worker lease window and an hourly credential refresh.
func Defaults() *Tunables {
	return &Tunables{
		Server: ServerTunables{
			ReadTimeoutMs:  30_000,
			WriteTimeoutMs: 30_000,
			IdleTimeoutMs:  60_000,
			DrainTimeoutMs: 30_000,
		},
		Coordinator: CoordinatorTunables{
			PollAttempts:   10,
			PollIntervalMs: 450,
		},
		Worker: WorkerTunables{
			LeaseAttempts:   50,
			LeaseIntervalMs: 100,
		},
		Credentials: CredentialTunables{
			RefreshIntervalMs: 3_600_000,
			ReadAttempts:      100,
			ReadIntervalMs:    30,
		},
	}
}

// Load reads a tunables file over the defaults. An empty path or a missing
// file keeps the defaults; a present but unparsable file is an error so a
// typo never silently runs with half a config.
func Load(path string) (*Tunables, error) {
	t := Defaults()
	if path == "" {
		return t, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(t); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return t, nil
}

// requiredEnv is everything the service cannot run without. S3Region is
// deliberately absent; an empty region only costs a lookup per request.
var requiredEnv = []string{
	"PAM_BASE_URL",
	"DB_API_URL",
	"PAM_AUTH_TOKEN",
	"S3AccessKeyId",
	"S3AccessKey",
	"S3Bucket",
	"S3Url",
	"AWS_ACCESS_KEY_ID",
	"AWS_SECRET_ACCESS_KEY",
	"AWS_DEFAULT_REGION",
	"AWS_SQS_QUEUE_URL_0",
}

// MissingEnv lists every required environment variable that is empty, so
// startup can report all of them at once instead of one per restart.
func MissingEnv() []string {
	var missing []string
	for _, key := range requiredEnv {
		if os.Getenv(key) == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

// Port returns the listen port, defaulting to 8080.
func Port() string {
	if port := os.Getenv("SCAN_API_PORT"); port != "" {
		return port
	}
	return "8080"
}
