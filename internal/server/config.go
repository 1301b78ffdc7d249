package server

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/opensyncbox/syncbox/internal/server/auth"
	"github.com/opensyncbox/syncbox/internal/utils"
)

const DefaultMaxFileSizeMB = 128

// Config is the server's top-level configuration, unmarshaled by viper from
// a config file, environment variables (SYFTBOX_* with "_" in place of
// "."), and CLI flags — mirroring the client's own config.Config pattern.
// Snapshot covers object storage for the sync endpoints; OTP delivery is
// always logged rather than sent through an outbound mail provider (see
// internal/server/auth).
type Config struct {
	DataDir  string         `mapstructure:"data_dir"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Auth     auth.Config    `mapstructure:"auth"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`

	MaxFileSizeMB int `mapstructure:"max_file_size_mb"`
}

type HTTPConfig struct {
	Addr              string        `mapstructure:"addr"`
	Domain            string        `mapstructure:"domain"`
	CertFile          string        `mapstructure:"cert_file"`
	KeyFile           string        `mapstructure:"key_file"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
}

func (c HTTPConfig) HTTPSEnabled() bool {
	return c.CertFile != "" && c.KeyFile != ""
}

// SnapshotConfig selects the SnapshotStore backend behind the sync
// endpoints: the default "fs" backend needs only a directory, the
// optional "s3" backend wires internal/server/syncapi's S3-compatible
// store.
type SnapshotConfig struct {
	Backend string `mapstructure:"backend"` // "fs" or "s3"

	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

func (c *Config) Validate() error {
	var err error
	c.DataDir, err = utils.ResolvePath(c.DataDir)
	if err != nil {
		return err
	}

	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr required")
	}
	if c.HTTP.HTTPSEnabled() {
		if c.HTTP.CertFile == "" || c.HTTP.KeyFile == "" {
			return fmt.Errorf("https requires both cert_file and key_file")
		}
	}

	switch c.Snapshot.Backend {
	case "", "fs":
		c.Snapshot.Backend = "fs"
	case "s3":
		if c.Snapshot.Bucket == "" {
			return fmt.Errorf("snapshot.bucket required for s3 backend")
		}
	default:
		return fmt.Errorf("snapshot.backend: unsupported backend %q", c.Snapshot.Backend)
	}

	if c.MaxFileSizeMB <= 0 {
		c.MaxFileSizeMB = DefaultMaxFileSizeMB
	}

	if err := c.Auth.Validate(); err != nil {
		return err
	}

	return nil
}

func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("data_dir", c.DataDir),
		slog.Group("http",
			slog.String("addr", c.HTTP.Addr),
			slog.String("domain", c.HTTP.Domain),
			slog.Bool("https_enabled", c.HTTP.HTTPSEnabled()),
		),
		slog.Group("snapshot",
			slog.String("backend", c.Snapshot.Backend),
			slog.String("bucket", c.Snapshot.Bucket),
			slog.String("region", c.Snapshot.Region),
		),
		slog.Any("auth", c.Auth),
		slog.Int("max_file_size_mb", c.MaxFileSizeMB),
	)
}
