package main

import (
	"time"

	"github.com/tinytelemetry/cohortlens/internal/model"
)

const (
	defaultBindHost        = "127.0.0.1"
	defaultAPIPort         = 3000
	defaultQueryTimeout    = model.DefaultQueryTimeout
	defaultRebuildInterval = model.DefaultRebuildInterval
	defaultLogLevel        = model.DefaultLogLevel
	defaultBackupInterval  = 6 * time.Hour
	defaultBackupKeepLast  = 24
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	DBPath          string        `mapstructure:"db-path"`
	QueryTimeout    time.Duration `mapstructure:"query-timeout"`
	APIEnabled      bool          `mapstructure:"api-enabled"`
	APIPort         int           `mapstructure:"api-port"`
	APIAddr         string        `mapstructure:"api-addr"`
	RebuildOnStart  bool          `mapstructure:"rebuild-on-start"`
	RebuildInterval time.Duration `mapstructure:"rebuild-interval"`
	LogLevel        string        `mapstructure:"log-level"`
	LogPath         string        `mapstructure:"log-path"`
	SocketPath      string        `mapstructure:"socket-path"`

	BackupEnabled        bool          `mapstructure:"backup-enabled"`
	BackupInterval       time.Duration `mapstructure:"backup-interval"`
	BackupLocalDir       string        `mapstructure:"backup-local-dir"`
	BackupKeepLast       int           `mapstructure:"backup-keep-last"`
	BackupBucketURL      string        `mapstructure:"backup-bucket-url"`
	BackupS3Endpoint     string        `mapstructure:"backup-s3-endpoint"`
	BackupS3Region       string        `mapstructure:"backup-s3-region"`
	BackupS3AccessKey    string        `mapstructure:"backup-s3-access-key"`
	BackupS3SecretKey    string        `mapstructure:"backup-s3-secret-key"`
	BackupS3SessionToken string        `mapstructure:"backup-s3-session-token"`
	BackupS3UseSSL       bool          `mapstructure:"backup-s3-use-ssl"`

	ConfigPath string `mapstructure:"-"` // not from config file
}
