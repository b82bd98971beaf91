package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"github.com/tinytelemetry/cohortlens/internal/socketrpc"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

// GetVersionInfo returns the current version and commit information.
func GetVersionInfo() (string, string) {
	return version, commit
}

func main() {
	var configPath string
	var showVersion bool
	var queryFilter string
	var showStats bool

	flag.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/cohortlens/config.yml)")
	flag.BoolVar(&showVersion, "version", false, "print version information")
	flag.StringVar(&queryFilter, "query", "", "query a running server with a JSON filter and print the result")
	flag.BoolVar(&showStats, "stats", false, "print population stats from a running server")
	flag.Parse()

	if showVersion {
		fmt.Printf("Cohortlens - Population Cohort Explorer\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Built:      %s\n", buildTime)
		fmt.Printf("  Go version: %s\n", goVersion)
		return
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if queryFilter != "" || showStats {
		if err := runClient(os.Stdout, cfg.SocketPath, queryFilter, showStats); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := runServer(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(configPath string) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	dataDir := filepath.Join(home, ".local", "share", "cohortlens")

	v := viper.New()
	v.SetEnvPrefix("COHORTLENS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("db-path", filepath.Join(dataDir, "cohortlens.duckdb"))
	v.SetDefault("query-timeout", defaultQueryTimeout)
	v.SetDefault("api-enabled", true)
	v.SetDefault("api-port", defaultAPIPort)
	v.SetDefault("rebuild-on-start", true)
	v.SetDefault("rebuild-interval", defaultRebuildInterval)
	v.SetDefault("log-level", defaultLogLevel)
	v.SetDefault("log-path", filepath.Join(home, ".local", "state", "cohortlens", "cohortlens.log"))
	v.SetDefault("socket-path", socketrpc.DefaultSocketPath())
	v.SetDefault("backup-enabled", false)
	v.SetDefault("backup-interval", defaultBackupInterval)
	v.SetDefault("backup-local-dir", filepath.Join(dataDir, "backups"))
	v.SetDefault("backup-keep-last", defaultBackupKeepLast)
	v.SetDefault("backup-s3-use-ssl", true)
	// Keys without a default are invisible to AutomaticEnv during Unmarshal.
	for _, key := range []string{
		"api-addr",
		"backup-bucket-url",
		"backup-s3-endpoint",
		"backup-s3-region",
		"backup-s3-access-key",
		"backup-s3-secret-key",
		"backup-s3-session-token",
	} {
		v.SetDefault(key, "")
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		defaultConfigPath := filepath.Join(home, ".config", "cohortlens", "config.yml")
		v.SetConfigFile(defaultConfigPath)
	}

	fileRead := true
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
		fileRead = false
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	if fileRead {
		cfg.ConfigPath = v.ConfigFileUsed()
	}
	if cfg.APIPort <= 0 || cfg.APIPort > 65535 {
		return cfg, fmt.Errorf("invalid api-port: %d", cfg.APIPort)
	}
	if cfg.QueryTimeout <= 0 {
		return cfg, fmt.Errorf("invalid query-timeout: %s", cfg.QueryTimeout)
	}
	if cfg.RebuildInterval < 0 {
		return cfg, fmt.Errorf("invalid rebuild-interval: %s", cfg.RebuildInterval)
	}

	cfg.DBPath = expandHome(home, cfg.DBPath)
	cfg.LogPath = expandHome(home, cfg.LogPath)
	cfg.BackupLocalDir = expandHome(home, cfg.BackupLocalDir)
	cfg.SocketPath = expandHome(home, cfg.SocketPath)

	if cfg.APIAddr == "" {
		cfg.APIAddr = net.JoinHostPort(defaultBindHost, strconv.Itoa(cfg.APIPort))
	}

	return cfg, nil
}

func expandHome(home, path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
