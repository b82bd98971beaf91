package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultInterval = 6 * time.Hour
	defaultKeepLast = 24

	filePrefix = "cohortlens-"
	fileSuffix = ".duckdb"
	// Lexical order of the stamp is chronological order.
	stampLayout = "20060102-150405.000000000"
)

// Manager takes periodic local snapshots, uploads them when a bucket is
// configured, and keeps the newest KeepLast local copies.
type Manager struct {
	store    Snapshotter
	cfg      Config
	uploader Uploader
	logger   *zap.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewManager validates cfg and starts the backup loop. It returns nil when
// backups are disabled.
func NewManager(store Snapshotter, cfg Config) (*Manager, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if store == nil {
		return nil, fmt.Errorf("backup: nil snapshotter")
	}
	if strings.TrimSpace(store.DBPath()) == "" {
		return nil, fmt.Errorf("backup: db-path is empty (in-memory store)")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if strings.TrimSpace(cfg.LocalDir) == "" {
		return nil, fmt.Errorf("backup: local-dir is required when backup is enabled")
	}
	if cfg.KeepLast <= 0 {
		cfg.KeepLast = defaultKeepLast
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if err := os.MkdirAll(cfg.LocalDir, 0755); err != nil {
		return nil, fmt.Errorf("backup: create local-dir: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	uploader, err := newUploader(ctx, cfg)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("backup: init uploader: %w", err)
	}

	m := &Manager{
		store:    store,
		cfg:      cfg,
		uploader: uploader,
		logger:   cfg.Logger,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	if err := m.RunOnce(ctx); err != nil {
		m.logger.Warn("backup: startup snapshot failed", zap.Error(err))
	}

	m.wg.Add(1)
	go m.loop()
	return m, nil
}

// newUploader picks the MinIO client for S3-compatible endpoints and the AWS
// SDK otherwise. No bucket means local snapshots only.
func newUploader(ctx context.Context, cfg Config) (Uploader, error) {
	if strings.TrimSpace(cfg.BucketURL) == "" {
		return nil, nil
	}
	s3cfg := S3Config{
		BucketURL:    cfg.BucketURL,
		Endpoint:     cfg.S3Endpoint,
		Region:       cfg.S3Region,
		AccessKey:    cfg.S3AccessKey,
		SecretKey:    cfg.S3SecretKey,
		SessionToken: cfg.S3SessionToken,
		UseSSL:       cfg.S3UseSSL,
		ContentType:  "application/octet-stream",
	}
	if strings.TrimSpace(cfg.S3Endpoint) != "" {
		return NewMinioUploader(s3cfg)
	}
	return NewS3Uploader(ctx, s3cfg)
}

func (m *Manager) loop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.RunOnce(m.ctx); err != nil && m.ctx.Err() == nil {
				m.logger.Warn("backup: periodic snapshot failed", zap.Error(err))
			}
		case <-m.done:
			return
		}
	}
}

// RunOnce creates one local snapshot, uploads it when configured, and prunes
// old local copies.
func (m *Manager) RunOnce(ctx context.Context) error {
	fileName := filePrefix + time.Now().UTC().Format(stampLayout) + fileSuffix
	localPath := filepath.Join(m.cfg.LocalDir, fileName)

	if err := m.store.SnapshotTo(ctx, localPath); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	m.log().Info("backup: created snapshot", zap.String("path", localPath))

	if m.uploader != nil {
		if err := m.uploader.UploadFile(ctx, localPath); err != nil {
			return fmt.Errorf("upload: %w", err)
		}
		m.log().Info("backup: uploaded snapshot", zap.String("file", fileName))
	}

	if err := pruneLocalBackups(m.cfg.LocalDir, m.cfg.KeepLast); err != nil {
		return fmt.Errorf("prune local backups: %w", err)
	}
	return nil
}

func (m *Manager) log() *zap.Logger {
	if m.logger == nil {
		return zap.NewNop()
	}
	return m.logger
}

// Stop cancels any in-flight upload and terminates the backup loop.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		if m.cancel != nil {
			m.cancel()
		}
		close(m.done)
		m.wg.Wait()
	})
}

func pruneLocalBackups(localDir string, keepLast int) error {
	if keepLast <= 0 {
		return nil
	}

	matches, err := filepath.Glob(filepath.Join(localDir, filePrefix+"*"+fileSuffix))
	if err != nil {
		return err
	}
	if len(matches) <= keepLast {
		return nil
	}

	slices.Sort(matches)
	slices.Reverse(matches)
	for _, oldPath := range matches[keepLast:] {
		if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
