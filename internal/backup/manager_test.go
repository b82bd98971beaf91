package backup

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type fakeSnapshotter struct {
	dbPath string
	data   []byte
}

func (f *fakeSnapshotter) DBPath() string { return f.dbPath }

func (f *fakeSnapshotter) SnapshotTo(_ context.Context, dstPath string) error {
	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(dstPath, f.data, 0644)
}

func TestNewManager_Disabled(t *testing.T) {
	t.Parallel()

	m, err := NewManager(&fakeSnapshotter{dbPath: "/tmp/cohortlens.duckdb", data: []byte("x")}, Config{})
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}
	if m != nil {
		t.Fatal("expected nil manager when disabled")
	}
}

func TestNewManager_EnabledRequiresDBPath(t *testing.T) {
	t.Parallel()

	_, err := NewManager(&fakeSnapshotter{dbPath: "", data: []byte("x")}, Config{
		Enabled:  true,
		LocalDir: t.TempDir(),
	})
	if err == nil {
		t.Fatal("expected error for empty db path")
	}
}

func TestRunOnce_CreatesAndPrunesLocalBackups(t *testing.T) {
	t.Parallel()

	localDir := t.TempDir()
	store := &fakeSnapshotter{
		dbPath: "/tmp/cohortlens.duckdb",
		data:   []byte("snapshot"),
	}

	m := &Manager{
		store: store,
		cfg: Config{
			Enabled:  true,
			LocalDir: localDir,
			KeepLast: 2,
		},
	}

	if err := m.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce #1: %v", err)
	}
	if err := m.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce #2: %v", err)
	}
	if err := m.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce #3: %v", err)
	}

	files, err := filepath.Glob(filepath.Join(localDir, filePrefix+"*"+fileSuffix))
	if err != nil {
		t.Fatalf("glob backups: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("backup files = %d, want 2", len(files))
	}
}

type blockingUploader struct {
	started chan struct{}
	once    sync.Once
}

func (u *blockingUploader) UploadFile(ctx context.Context, _ string) error {
	u.once.Do(func() { close(u.started) })
	<-ctx.Done()
	return ctx.Err()
}

func TestStop_CancelsInFlightUpload(t *testing.T) {
	t.Parallel()

	localDir := t.TempDir()
	uploader := &blockingUploader{started: make(chan struct{})}
	m := &Manager{
		store: &fakeSnapshotter{
			dbPath: "/tmp/cohortlens.duckdb",
			data:   []byte("snapshot"),
		},
		cfg: Config{
			Enabled:  true,
			Interval: 5 * time.Millisecond,
			LocalDir: localDir,
			KeepLast: 2,
		},
		uploader: uploader,
		done:     make(chan struct{}),
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())

	m.wg.Add(1)
	go m.loop()

	select {
	case <-uploader.started:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for upload to start")
	}

	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return; upload likely not canceled")
	}
}

func TestNewManager_StartsAndStops(t *testing.T) {
	t.Parallel()

	localDir := t.TempDir()
	m, err := NewManager(&fakeSnapshotter{dbPath: "/tmp/cohortlens.duckdb", data: []byte("x")}, Config{
		Enabled:  true,
		Interval: time.Hour,
		LocalDir: localDir,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if m == nil {
		t.Fatal("expected manager when enabled")
	}
	if m.cfg.KeepLast != defaultKeepLast {
		t.Errorf("KeepLast = %d, want %d", m.cfg.KeepLast, defaultKeepLast)
	}
	if m.uploader != nil {
		t.Error("expected no uploader without bucket-url")
	}

	files, _ := filepath.Glob(filepath.Join(localDir, filePrefix+"*"+fileSuffix))
	if len(files) != 1 {
		t.Errorf("startup snapshot files = %d, want 1", len(files))
	}

	m.Stop()
	m.Stop()
}

func TestNewUploader_Selection(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	up, err := newUploader(ctx, Config{
		BucketURL:   "s3://backups/cohortlens",
		S3Endpoint:  "localhost:9000",
		S3AccessKey: "minioadmin",
		S3SecretKey: "minioadmin",
	})
	if err != nil {
		t.Fatalf("newUploader (endpoint): %v", err)
	}
	if _, ok := up.(*MinioUploader); !ok {
		t.Errorf("uploader = %T, want *MinioUploader", up)
	}

	up, err = newUploader(ctx, Config{
		BucketURL:   "s3://backups/cohortlens",
		S3Region:    "eu-west-2",
		S3AccessKey: "AKIDEXAMPLE",
		S3SecretKey: "secret",
	})
	if err != nil {
		t.Fatalf("newUploader (aws): %v", err)
	}
	if _, ok := up.(*S3Uploader); !ok {
		t.Errorf("uploader = %T, want *S3Uploader", up)
	}

	up, err = newUploader(ctx, Config{})
	if err != nil || up != nil {
		t.Errorf("newUploader without bucket = (%v, %v), want (nil, nil)", up, err)
	}
}
