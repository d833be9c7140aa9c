package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Davygupta47/notebook/internal/api"
	"github.com/Davygupta47/notebook/internal/config"
	"github.com/Davygupta47/notebook/internal/daemon"
	"github.com/Davygupta47/notebook/internal/jobs"
	"github.com/Davygupta47/notebook/internal/logging"
	"github.com/Davygupta47/notebook/internal/pipeline/command"
	"github.com/Davygupta47/notebook/internal/services/llm"
	"github.com/Davygupta47/notebook/internal/sse"
	"github.com/Davygupta47/notebook/internal/testsupport"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newDaemon(t *testing.T, cfg *config.Config, opts ...daemon.Option) *daemon.Daemon {
	t.Helper()
	d, err := daemon.New(context.Background(), cfg, logging.NewNop(), opts...)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg, daemon.WithPipeline(testsupport.NewFakePipeline()))

	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := d.Status()
	if !status.Running || status.Address == "" {
		t.Fatalf("expected running daemon with an address, got %+v", status)
	}
	if _, err := os.Stat(status.LockFilePath); err != nil {
		t.Fatalf("expected lock file: %v", err)
	}

	resp, err := http.Get("http://" + d.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := d.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if d.Status().Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestSecondInstanceOnSameArtifactDirFails(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := newDaemon(t, cfg, daemon.WithPipeline(testsupport.NewFakePipeline()))
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}

	second := newDaemon(t, cfg, daemon.WithPipeline(testsupport.NewFakePipeline()))
	if err := second.Start(context.Background()); err == nil {
		t.Fatal("expected lock contention error")
	}
}

func TestGenerateEndToEndOnFilesystemStore(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg, daemon.WithPipeline(testsupport.NewFakePipeline()))
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	base := "http://" + d.Addr()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "paper.pdf")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(testsupport.FakePDF(2048)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.WriteField("api_key", "secret"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	resp, err := http.Post(base+"/api/generate", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("POST /api/generate: %v", err)
	}
	defer resp.Body.Close()

	var complete jobs.ArtifactFrame
	reader := sse.NewReader(resp.Body)
	for {
		frame, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("read frame: %v", err)
		}
		if frame.Event == jobs.EventError {
			t.Fatalf("unexpected error frame: %s", frame.Data)
		}
		if frame.Event == jobs.EventComplete {
			if err := frame.Decode(&complete); err != nil {
				t.Fatalf("decode complete: %v", err)
			}
		}
	}
	if complete.JobID == "" {
		t.Fatal("stream ended without a complete frame")
	}

	stored := filepath.Join(cfg.Paths.ArtifactDir, complete.JobID+".ipynb")
	data, err := os.ReadFile(stored)
	if err != nil {
		t.Fatalf("expected artifact on disk: %v", err)
	}
	if string(data) != testsupport.Notebook {
		t.Fatalf("unexpected artifact content %q", data)
	}

	dl, err := http.Get(base + "/api/download/" + complete.JobID)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	dl.Body.Close()
	if dl.StatusCode != http.StatusOK {
		t.Fatalf("download status = %d", dl.StatusCode)
	}
}

func TestStatusReflectsConfiguration(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithMaxConcurrent(4),
		testsupport.WithMaxUploadMB(2),
		testsupport.WithStorageBackend(config.StorageSQLite),
	)
	d := newDaemon(t, cfg, daemon.WithPipeline(testsupport.NewFakePipeline()), daemon.WithVersion("v-test"))
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	resp, err := http.Get("http://" + d.Addr() + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	defer resp.Body.Close()
	var status api.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Gate.Capacity != 4 || status.MaxUploadMB != 2 {
		t.Fatalf("unexpected limits %+v", status)
	}
	if status.StorageBackend != config.StorageSQLite || status.Version != "v-test" {
		t.Fatalf("unexpected identity %+v", status)
	}
	if _, err := os.Stat(cfg.Storage.SQLitePath); err != nil {
		t.Fatalf("expected sqlite database: %v", err)
	}
}

func TestStopWaitsForRunningJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	release := make(chan struct{})
	fake := testsupport.NewFakePipeline()
	fake.Release = release
	d := newDaemon(t, cfg, daemon.WithPipeline(fake))
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("file", "paper.pdf")
	_, _ = part.Write(testsupport.FakePDF(512))
	_ = mw.WriteField("api_key", "secret")
	_ = mw.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		resp, err := http.Post("http://"+d.Addr()+"/api/generate", mw.FormDataContentType(), &body)
		if err != nil {
			return
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	deadline := time.Now().Add(5 * time.Second)
	for len(d.Status().Active) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("job never became active")
		}
		time.Sleep(10 * time.Millisecond)
	}

	stopped := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		stopped <- d.Stop(ctx)
	}()

	select {
	case err := <-stopped:
		t.Fatalf("Stop returned before the job finished: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	if err := <-stopped; err != nil {
		t.Fatalf("Stop: %v", err)
	}
	<-done
	if active := d.Status().Active; len(active) != 0 {
		t.Fatalf("expected no active jobs after stop, got %+v", active)
	}
}

func TestBuildPipeline(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	p, err := daemon.BuildPipeline(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("llm pipeline: %v", err)
	}
	if _, ok := p.(*llm.Generator); !ok {
		t.Fatalf("expected *llm.Generator, got %T", p)
	}

	cmdCfg := testsupport.NewConfig(t, testsupport.WithCommandPipeline("/usr/bin/converter", "--fast"))
	p, err = daemon.BuildPipeline(cmdCfg, logging.NewNop())
	if err != nil {
		t.Fatalf("command pipeline: %v", err)
	}
	if _, ok := p.(*command.Pipeline); !ok {
		t.Fatalf("expected *command.Pipeline, got %T", p)
	}

	cmdCfg.Pipeline.Kind = "carrier-pigeon"
	if _, err := daemon.BuildPipeline(cmdCfg, logging.NewNop()); err == nil {
		t.Fatal("expected error for unknown pipeline kind")
	}
}

func TestNewRequiresConfig(t *testing.T) {
	if _, err := daemon.New(context.Background(), nil, nil); err == nil {
		t.Fatal("expected error without config")
	}
}
