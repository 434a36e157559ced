package toolmgr_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"reembed/internal/services"
	"reembed/internal/services/github"
	"reembed/internal/toolmgr"
)

type fakeSource struct {
	mu      sync.Mutex
	release github.Release
	err     error
	calls   int
}

func (f *fakeSource) Latest(context.Context) (github.Release, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.release, f.err
}

func (f *fakeSource) set(rel github.Release, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.release = rel
	f.err = err
}

type assetServer struct {
	*httptest.Server
	downloads atomic.Int32
	bodies    map[string]string
}

func newAssetServer(t *testing.T, bodies map[string]string) *assetServer {
	t.Helper()
	srv := &assetServer{bodies: bodies}
	srv.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := srv.bodies[strings.TrimPrefix(r.URL.Path, "/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		srv.downloads.Add(1)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (s *assetServer) release(tag string) github.Release {
	return github.Release{Tag: tag, DownloadURL: s.URL + "/" + tag, Size: int64(len(s.bodies[tag]))}
}

func newManager(t *testing.T, dir string, source toolmgr.ReleaseSource) *toolmgr.Manager {
	t.Helper()
	mgr, err := toolmgr.NewManager(toolmgr.Options{Dir: dir, Prefix: "yt_dlp", Source: source, Prune: true})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return mgr
}

func TestRefreshInstallsAndReusesCurrent(t *testing.T) {
	srv := newAssetServer(t, map[string]string{"2025.01.15": "#!/bin/sh\necho one\n"})
	source := &fakeSource{release: srv.release("2025.01.15")}
	dir := filepath.Join(t.TempDir(), "tools")
	mgr := newManager(t, dir, source)

	result, err := mgr.RefreshIfNewer(context.Background())
	if err != nil {
		t.Fatalf("RefreshIfNewer: %v", err)
	}
	if result.Status != toolmgr.Updated || !result.Downloaded {
		t.Fatalf("expected downloaded update, got %+v", result)
	}
	wantPath := filepath.Join(dir, "yt_dlp_2025-01-15")
	if mgr.Path() != wantPath {
		t.Fatalf("unexpected path: got %q want %q", mgr.Path(), wantPath)
	}
	info, err := os.Stat(wantPath)
	if err != nil {
		t.Fatalf("stat artifact: %v", err)
	}
	if info.Mode().Perm()&0o100 == 0 {
		t.Fatalf("artifact is not executable: %v", info.Mode())
	}

	result, err = mgr.RefreshIfNewer(context.Background())
	if err != nil {
		t.Fatalf("second RefreshIfNewer: %v", err)
	}
	if result.Status != toolmgr.AlreadyCurrent {
		t.Fatalf("expected already current, got %s", result.Status)
	}
	if got := srv.downloads.Load(); got != 1 {
		t.Fatalf("expected exactly one download, got %d", got)
	}
}

func TestRefreshReusesCachedArtifactAcrossRestarts(t *testing.T) {
	srv := newAssetServer(t, map[string]string{"v1": "binary-v1"})
	source := &fakeSource{release: srv.release("v1")}
	dir := t.TempDir()

	if _, err := newManager(t, dir, source).RefreshIfNewer(context.Background()); err != nil {
		t.Fatalf("first manager: %v", err)
	}
	result, err := newManager(t, dir, source).RefreshIfNewer(context.Background())
	if err != nil {
		t.Fatalf("second manager: %v", err)
	}
	if result.Downloaded {
		t.Fatal("expected cached artifact to be reused")
	}
	if got := srv.downloads.Load(); got != 1 {
		t.Fatalf("expected one download, got %d", got)
	}
}

func TestRefreshKeepsCurrentAndPreviousOnly(t *testing.T) {
	srv := newAssetServer(t, map[string]string{"v1": "one", "v2": "two", "v3": "three"})
	source := &fakeSource{release: srv.release("v1")}
	dir := t.TempDir()
	mgr := newManager(t, dir, source)

	for _, tag := range []string{"v1", "v2", "v3"} {
		source.set(srv.release(tag), nil)
		if _, err := mgr.RefreshIfNewer(context.Background()); err != nil {
			t.Fatalf("refresh %s: %v", tag, err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	if len(names) != 2 || names[0] != "yt_dlp_v2" || names[1] != "yt_dlp_v3" {
		t.Fatalf("unexpected artifacts: %v", names)
	}
	if mgr.Current().Tag != "v3" {
		t.Fatalf("unexpected current tag: %s", mgr.Current().Tag)
	}
}

func TestRefreshFailureKeepsCurrent(t *testing.T) {
	srv := newAssetServer(t, map[string]string{"v1": "one", "v2": "two"})
	source := &fakeSource{release: srv.release("v1")}
	dir := t.TempDir()
	mgr := newManager(t, dir, source)
	if _, err := mgr.RefreshIfNewer(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	before := mgr.Current()

	source.set(github.Release{}, services.Wrap(services.ErrNetwork, "github", "latest", "unreachable", nil))
	if _, err := mgr.RefreshIfNewer(context.Background()); !errors.Is(err, services.ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	if mgr.Current() != before {
		t.Fatalf("current changed after failed feed check: %+v", mgr.Current())
	}

	bad := srv.release("v2")
	bad.Size = 999
	source.set(bad, nil)
	if _, err := mgr.RefreshIfNewer(context.Background()); !errors.Is(err, services.ErrIntegrity) {
		t.Fatalf("expected integrity error, got %v", err)
	}
	if mgr.Current() != before {
		t.Fatalf("current changed after size mismatch: %+v", mgr.Current())
	}
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".partial-") {
			t.Fatalf("partial download left behind: %s", e.Name())
		}
	}
}

func TestStartFallsBackToCachedArtifact(t *testing.T) {
	srv := newAssetServer(t, map[string]string{"v1": "one"})
	source := &fakeSource{release: srv.release("v1")}
	dir := t.TempDir()
	if _, err := newManager(t, dir, source).Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	source.set(github.Release{}, errors.New("offline"))
	mgr := newManager(t, dir, source)
	if _, err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start with cache: %v", err)
	}
	if mgr.Current().Tag != "v1" {
		t.Fatalf("expected cached v1, got %+v", mgr.Current())
	}

	empty := newManager(t, t.TempDir(), source)
	if _, err := empty.Start(context.Background()); err == nil {
		t.Fatal("expected Start to fail with no feed and no cache")
	}
}

func TestSafeTag(t *testing.T) {
	cases := map[string]string{
		"2025.01.15":    "2025-01-15",
		"v1.2.3-rc/1":   "v1-2-3-rc-1",
		"nightly_build": "nightly-build",
		"../../etc":     "------etc",
		"ÄBC":           "--BC",
	}
	for in, want := range cases {
		if got := toolmgr.SafeTag(in); got != want {
			t.Fatalf("SafeTag(%q) = %q want %q", in, got, want)
		}
	}
}

func TestOneShotRefreshLeavesDaemonArtifact(t *testing.T) {
	srv := newAssetServer(t, map[string]string{"2024.01.01": "old-build", "2024.02.02": "new-build"})
	dir := t.TempDir()

	daemonSource := &fakeSource{release: srv.release("2024.01.01")}
	daemon := newManager(t, dir, daemonSource)
	if _, err := daemon.Start(context.Background()); err != nil {
		t.Fatalf("daemon start: %v", err)
	}
	served := daemon.Path()

	cli, err := toolmgr.NewManager(toolmgr.Options{
		Dir:    dir,
		Prefix: "yt_dlp",
		Source: &fakeSource{release: srv.release("2024.02.02")},
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	result, err := cli.RefreshIfNewer(context.Background())
	if err != nil {
		t.Fatalf("cli refresh: %v", err)
	}
	if result.Status != toolmgr.Updated {
		t.Fatalf("expected cli update, got %+v", result)
	}
	if _, err := os.Stat(served); err != nil {
		t.Fatalf("daemon still serves %s but it was removed: %v", served, err)
	}

	daemonSource.set(srv.release("2024.02.02"), nil)
	result, err = daemon.RefreshIfNewer(context.Background())
	if err != nil {
		t.Fatalf("daemon refresh: %v", err)
	}
	if result.Downloaded {
		t.Fatal("daemon should reuse the artifact the cli installed")
	}
	if _, err := os.Stat(served); err != nil {
		t.Fatalf("previous build must survive one swap: %v", err)
	}
}
