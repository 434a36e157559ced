package toolmgr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"reembed/internal/logging"
	"reembed/internal/services"
	"reembed/internal/services/github"
)

const partialPrefix = ".partial-"

// Release is one published build: tag, asset URL, and expected size.
type Release = github.Release

// ReleaseSource reports the newest published build of the managed tool.
type ReleaseSource interface {
	Latest(ctx context.Context) (Release, error)
}

// Executable is one installed version of the managed tool.
type Executable struct {
	Tag  string
	Path string
}

// Status describes the outcome of a refresh.
type Status int

const (
	AlreadyCurrent Status = iota
	Updated
)

func (s Status) String() string {
	if s == Updated {
		return "updated"
	}
	return "already_current"
}

// RefreshResult reports what a refresh did.
type RefreshResult struct {
	Status     Status
	Current    Executable
	Previous   Executable
	Downloaded bool
}

// Options configures a Manager.
type Options struct {
	// Dir holds one file per cached version.
	Dir string
	// Prefix and Ext frame the version tag in artifact file names.
	Prefix string
	Ext    string
	Source ReleaseSource
	// HTTPClient downloads release assets.
	HTTPClient *http.Client
	Logger     *slog.Logger
	// Prune removes superseded artifacts after a swap. Only the long-lived
	// owner of the directory may set it: a one-shot manager cannot know which
	// version another process is still running.
	Prune bool
}

// Manager owns the lifecycle of a versioned external binary. Readers take
// the path under a read lock; a refresh downloads outside any lock and only
// holds the write lock to swap the committed Executable.
type Manager struct {
	dir      string
	prefix   string
	ext      string
	source   ReleaseSource
	client   *http.Client
	logger   *slog.Logger
	fileLk   *flock.Flock
	pruneOld bool

	mu      sync.RWMutex
	current Executable

	refresh sync.Mutex
}

// NewManager validates opts. It performs no I/O beyond creating Dir.
func NewManager(opts Options) (*Manager, error) {
	if strings.TrimSpace(opts.Dir) == "" {
		return nil, errors.New("toolmgr: artifact directory required")
	}
	if opts.Source == nil {
		return nil, errors.New("toolmgr: release source required")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "tool"
	}
	dir := filepath.Clean(opts.Dir)
	return &Manager{
		dir:      dir,
		prefix:   prefix,
		ext:      opts.Ext,
		source:   opts.Source,
		client:   client,
		logger:   logging.NewComponentLogger(opts.Logger, "toolmgr"),
		fileLk:   flock.New(dir + ".lock"),
		pruneOld: opts.Prune,
	}, nil
}

// Start installs the newest release. When the feed cannot be reached it
// falls back to the newest cached artifact; with neither it fails.
func (m *Manager) Start(ctx context.Context) (RefreshResult, error) {
	result, err := m.RefreshIfNewer(ctx)
	if err == nil {
		return result, nil
	}
	cached, cacheErr := m.newestCached()
	if cacheErr != nil || cached.Path == "" {
		return RefreshResult{}, fmt.Errorf("no usable %s executable: %w", m.prefix, err)
	}
	logging.WarnWithContext(m.logger, "release feed unavailable; using cached executable", "tool_start_cached",
		logging.String("tag", cached.Tag),
		logging.String("path", cached.Path),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check network access to the release feed"),
		logging.String(logging.FieldImpact, "extraction runs on a possibly outdated build"),
	)
	m.mu.Lock()
	m.current = cached
	m.mu.Unlock()
	return RefreshResult{Status: Updated, Current: cached}, nil
}

// Current returns the executable acquisitions should run.
func (m *Manager) Current() Executable {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Path is Current().Path.
func (m *Manager) Path() string {
	return m.Current().Path
}

// RefreshIfNewer fetches the release feed and installs the advertised build
// when its tag differs from the current one. Failures leave Current intact.
func (m *Manager) RefreshIfNewer(ctx context.Context) (RefreshResult, error) {
	release, err := m.source.Latest(ctx)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("check latest release: %w", err)
	}
	if strings.TrimSpace(release.Tag) == "" || strings.TrimSpace(release.DownloadURL) == "" {
		return RefreshResult{}, services.Wrap(services.ErrValidation, "toolmgr", "refresh", "release missing tag or download url", nil)
	}
	if cur := m.Current(); cur.Tag == release.Tag && cur.Path != "" {
		return RefreshResult{Status: AlreadyCurrent, Current: cur}, nil
	}

	m.refresh.Lock()
	defer m.refresh.Unlock()

	if cur := m.Current(); cur.Tag == release.Tag && cur.Path != "" {
		return RefreshResult{Status: AlreadyCurrent, Current: cur}, nil
	}

	locked, err := m.fileLk.TryLockContext(ctx, 250*time.Millisecond)
	if err != nil || !locked {
		return RefreshResult{}, fmt.Errorf("lock artifact directory: %w", errors.Join(err, ctx.Err()))
	}
	defer m.fileLk.Unlock() //nolint:errcheck

	path := filepath.Join(m.dir, ArtifactName(m.prefix, release.Tag, m.ext))
	downloaded := false
	if !m.cached(path, release.Size) {
		if err := m.download(ctx, release, path); err != nil {
			return RefreshResult{}, err
		}
		downloaded = true
	}

	next := Executable{Tag: release.Tag, Path: path}
	m.mu.Lock()
	previous := m.current
	m.current = next
	m.mu.Unlock()

	if m.pruneOld {
		m.prune(next, previous)
	}
	m.logger.Info("managed executable installed",
		logging.String("tag", next.Tag),
		logging.String("previous_tag", previous.Tag),
		logging.Bool("downloaded", downloaded),
		logging.String(logging.FieldEventType, "tool_installed"),
	)
	return RefreshResult{Status: Updated, Current: next, Previous: previous, Downloaded: downloaded}, nil
}

func (m *Manager) cached(path string, size int64) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return size > 0 && info.Size() == size
}

func (m *Manager) download(ctx context.Context, release Release, target string) error {
	m.logger.Debug("downloading managed executable",
		logging.String("tag", release.Tag),
		logging.String("url", release.DownloadURL),
		logging.Int64("expected_bytes", release.Size),
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, release.DownloadURL, nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrNetwork, "toolmgr", "download", release.Tag, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return services.Wrap(services.ErrNetwork, "toolmgr", "download", fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	tempPath := filepath.Join(m.dir, partialPrefix+filepath.Base(target))
	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o755)
	if err != nil {
		return fmt.Errorf("create partial artifact: %w", err)
	}
	written, copyErr := io.Copy(file, resp.Body)
	closeErr := file.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		os.Remove(tempPath)
		return services.Wrap(services.ErrNetwork, "toolmgr", "download", release.Tag, err)
	}
	if release.Size > 0 && written != release.Size {
		os.Remove(tempPath)
		return services.Wrap(services.ErrIntegrity, "toolmgr", "download",
			fmt.Sprintf("size mismatch: got %d bytes, expected %d", written, release.Size), nil)
	}
	if err := os.Chmod(tempPath, 0o755); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("mark executable: %w", err)
	}
	if err := os.Rename(tempPath, target); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("install artifact: %w", err)
	}
	return nil
}

// prune removes every artifact except the current and previous versions, so
// an acquisition that read the old path just before the swap can still run it.
func (m *Manager) prune(current, previous Executable) {
	keep := map[string]struct{}{current.Path: {}}
	if previous.Path != "" {
		keep[previous.Path] = struct{}{}
	}
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		path := filepath.Join(m.dir, entry.Name())
		if _, ok := keep[path]; ok {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			m.logger.Debug("prune artifact failed", logging.String("path", path), logging.Error(err))
		}
	}
}

// Installed returns the newest cached artifact without contacting the feed.
// The tag is the file-name form produced by SafeTag.
func (m *Manager) Installed() (Executable, error) {
	return m.newestCached()
}

func (m *Manager) newestCached() (Executable, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return Executable{}, err
	}
	type candidate struct {
		exe Executable
		mod time.Time
	}
	var candidates []candidate
	prefix := m.prefix + "_"
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, m.ext) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.Size() == 0 {
			continue
		}
		tag := strings.TrimSuffix(strings.TrimPrefix(name, prefix), m.ext)
		candidates = append(candidates, candidate{
			exe: Executable{Tag: tag, Path: filepath.Join(m.dir, name)},
			mod: info.ModTime(),
		})
	}
	if len(candidates) == 0 {
		return Executable{}, fs.ErrNotExist
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].mod.After(candidates[j].mod) })
	return candidates[0].exe, nil
}

// ArtifactName is the cache file name for tag: letters and digits are kept,
// everything else becomes '-'.
func ArtifactName(prefix, tag, ext string) string {
	return prefix + "_" + SafeTag(tag) + ext
}

// SafeTag maps tag onto ASCII letters, digits, and '-'.
func SafeTag(tag string) string {
	var b strings.Builder
	b.Grow(len(tag))
	for i := 0; i < len(tag); i++ {
		c := tag[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteByte(c)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}
