package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// reloadDelay coalesces bursts of file events into one reload.
const reloadDelay = 500 * time.Millisecond

type parseFunc func(path string, data []byte) (Policy, error)

// parsers maps a file extension to its policy parser.
var parsers = map[string]parseFunc{
	".rego": parseRego,
	".json": parseJSON,
}

type cacheEntry struct {
	modTime time.Time
	size    int64
	policy  Policy
}

// Loader reads policy files. Parsed files are cached until their size or
// modification time changes.
type Loader struct {
	logger zerolog.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
	timer *time.Timer

	watcher *fsnotify.Watcher
}

// NewLoader creates a new policy loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		logger: logger.With().Str("component", "policy-loader").Logger(),
		cache:  make(map[string]cacheEntry),
	}
}

// Load reads every policy file named by paths. Directories are walked
// recursively and files in them that fail to parse are skipped with a
// warning; a named file that fails to parse is an error. The result is
// ordered by file path.
func (l *Loader) Load(ctx context.Context, paths []string) ([]Policy, error) {
	var policies []Policy

	for _, root := range paths {
		files, explicit, err := policyFiles(root)
		if err != nil {
			return nil, fmt.Errorf("failed to load from path %s: %w", root, err)
		}

		for _, file := range files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			p, err := l.readPolicy(file)
			if err != nil {
				if explicit {
					return nil, err
				}
				l.logger.Warn().Err(err).Str("path", file).Msg("Skipping policy file")
				continue
			}
			policies = append(policies, p)
		}
	}

	l.logger.Info().
		Int("total", len(policies)).
		Int("sources", len(paths)).
		Msg("Policies loaded from paths")

	return policies, nil
}

// policyFiles lists the policy files under root in lexical order. explicit
// reports whether root itself names a file.
func policyFiles(root string) (files []string, explicit bool, err error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, false, err
	}
	if !info.IsDir() {
		return []string{root}, true, nil
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isPolicyFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to walk directory: %w", err)
	}
	sort.Strings(files)
	return files, false, nil
}

func isPolicyFile(path string) bool {
	_, ok := parsers[filepath.Ext(path)]
	return ok
}

// readPolicy parses one file, reusing the cached result while the file is
// unchanged.
func (l *Loader) readPolicy(path string) (Policy, error) {
	parse, ok := parsers[filepath.Ext(path)]
	if !ok {
		return Policy{}, fmt.Errorf("unsupported file type: %s", path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return Policy{}, fmt.Errorf("failed to stat file: %w", err)
	}

	l.mu.Lock()
	entry, hit := l.cache[path]
	l.mu.Unlock()
	if hit && entry.size == info.Size() && entry.modTime.Equal(info.ModTime()) {
		return entry.policy, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("failed to read file: %w", err)
	}
	p, err := parse(path, data)
	if err != nil {
		return Policy{}, err
	}

	l.mu.Lock()
	l.cache[path] = cacheEntry{modTime: info.ModTime(), size: info.Size(), policy: p}
	l.mu.Unlock()

	l.logger.Debug().
		Str("path", path).
		Str("policy", p.Name).
		Str("severity", string(p.Severity)).
		Msg("Policy parsed")

	return p, nil
}

// parseRego turns a .rego file into a policy named after the file. The
// leading comment block supplies the description and severity.
func parseRego(path string, data []byte) (Policy, error) {
	src := string(data)
	description, severity := parseHeader(src)
	return Policy{
		Name:        strings.TrimSuffix(filepath.Base(path), ".rego"),
		Description: description,
		Rego:        src,
		Severity:    severity,
		Enabled:     true,
		Source:      path,
	}, nil
}

// parseJSON reads a policy document. Name defaults to the file name and
// severity to warning.
func parseJSON(path string, data []byte) (Policy, error) {
	p := Policy{Enabled: true}
	if err := json.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("failed to parse JSON policy: %w", err)
	}

	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(path), ".json")
	}
	if p.Rego == "" {
		return Policy{}, fmt.Errorf("policy %s has no rego", p.Name)
	}
	if p.Severity == "" {
		p.Severity = SeverityWarning
	}
	p.Source = path
	return p, nil
}

// parseHeader reads the comment block before the first line of code.
// A "severity: <level>" comment sets the severity; the other comments form
// the description. Unknown levels and a missing line mean warning.
func parseHeader(src string) (description string, severity Severity) {
	severity = SeverityWarning
	var parts []string

	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		comment, ok := strings.CutPrefix(trimmed, "#")
		if !ok {
			break
		}
		comment = strings.TrimSpace(comment)
		if level, ok := strings.CutPrefix(comment, "severity:"); ok {
			switch s := Severity(strings.TrimSpace(level)); s {
			case SeverityInfo, SeverityWarning, SeverityError:
				severity = s
			}
			continue
		}
		if comment != "" {
			parts = append(parts, comment)
		}
	}

	return strings.Join(parts, " "), severity
}

// Watch reloads the policies under paths whenever a policy file changes and
// hands the result to reload. Watching stops when ctx is done or Close is
// called.
func (l *Loader) Watch(ctx context.Context, paths []string, reload func([]Policy) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	watched := 0
	for _, root := range paths {
		dirs, err := watchTargets(root)
		if err != nil {
			l.logger.Warn().Err(err).Str("path", root).Msg("Cannot watch policy path")
			continue
		}
		for _, dir := range dirs {
			if err := watcher.Add(dir); err != nil {
				l.logger.Warn().Err(err).Str("path", dir).Msg("Cannot watch policy path")
				continue
			}
			watched++
		}
	}
	if watched == 0 {
		_ = watcher.Close()
		return fmt.Errorf("no policy path could be watched")
	}

	l.watcher = watcher
	go l.processEvents(ctx, paths, reload)

	l.logger.Info().Int("paths", len(paths)).Msg("Watching policy paths")
	return nil
}

// watchTargets returns the directories to watch for root: every directory
// below it, or the parent of a single file.
func watchTargets(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{filepath.Dir(root)}, nil
	}

	var dirs []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			dirs = append(dirs, path)
		}
		return nil
	})
	return dirs, err
}

func (l *Loader) processEvents(ctx context.Context, paths []string, reload func([]Policy) error) {
	defer func() {
		_ = l.watcher.Close()
		l.mu.Lock()
		if l.timer != nil {
			l.timer.Stop()
		}
		l.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if !isPolicyFile(event.Name) || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			l.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Policy file changed")
			l.scheduleReload(ctx, paths, reload)

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error().Err(err).Msg("Policy watcher error")
		}
	}
}

func (l *Loader) scheduleReload(ctx context.Context, paths []string, reload func([]Policy) error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.timer != nil {
		l.timer.Stop()
	}
	l.timer = time.AfterFunc(reloadDelay, func() {
		policies, err := l.Load(ctx, paths)
		if err != nil {
			l.logger.Error().Err(err).Msg("Failed to reload policies")
			return
		}
		if err := reload(policies); err != nil {
			l.logger.Error().Err(err).Msg("Rejected reloaded policies")
			return
		}
		l.logger.Info().Int("count", len(policies)).Msg("Policies reloaded")
	})
}

// Close stops watching.
func (l *Loader) Close() error {
	if l.watcher == nil {
		return nil
	}
	return l.watcher.Close()
}
