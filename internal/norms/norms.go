// Package norms keeps the technical-standard reference library in memory
// and reloads it when the backing YAML files change on disk.
package norms

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/swscloud/reviewd/internal/errors"
	"github.com/swscloud/reviewd/internal/observability"
)

// Record is one citable clause from a technical standard.
type Record struct {
	Code     string   `yaml:"code" json:"code"`
	Standard string   `yaml:"standard" json:"standard"`
	Clause   string   `yaml:"clause" json:"clause,omitempty"`
	Title    string   `yaml:"title" json:"title"`
	Text     string   `yaml:"text" json:"text,omitempty"`
	Keywords []string `yaml:"keywords" json:"keywords,omitempty"`
}

type snapshot struct {
	records []Record
	byCode  map[string]*Record
}

// Library serves norm records from a directory of YAML files. Reads are
// lock-free against an atomic snapshot; Watch swaps the snapshot on file
// changes.
type Library struct {
	dir  string
	snap atomic.Pointer[snapshot]
}

// NewLibrary loads dir once. An empty dir path yields an empty library
// that Watch turns into a no-op.
func NewLibrary(dir string) (*Library, error) {
	l := &Library{dir: dir}
	l.snap.Store(&snapshot{byCode: map[string]*Record{}})
	if dir == "" {
		return l, nil
	}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Reload re-reads every YAML file under the library directory and swaps
// the snapshot.
func (l *Library) Reload() error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return errors.Wrap(err, errors.CategoryConfig, errors.SeverityError, "read norm library dir")
	}

	var records []Record
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(l.dir, e.Name()))
		if err != nil {
			return errors.Wrap(err, errors.CategoryConfig, errors.SeverityError, "read norm file "+e.Name())
		}
		var batch []Record
		if err := yaml.Unmarshal(data, &batch); err != nil {
			return errors.Wrap(err, errors.CategoryConfig, errors.SeverityError, "parse norm file "+e.Name())
		}
		records = append(records, batch...)
	}

	sort.SliceStable(records, func(i, j int) bool { return records[i].Code < records[j].Code })
	s := &snapshot{records: records, byCode: make(map[string]*Record, len(records))}
	for i := range s.records {
		s.byCode[s.records[i].Code] = &s.records[i]
	}
	l.snap.Store(s)
	return nil
}

// All returns the current record list. Callers must not mutate it.
func (l *Library) All() []Record {
	return l.snap.Load().records
}

// Get returns the record with the given code.
func (l *Library) Get(code string) (Record, bool) {
	r := l.snap.Load().byCode[code]
	if r == nil {
		return Record{}, false
	}
	return *r, true
}

// Match returns records whose keywords occur in text, best first by
// keyword hit count.
func (l *Library) Match(text string, limit int) []Record {
	type scored struct {
		rec  Record
		hits int
	}
	var matched []scored
	for _, r := range l.snap.Load().records {
		hits := 0
		for _, kw := range r.Keywords {
			if kw != "" && strings.Contains(text, kw) {
				hits++
			}
		}
		if hits > 0 {
			matched = append(matched, scored{r, hits})
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].hits > matched[j].hits })
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	out := make([]Record, len(matched))
	for i, m := range matched {
		out[i] = m.rec
	}
	return out
}

// Watch reloads the library on file changes until ctx is done. Events are
// debounced so editors that write in multiple steps trigger one reload.
func (l *Library) Watch(ctx context.Context) error {
	if l.dir == "" {
		<-ctx.Done()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, errors.SeverityError, "create norm watcher")
	}
	defer watcher.Close()

	if err := watcher.Add(l.dir); err != nil {
		return errors.Wrap(err, errors.CategoryConfig, errors.SeverityError, "watch norm library dir")
	}
	observability.Info(ctx, "norm library watching", slog.String("dir", l.dir))

	var timer *time.Timer
	reload := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) &&
				!ev.Op.Has(fsnotify.Remove) && !ev.Op.Has(fsnotify.Rename) {
				continue
			}
			ext := strings.ToLower(filepath.Ext(ev.Name))
			if ext != ".yaml" && ext != ".yml" {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(300*time.Millisecond, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			observability.Warn(ctx, "norm watcher error", slog.Any("error", err))
		case <-reload:
			if err := l.Reload(); err != nil {
				observability.Warn(ctx, "norm library reload failed", slog.Any("error", err))
				continue
			}
			observability.Info(ctx, "norm library reloaded",
				slog.Int("records", len(l.All())))
		}
	}
}
