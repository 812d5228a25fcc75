// Package challenge supplies challenge content per category and level.
// Records are passed through untouched; the service only looks them up.
package challenge

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/okian/codequest/internal/domain/model"
	"github.com/okian/codequest/pkg/logger"
	"gopkg.in/yaml.v3"
)

const dayLayout = "2006-01-02"

// Catalog returns challenge content.
type Catalog interface {
	// Challenge returns the record for level, or model.ErrChallengeNotFound
	// once the category's content is exhausted.
	Challenge(ctx context.Context, category string, level int) (model.ChallengeRecord, error)
	// Daily returns the daily quest for category on day. The pick is stable
	// for a given (category, UTC date).
	Daily(ctx context.Context, category string, day time.Time) (model.ChallengeRecord, error)
}

// categoryFile is the on-disk layout of one category.
type categoryFile struct {
	Category string                  `yaml:"category"`
	Levels   []model.ChallengeRecord `yaml:"levels"`
	Daily    []model.ChallengeRecord `yaml:"daily"`
}

type track struct {
	levels map[int]model.ChallengeRecord
	daily  []model.ChallengeRecord
}

// YAMLCatalog serves challenges loaded from a directory of YAML files.
type YAMLCatalog struct {
	mu     sync.RWMutex
	tracks map[string]*track
	log    logger.Logger
}

var _ Catalog = (*YAMLCatalog)(nil)

// Option applies a configuration option to the YAMLCatalog.
type Option func(*YAMLCatalog)

// WithLogger sets the catalog logger.
func WithLogger(l logger.Logger) Option {
	return func(c *YAMLCatalog) {
		if l != nil {
			c.log = l
		}
	}
}

// NewYAMLCatalog returns an empty catalog.
func NewYAMLCatalog(opts ...Option) *YAMLCatalog {
	c := &YAMLCatalog{tracks: make(map[string]*track), log: logger.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.Named("challenge")
	return c
}

// LoadDir loads every *.yaml and *.yml file in dir. A missing directory
// leaves the catalog empty; a malformed file is an error.
func (c *YAMLCatalog) LoadDir(ctx context.Context, dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		c.log.Warn(ctx, "challenge directory not found, serving no content", logger.String("dir", dir))
		return nil
	}

	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return fmt.Errorf("glob %s: %w", pattern, err)
		}
		files = append(files, matches...)
	}
	sort.Strings(files)

	for _, file := range files {
		if err := c.LoadFile(file); err != nil {
			return err
		}
	}
	c.log.Info(ctx, "challenges loaded", logger.String("dir", dir), logger.Int("files", len(files)))
	return nil
}

// LoadFile loads one category file. The category defaults to the file name.
func (c *YAMLCatalog) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	var f categoryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if f.Category == "" {
		f.Category = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := c.Add(f.Category, f.Levels, f.Daily); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// Add registers content for category, replacing anything loaded before.
func (c *YAMLCatalog) Add(category string, levels, daily []model.ChallengeRecord) error {
	category = strings.ToLower(strings.TrimSpace(category))
	if category == "" {
		return fmt.Errorf("category is required")
	}
	t := &track{levels: make(map[int]model.ChallengeRecord, len(levels))}
	for _, rec := range levels {
		if rec.Level < model.FirstLevel {
			return fmt.Errorf("category %s: level must be >= %d, got %d", category, model.FirstLevel, rec.Level)
		}
		if _, dup := t.levels[rec.Level]; dup {
			return fmt.Errorf("category %s: duplicate level %d", category, rec.Level)
		}
		rec.Category = category
		t.levels[rec.Level] = rec
	}
	for _, rec := range daily {
		rec.Category = category
		t.daily = append(t.daily, rec)
	}

	c.mu.Lock()
	c.tracks[category] = t
	c.mu.Unlock()
	return nil
}

// Challenge implements Catalog.
func (c *YAMLCatalog) Challenge(_ context.Context, category string, level int) (model.ChallengeRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tracks[category]
	if !ok {
		return model.ChallengeRecord{}, fmt.Errorf("%w: no content for category %s", model.ErrChallengeNotFound, category)
	}
	rec, ok := t.levels[level]
	if !ok {
		return model.ChallengeRecord{}, fmt.Errorf("%w: %s level %d", model.ErrChallengeNotFound, category, level)
	}
	return rec, nil
}

// Daily implements Catalog. Categories without a daily list draw from their levels.
func (c *YAMLCatalog) Daily(_ context.Context, category string, day time.Time) (model.ChallengeRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tracks[category]
	if !ok {
		return model.ChallengeRecord{}, fmt.Errorf("%w: no content for category %s", model.ErrChallengeNotFound, category)
	}
	pool := t.daily
	if len(pool) == 0 {
		pool = t.sortedLevels()
	}
	if len(pool) == 0 {
		return model.ChallengeRecord{}, fmt.Errorf("%w: no daily quest for %s", model.ErrChallengeNotFound, category)
	}
	return pool[dailyIndex(category, day, len(pool))], nil
}

// Levels returns how many levels category has.
func (c *YAMLCatalog) Levels(category string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if t, ok := c.tracks[strings.ToLower(strings.TrimSpace(category))]; ok {
		return len(t.levels)
	}
	return 0
}

func (t *track) sortedLevels() []model.ChallengeRecord {
	out := make([]model.ChallengeRecord, 0, len(t.levels))
	for _, rec := range t.levels {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out
}

func dailyIndex(category string, day time.Time, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(category + "|" + day.UTC().Format(dayLayout)))
	return int(h.Sum32() % uint32(n))
}
