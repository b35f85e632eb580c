package file

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"eventactor/runtime/internal/logging"
)

// RetentionPolicy bounds how many distinct persistence ids' segments a
// Cleaner keeps on disk and how old a segment may get before it is swept,
// mirroring replay.RetentionPolicy's MaxMatches/MaxAge shape.
type RetentionPolicy struct {
	MaxEntities int
	MaxAge      time.Duration
}

// Cleaner periodically prunes whole entity directories under a Journal's
// root according to a RetentionPolicy. Grounded on replay.Cleaner: collect
// artefacts, sort newest-first, remove whatever falls outside the policy.
type Cleaner struct {
	root   string
	policy RetentionPolicy
	log    *logging.Logger
	now    func() time.Time
}

// NewCleaner constructs a cleaner for the journal rooted at dir.
func NewCleaner(dir string, policy RetentionPolicy, logger *logging.Logger) *Cleaner {
	if logger == nil {
		logger = logging.L()
	}
	return &Cleaner{root: dir, policy: policy, log: logger, now: time.Now}
}

// Run executes retention sweeps on interval until ctx is cancelled.
func (c *Cleaner) Run(ctx context.Context, interval time.Duration) {
	if c == nil || ctx == nil {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	c.sweep()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// RunOnce performs a single sweep; used by tests and by an operator-driven
// one-shot cleanup.
func (c *Cleaner) RunOnce() {
	if c == nil {
		return
	}
	c.sweep()
}

type entityDir struct {
	path    string
	modTime time.Time
}

func (c *Cleaner) sweep() {
	if c == nil || c.root == "" {
		return
	}
	entries, err := os.ReadDir(c.root)
	if err != nil {
		c.log.Warn("file journal retention scan failed", logging.Error(err), logging.String("directory", c.root))
		return
	}

	dirs := make([]entityDir, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		dirs = append(dirs, entityDir{path: filepath.Join(c.root, entry.Name()), modTime: info.ModTime()})
	}
	sort.Slice(dirs, func(i, k int) bool { return dirs[i].modTime.After(dirs[k].modTime) })

	now := c.now()
	kept := 0
	for _, d := range dirs {
		remove := false
		if c.policy.MaxAge > 0 && now.Sub(d.modTime) > c.policy.MaxAge {
			remove = true
		}
		if c.policy.MaxEntities > 0 && kept >= c.policy.MaxEntities {
			remove = true
		}
		if remove {
			if err := os.RemoveAll(d.path); err != nil {
				c.log.Warn("file journal retention removal failed", logging.Error(err), logging.String("path", d.path))
				kept++
			}
			continue
		}
		kept++
	}
}
