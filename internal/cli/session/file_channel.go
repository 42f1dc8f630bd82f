package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// StampFileName is the file in the state directory rewritten on every session change
const StampFileName = "session.stamp"

// FileChannel signals session changes between processes sharing a state directory.
// Each Publish atomically replaces the stamp file with "<stamp-id> <origin-id>"; watchers
// deliver stamps from other origins they have not seen yet.
type FileChannel struct {
	dir    string
	origin string
	log    zerolog.Logger

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	lastSeen string
}

// NewFileChannel creates a channel endpoint over dir with a fresh origin id
func NewFileChannel(dir string, log zerolog.Logger) (*FileChannel, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &FileChannel{
		dir:    dir,
		origin: ulid.Make().String(),
		log:    log,
	}, nil
}

// Origin returns this endpoint's id
func (c *FileChannel) Origin() string {
	return c.origin
}

// Publish writes a new stamp tagged with this endpoint's origin
func (c *FileChannel) Publish() error {
	stamp := ulid.Make().String()

	tmp, err := os.CreateTemp(c.dir, "."+StampFileName+"-*")
	if err != nil {
		return fmt.Errorf("failed to create stamp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := fmt.Fprintf(tmp, "%s %s\n", stamp, c.origin); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write stamp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write stamp: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.stampPath()); err != nil {
		return fmt.Errorf("failed to replace stamp: %w", err)
	}

	c.mu.Lock()
	c.lastSeen = stamp
	c.mu.Unlock()
	return nil
}

// Listen starts watching the state directory
func (c *FileChannel) Listen(ctx context.Context, deliver func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(c.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", c.dir, err)
	}

	c.mu.Lock()
	c.watcher = watcher
	if stamp, _, ok := c.readStamp(); ok {
		c.lastSeen = stamp
	}
	c.mu.Unlock()

	go c.run(ctx, watcher, deliver)
	return nil
}

// Close stops the watcher
func (c *FileChannel) Close() error {
	c.mu.Lock()
	watcher := c.watcher
	c.watcher = nil
	c.mu.Unlock()

	if watcher == nil {
		return nil
	}
	return watcher.Close()
}

func (c *FileChannel) run(ctx context.Context, watcher *fsnotify.Watcher, deliver func()) {
	defer watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != StampFileName {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if c.accept() {
				deliver()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			c.log.Warn().Err(err).Msg("session watcher error")
		}
	}
}

// accept reports whether the current stamp is a new change from another origin
func (c *FileChannel) accept() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	stamp, origin, ok := c.readStamp()
	if !ok || stamp == c.lastSeen {
		return false
	}
	c.lastSeen = stamp
	return origin != c.origin
}

func (c *FileChannel) readStamp() (stamp, origin string, ok bool) {
	data, err := os.ReadFile(c.stampPath())
	if err != nil {
		return "", "", false
	}
	fields := strings.Fields(string(data))
	if len(fields) != 2 {
		return "", "", false
	}
	return fields[0], fields[1], true
}

func (c *FileChannel) stampPath() string {
	return filepath.Join(c.dir, StampFileName)
}
