package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FileInfo describes one log file.
type FileInfo struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// List returns descriptors for all log files under the root, sorted by
// modification time descending.
func (l *Logger) List() ([]FileInfo, error) {
	dirents, err := os.ReadDir(l.root)
	if err != nil {
		return nil, fmt.Errorf("reading log directory: %w", err)
	}

	files := make([]FileInfo, 0, len(dirents))
	for _, d := range dirents {
		if d.IsDir() || !strings.HasSuffix(d.Name(), logFileExt) {
			continue
		}
		info, err := d.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			Name:     d.Name(),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Modified.After(files[j].Modified)
	})
	return files, nil
}

// Read returns the content of one log file, line by line. Lines that are
// valid JSON are returned parsed; anything else comes back as raw text.
// Returns ErrAccessDenied when the name resolves outside the log root and
// ErrNotFound when the file does not exist.
func (l *Logger) Read(name string) ([]any, error) {
	path, err := l.resolve(name)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("opening %s: %w", name, err)
	}
	defer f.Close()

	var lines []any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		text := scanner.Text()
		if text == "" {
			continue
		}
		var parsed map[string]any
		if err := json.Unmarshal([]byte(text), &parsed); err == nil {
			lines = append(lines, parsed)
		} else {
			lines = append(lines, text)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return lines, nil
}

// PurgeOlderThan removes log files whose modification time is before the
// cutoff and returns how many were removed. An empty or missing directory
// purges zero files without error.
func (l *Logger) PurgeOlderThan(cutoff time.Time) (int, error) {
	dirents, err := os.ReadDir(l.root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading log directory: %w", err)
	}

	removed := 0
	for _, d := range dirents {
		if d.IsDir() || !strings.HasSuffix(d.Name(), logFileExt) {
			continue
		}
		info, err := d.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(l.root, d.Name())); err != nil {
				continue
			}
			removed++
		}
	}
	return removed, nil
}

// resolve validates a client-supplied file name against the log root.
// The resolved absolute path must stay under the root: absolute names,
// separators, and ".." segments are all rejected before touching disk.
func (l *Logger) resolve(name string) (string, error) {
	if name == "" || filepath.IsAbs(name) || strings.ContainsAny(name, `/\`) {
		return "", ErrAccessDenied
	}

	path, err := filepath.Abs(filepath.Join(l.root, name))
	if err != nil {
		return "", ErrAccessDenied
	}
	if !strings.HasPrefix(path, l.root+string(os.PathSeparator)) {
		return "", ErrAccessDenied
	}
	return path, nil
}
