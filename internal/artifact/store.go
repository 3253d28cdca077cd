// Package artifact owns the processed-data tree that the HTTP surface
// serves: every feed writes its output file through the Store, and every
// static read resolves through it. Paths are confined to the store root, so
// request paths can be mapped to files without a separate sanitizing layer.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/banshee-data/propagation.report/internal/fsutil"
)

// DefaultRoot is the artifact tree used when no --data-dir override is given.
const DefaultRoot = "data/processed_data"

// Store resolves and writes artifact files under a single root directory.
// It is a small value object; copies share the underlying filesystem.
type Store struct {
	fs   fsutil.FileSystem
	root string
}

// NewStore returns a Store rooted at root. The directory does not need to
// exist yet; writers create it lazily.
func NewStore(fsys fsutil.FileSystem, root string) Store {
	return Store{fs: fsys, root: filepath.Clean(root)}
}

// Root returns the store's root directory.
func (s Store) Root() string { return s.root }

// Path joins parts onto the store root and verifies the cleaned result stays
// inside it. Rejects absolute parts and any ".." that would escape the root,
// so handler code can pass client-supplied names straight through.
func (s Store) Path(parts ...string) (string, error) {
	joined := filepath.Join(append([]string{s.root}, parts...)...)
	rel, err := filepath.Rel(s.root, joined)
	if err != nil {
		return "", fmt.Errorf("resolve artifact path %q: %w", filepath.Join(parts...), err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("artifact path %q escapes %s", filepath.Join(parts...), s.root)
	}
	return joined, nil
}

// Exists reports whether the artifact file exists.
func (s Store) Exists(parts ...string) bool {
	path, err := s.Path(parts...)
	if err != nil {
		return false
	}
	return s.fs.Exists(path)
}

// ReadFile returns the contents of an artifact file.
func (s Store) ReadFile(parts ...string) ([]byte, error) {
	path, err := s.Path(parts...)
	if err != nil {
		return nil, err
	}
	return s.fs.ReadFile(path)
}

// ModTime returns the artifact file's modification time, or the zero time
// when the file does not exist.
func (s Store) ModTime(parts ...string) (mtime int64) {
	path, err := s.Path(parts...)
	if err != nil {
		return 0
	}
	info, err := s.fs.Stat(path)
	if err != nil {
		return 0
	}
	return info.ModTime().Unix()
}

// WriteFile atomically replaces an artifact file: the payload lands in a
// sibling temp file first and is renamed over the destination, so a
// concurrent reader sees either the old bytes or the new bytes, never a
// partial write. Parent directories are created as needed.
func (s Store) WriteFile(data []byte, parts ...string) error {
	path, err := s.Path(parts...)
	if err != nil {
		return err
	}
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create artifact directory %s: %w", filepath.Dir(path), err)
	}
	tmp := path + ".tmp"
	if err := s.fs.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write artifact temp %s: %w", tmp, err)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace artifact %s: %w", path, err)
	}
	return nil
}

// WriteLines writes rows joined by newlines, with a trailing newline, using
// the same atomic replace as WriteFile.
func (s Store) WriteLines(rows []string, parts ...string) error {
	return s.WriteFile([]byte(strings.Join(rows, "\n")+"\n"), parts...)
}

// AppendLine appends one line to an artifact file, creating it when absent.
// The whole file is rewritten through the atomic path so readers never see
// a torn tail.
func (s Store) AppendLine(line string, parts ...string) error {
	existing, err := s.ReadFile(parts...)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if len(existing) > 0 && existing[len(existing)-1] != '\n' {
		existing = append(existing, '\n')
	}
	return s.WriteFile(append(existing, []byte(line+"\n")...), parts...)
}

// Tail returns the last n rows, or all of them when fewer exist.
func Tail(rows []string, n int) []string {
	if len(rows) <= n {
		return rows
	}
	return rows[len(rows)-n:]
}

// TailPad returns exactly n rows: the last n of the input, front-padded by
// repeating the oldest row when the input is short. The sliding-window
// artifacts are written this way so the client always sees a full window.
// Returns nil for empty input.
func TailPad(rows []string, n int) []string {
	if len(rows) == 0 {
		return nil
	}
	if len(rows) >= n {
		return rows[len(rows)-n:]
	}
	out := make([]string, 0, n)
	for i := len(rows); i < n; i++ {
		out = append(out, rows[0])
	}
	return append(out, rows...)
}
