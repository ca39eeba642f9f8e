package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// gzipSuffix marks a compressed rotated generation.
const gzipSuffix = ".gz"

// RotatingWriter is an io.Writer over a log file that rotates by size.
// Rotated generations are gzip-compressed: rowbulk.log.1.gz is the newest,
// rowbulk.log.<maxFiles>.gz the oldest kept.
type RotatingWriter struct {
	path     string
	maxSize  int64
	maxFiles int

	mu      sync.Mutex
	file    *os.File
	written int64
	// syncEach makes every line visible to 'rowbulk logs -f' immediately.
	syncEach bool
}

// NewRotatingWriter opens path for appending, creating its directory.
// maxSizeMB is the size that triggers rotation; maxFiles is how many rotated
// generations are kept.
func NewRotatingWriter(path string, maxSizeMB, maxFiles int) (*RotatingWriter, error) {
	w := &RotatingWriter{
		path:     path,
		maxSize:  int64(maxSizeMB) << 20,
		maxFiles: maxFiles,
		syncEach: true,
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	if err := w.openFile(); err != nil {
		return nil, err
	}
	return w, nil
}

// SetSyncEachWrite controls whether every write is fsynced.
func (w *RotatingWriter) SetSyncEachWrite(enabled bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.syncEach = enabled
}

// Write appends p, rotating first when p would push the file past maxSize.
// A failed rotation is reported on stderr and writing continues.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.written > 0 && w.written+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
		}
	}
	if w.file == nil {
		if err := w.openFile(); err != nil {
			return 0, err
		}
	}

	n, err := w.file.Write(p)
	w.written += int64(n)
	if err == nil && w.syncEach {
		_ = w.file.Sync()
	}
	return n, err
}

// Close closes the current file.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// Sync flushes the current file to disk.
func (w *RotatingWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	return w.file.Sync()
}

func (w *RotatingWriter) openFile() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	w.file = f
	w.written = info.Size()
	return nil
}

// rotate shifts every generation up by one, drops those past maxFiles and
// compresses the current file into generation 1.
func (w *RotatingWriter) rotate() error {
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return fmt.Errorf("failed to close log file: %w", err)
		}
		w.file = nil
	}

	// Oldest first, so renames never overwrite a newer generation.
	for _, g := range generations(w.path) {
		if g.num >= w.maxFiles {
			_ = os.Remove(g.path)
			continue
		}
		_ = os.Rename(g.path, generationPath(w.path, g.num+1, g.compressed))
	}

	if w.maxFiles > 0 {
		if err := compressFile(w.path, generationPath(w.path, 1, true)); err != nil {
			return err
		}
	}
	if err := os.Remove(w.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove rotated log: %w", err)
	}

	return w.openFile()
}

// generation is one rotated log file.
type generation struct {
	path       string
	num        int
	compressed bool
}

// generations lists the rotated files of path, highest number (oldest)
// first. Both path.N and path.N.gz are recognised.
func generations(path string) []generation {
	matches, err := filepath.Glob(path + ".*")
	if err != nil {
		return nil
	}

	var gens []generation
	for _, m := range matches {
		suffix := strings.TrimPrefix(m, path+".")
		compressed := strings.HasSuffix(suffix, gzipSuffix)
		num, err := strconv.Atoi(strings.TrimSuffix(suffix, gzipSuffix))
		if err != nil || num < 1 {
			continue
		}
		gens = append(gens, generation{path: m, num: num, compressed: compressed})
	}
	sort.Slice(gens, func(i, j int) bool { return gens[i].num > gens[j].num })
	return gens
}

func generationPath(path string, num int, compressed bool) string {
	p := path + "." + strconv.Itoa(num)
	if compressed {
		p += gzipSuffix
	}
	return p
}

func compressFile(src, dst string) error {
	in, err := os.Open(src)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open log for compression: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(dst), err)
	}
	zw := gzip.NewWriter(out)
	if _, err := io.Copy(zw, in); err != nil {
		_ = zw.Close()
		_ = out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("failed to compress log: %w", err)
	}
	if err := zw.Close(); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("failed to compress log: %w", err)
	}
	return out.Close()
}

// openLog opens a log file for reading, decompressing rotated generations.
func openLog(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, gzipSuffix) {
		return f, nil
	}
	zr, err := gzip.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to read compressed log %s: %w", filepath.Base(path), err)
	}
	return &gzipFile{Reader: zr, file: f}, nil
}

type gzipFile struct {
	*gzip.Reader
	file *os.File
}

func (g *gzipFile) Close() error {
	_ = g.Reader.Close()
	return g.file.Close()
}
