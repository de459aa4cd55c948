// internal/storage/file.go
package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/alsub25/Pocket-RPG-sub006/internal/watcher"
)

const fileExt = ".zst"

// FileStore keeps one compressed file per key in a directory. Each file is
// the hex digest of the plain value, a newline, then the zstd frame.
type FileStore struct {
	dir   string
	codec *Codec
	mu    sync.RWMutex
}

// NewFileStore creates a FileStore rooted at dir
func NewFileStore(dir string, codec *Codec) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create save dir: %w", err)
	}
	return &FileStore{dir: dir, codec: codec}, nil
}

// Dir returns the directory the store writes to
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, base64.RawURLEncoding.EncodeToString([]byte(key))+fileExt)
}

// KeyOf maps a file in the store directory back to its key
func (s *FileStore) KeyOf(path string) (string, bool) {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileExt) {
		return "", false
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSuffix(name, fileExt))
	if err != nil {
		return "", false
	}
	return string(raw), true
}

func (s *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}

	digest, frame, ok := bytes.Cut(data, []byte("\n"))
	if !ok {
		return "", false, fmt.Errorf("read %s: missing digest header", key)
	}
	value, err := s.codec.Decompress(frame)
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	if Digest(value) != string(digest) {
		return "", false, fmt.Errorf("read %s: %w", key, ErrDigestMismatch)
	}
	return value, true, nil
}

// Set writes through a temp file and rename so readers never see a partial value
func (s *FileStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.path(key)
	digest := Digest(value)
	if current, err := readDigest(target); err == nil && current == digest {
		return nil
	}

	tmp, err := os.CreateTemp(s.dir, ".write-*")
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	tmpName := tmp.Name()

	var buf bytes.Buffer
	buf.WriteString(digest)
	buf.WriteByte('\n')
	buf.Write(s.codec.Compress(value))

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// Watch reports settled changes to stored keys, this process's own writes
// included. The caller closes the returned watcher.
func (s *FileStore) Watch(debounce time.Duration, fn func(watcher.Event)) (*watcher.Watcher, error) {
	w, err := watcher.New(s.dir, debounce, s.KeyOf, fn)
	if err != nil {
		return nil, err
	}
	if err := w.Start(); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

func readDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	head := make([]byte, 64)
	if _, err := io.ReadFull(f, head); err != nil {
		return "", err
	}
	return string(head), nil
}
