package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	DefaultDirPerm  = 0o770
	RecordingSuffix = ".avi"
)

var ErrNotFound = errors.New("recording not found")

type File struct {
	Name    string    `json:"name"`
	Bytes   int64     `json:"bytes"`
	Size    string    `json:"size"`
	ModTime time.Time `json:"modTime"`
}

// Store is the directory recordings are written to.
type Store struct {
	dir string
}

func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, DefaultDirPerm); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// List returns the recordings, newest first.
func (s *Store) List() ([]File, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	files := make([]File, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), RecordingSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// removed while listing
			continue
		}
		files = append(files, File{
			Name:    e.Name(),
			Bytes:   info.Size(),
			Size:    humanize.Bytes(uint64(info.Size())),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].ModTime.Equal(files[j].ModTime) {
			return files[i].Name > files[j].Name
		}
		return files[i].ModTime.After(files[j].ModTime)
	})

	return files, nil
}

// Path resolves a recording name, refusing anything outside the store.
func (s *Store) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, RecordingSuffix) {
		return "", fmt.Errorf("invalid recording name %q", name)
	}
	p := filepath.Join(s.dir, name)
	info, err := os.Stat(p)
	if errors.Is(err, os.ErrNotExist) || (err == nil && info.IsDir()) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return p, nil
}

func (s *Store) Remove(name string) error {
	p, err := s.Path(name)
	if err != nil {
		return err
	}
	return os.Remove(p)
}
