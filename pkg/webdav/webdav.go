package webdav

import (
	"context"
	"net/http"
	"sync"

	"golang.org/x/net/webdav"

	"camera-core/pkg/utils"
)

// Share exposes a directory (the recordings) over WebDAV on its own port.
type Share struct {
	lock   sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	port   int
	dir    string
}

func New(ctx context.Context, port int, dir string) *Share {
	return &Share{
		ctx:  ctx,
		port: port,
		dir:  dir,
	}
}

// Start serves the share. It reports false if it was already running.
func (s *Share) Start() (bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.cancel != nil {
		return false, nil
	}
	ctx, cancel := context.WithCancel(s.ctx)
	if err := utils.Serve(ctx, "webdav", Handler(s.dir), s.port); err != nil {
		cancel()
		return false, err
	}
	s.cancel = cancel

	return true, nil
}

// Stop shuts the share down. It reports false if it was not running.
func (s *Share) Stop() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.cancel == nil {
		return false
	}
	s.cancel()
	s.cancel = nil

	return true
}

func (s *Share) Running() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.cancel != nil
}

func (s *Share) Port() int {
	return s.port
}

func Handler(dir string) http.Handler {
	logger := utils.GetLogger().Named("webdav")

	return &webdav.Handler{
		FileSystem: webdav.Dir(dir),
		LockSystem: webdav.NewMemLS(),
		Logger: func(r *http.Request, err error) {
			if err != nil {
				logger.Errorf("WEBDAV [%s]: %s, err: %s", r.Method, r.URL, err)
			}
		},
	}
}
