package sink

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/icza/mjpeg"

	"camera-core/pkg/camera"
	"camera-core/pkg/utils/image"
)

var (
	ErrRecording    = errors.New("already recording")
	ErrNotRecording = errors.New("not recording")
	ErrNoResolution = errors.New("device resolution unknown, configure the camera first")
)

// Recording describes one AVI file.
type Recording struct {
	Path    string    `json:"path"`
	Width   int       `json:"width"`
	Height  int       `json:"height"`
	FPS     int       `json:"fps"`
	Frames  int       `json:"frames"`
	Bytes   uint64    `json:"bytes"`
	Human   string    `json:"human"`
	Started time.Time `json:"started"`
}

// builder appends JPEG frames to an MJPEG AVI.
type builder struct {
	aw  mjpeg.AviWriter
	rec Recording
}

func newBuilder(path string, size camera.Resolution, fps int, started time.Time) (*builder, error) {
	aw, err := mjpeg.New(path, int32(size.Width), int32(size.Height), int32(fps))
	if err != nil {
		return nil, err
	}

	return &builder{
		aw: aw,
		rec: Recording{
			Path:    path,
			Width:   size.Width,
			Height:  size.Height,
			FPS:     fps,
			Started: started,
		},
	}, nil
}

func (b *builder) add(frame []byte) error {
	if err := b.aw.AddFrame(frame); err != nil {
		return err
	}
	b.rec.Frames++
	b.rec.Bytes += uint64(len(frame))

	return nil
}

func (b *builder) close() (Recording, error) {
	rec := b.rec
	rec.Human = humanize.Bytes(rec.Bytes)
	return rec, b.aw.Close()
}

// Recorder writes delivered frames into AVI files under dir while started.
// A resolution change mid-recording closes the file and opens a new one.
type Recorder struct {
	dir     string
	quality int
	now     func() time.Time

	mu    sync.Mutex
	size  camera.Resolution
	fps   int
	cur   *builder
	done  []Recording
	files int
}

func NewRecorder(dir string, quality int) *Recorder {
	if quality <= 0 || quality > 100 {
		quality = image.DefaultQuality
	}
	return &Recorder{dir: dir, quality: quality, now: time.Now}
}

// Start opens a new file recorded at fps.
func (r *Recorder) Start(fps float64) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur != nil {
		return "", ErrRecording
	}
	if !r.size.Valid() {
		return "", ErrNoResolution
	}
	r.fps = int(math.Max(1, math.Round(fps)))
	if err := r.open(); err != nil {
		return "", err
	}
	return r.cur.rec.Path, nil
}

func (r *Recorder) open() error {
	if err := os.MkdirAll(r.dir, 0o770); err != nil {
		return err
	}
	started := r.now()
	r.files++
	name := fmt.Sprintf("rec-%s-%03d-%s.avi", started.Format("20060102-150405"), r.files, r.size)
	b, err := newBuilder(filepath.Join(r.dir, name), r.size, r.fps, started)
	if err != nil {
		return err
	}
	r.cur = b
	logger.Infof("recording %s", b.rec.Path)

	return nil
}

// Stop finalizes the current file.
func (r *Recorder) Stop() (Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur == nil {
		return Recording{}, ErrNotRecording
	}
	return r.finish()
}

func (r *Recorder) finish() (Recording, error) {
	rec, err := r.cur.close()
	r.cur = nil
	if err != nil {
		return rec, err
	}
	r.done = append(r.done, rec)
	logger.Infof("recorded %d frames (%s) to %s", rec.Frames, rec.Human, rec.Path)

	return rec, nil
}

func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cur != nil
}

// Current is the file name being written, empty when idle.
func (r *Recorder) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur == nil {
		return ""
	}
	return filepath.Base(r.cur.rec.Path)
}

// Recordings lists the files finished by this Recorder.
func (r *Recorder) Recordings() []Recording {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Recording(nil), r.done...)
}

func (r *Recorder) OnFrameReady(f camera.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur == nil {
		return
	}
	if f.Resolution() != r.size {
		logger.Warnf("skip %s frame in %s recording", f.Resolution(), r.size)
		return
	}
	data, err := EncodeJPEG(f, r.quality)
	if err != nil {
		logger.Warnf("skip frame %d: %s", f.Seq, err)
		return
	}
	if err = r.cur.add(data); err != nil {
		logger.Errorf("write frame to %s: %s", r.cur.rec.Path, err)
	}
}

func (r *Recorder) OnDeviceReady(size camera.Resolution) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if size == r.size {
		return
	}
	r.size = size
	if r.cur == nil {
		return
	}
	if _, err := r.finish(); err != nil {
		logger.Errorf("finish recording before resize: %s", err)
	}
	if err := r.open(); err != nil {
		logger.Errorf("reopen recording at %s: %s", size, err)
	}
}
