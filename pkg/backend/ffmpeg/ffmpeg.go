package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"camera-core/pkg/camera"
	"camera-core/pkg/utils"
)

const (
	DefaultBinary         = "ffmpeg"
	DefaultReadTimeout    = 5 * time.Second
	DefaultStartupTimeout = 2 * time.Second

	maxFrameSize = 16 << 20
	stderrTail   = 4 << 10
)

var (
	logger = utils.GetLogger().Named("ffmpeg")

	soi = []byte{0xFF, 0xD8}
	eoi = []byte{0xFF, 0xD9}

	fpsPattern = regexp.MustCompile(`Video: .*?, (\d+(?:\.\d+)?) fps`)
)

// Input describes how ffmpeg reaches a capture device on this platform.
type Input struct {
	// Format is passed as -f, e.g. "v4l2" or "avfoundation".
	Format string
	// Device maps a device index to the -i argument.
	Device func(index int) string
}

// V4L2 reads /dev/videoN through ffmpeg's v4l2 demuxer.
func V4L2() Input {
	return Input{
		Format: "v4l2",
		Device: func(index int) string { return fmt.Sprintf("/dev/video%d", index) },
	}
}

// AVFoundation reads the Nth macOS capture device, video only.
func AVFoundation() Input {
	return Input{
		Format: "avfoundation",
		Device: func(index int) string { return fmt.Sprintf("%d:none", index) },
	}
}

// Available reports whether an ffmpeg binary can be found.
func Available() error {
	_, err := exec.LookPath(DefaultBinary)
	return err
}

// Backend runs ffmpeg as a child process that writes MJPEG to stdout and
// keeps only the newest frame. Parameter changes restart the process on the
// next Read.
type Backend struct {
	Binary      string
	ReadTimeout time.Duration
	// StartupTimeout bounds how long Open waits for the first image. A
	// process still running when it expires counts as opened.
	StartupTimeout time.Duration

	input Input

	mu     sync.Mutex
	index  int
	width  int
	height int
	fps    float64
	dirty  bool
	proc   *process
}

func New(input Input) *Backend {
	return &Backend{
		Binary:         DefaultBinary,
		ReadTimeout:    DefaultReadTimeout,
		StartupTimeout: DefaultStartupTimeout,
		input:          input,
		width:          camera.DefaultWidth,
		height:         camera.DefaultHeight,
	}
}

func (b *Backend) args() []string {
	args := []string{"-hide_banner", "-loglevel", "info", "-f", b.input.Format}
	if b.width > 0 && b.height > 0 {
		args = append(args, "-video_size", fmt.Sprintf("%dx%d", b.width, b.height))
	}
	if b.fps > 0 {
		args = append(args, "-framerate", strconv.FormatFloat(b.fps, 'f', -1, 64))
	}
	return append(args,
		"-i", b.input.Device(b.index),
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"-q:v", "3",
		"-",
	)
}

func (b *Backend) Open(index int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.proc != nil {
		return fmt.Errorf("ffmpeg: device %d already open", b.index)
	}
	b.index = index
	b.dirty = false
	p, err := b.spawn()
	if err != nil {
		return err
	}
	if err = p.await(b.StartupTimeout); err != nil {
		p.stop()
		return err
	}
	b.proc = p

	return nil
}

func (b *Backend) spawn() (*process, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, b.Binary, b.args()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg: stdout pipe: %w", err)
	}
	p := &process{
		cmd:    cmd,
		cancel: cancel,
		frames: make(chan []byte, 1),
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
		stderr: &tailBuffer{max: stderrTail},
	}
	cmd.Stderr = p.stderr
	if err = cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg: start: %w", err)
	}
	logger.Debugf("started %s %v", b.Binary, cmd.Args[1:])
	go p.pump(stdout)

	return p, nil
}

func (b *Backend) SetParameter(p camera.Param, value float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.proc == nil {
		return camera.ErrNotOpen
	}
	if value <= 0 {
		return fmt.Errorf("ffmpeg: %s must be positive, got %v", p, value)
	}
	switch p {
	case camera.ParamWidth:
		b.width = int(value)
	case camera.ParamHeight:
		b.height = int(value)
	case camera.ParamFPS:
		b.fps = value
	default:
		return fmt.Errorf("ffmpeg: unsupported parameter %s", p)
	}
	b.dirty = true

	return nil
}

func (b *Backend) Read() (camera.Frame, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.proc == nil {
		return camera.Frame{}, camera.ErrNotOpen
	}
	if b.dirty {
		b.proc.stop()
		p, err := b.spawn()
		if err == nil {
			if err = p.await(b.StartupTimeout); err != nil {
				p.stop()
			}
		}
		if err != nil {
			b.proc = nil
			return camera.Frame{}, camera.Fatal(err)
		}
		b.proc = p
		b.dirty = false
	}

	timer := time.NewTimer(b.ReadTimeout)
	defer timer.Stop()
	select {
	case data, ok := <-b.proc.frames:
		if !ok {
			return camera.Frame{}, fmt.Errorf("ffmpeg exited: %s: %w", b.proc.reason(), camera.ErrDeviceLost)
		}
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return camera.Frame{}, fmt.Errorf("ffmpeg: undecodable frame: %v: %w", err, camera.ErrDeviceBusy)
		}
		return camera.Frame{
			Data:   data,
			Width:  cfg.Width,
			Height: cfg.Height,
			Format: camera.FormatJPEG,
		}, nil
	case <-timer.C:
		return camera.Frame{}, fmt.Errorf("ffmpeg: no frame after %s: %w", b.ReadTimeout, camera.ErrReadTimeout)
	}
}

// FPS is the rate ffmpeg reports for the input stream, or the requested one
// until it does.
func (b *Backend) FPS() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.proc != nil {
		if fps := parseFPS(b.proc.stderr.String()); fps > 0 {
			return fps
		}
	}
	return b.fps
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.proc == nil {
		return nil
	}
	b.proc.stop()
	b.proc = nil
	b.dirty = false

	return nil
}

func parseFPS(log string) float64 {
	m := fpsPattern.FindStringSubmatch(log)
	if m == nil {
		return 0
	}
	fps, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return fps
}

type process struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	frames chan []byte
	ready  chan struct{}
	done   chan struct{}
	stderr *tailBuffer

	readyOnce sync.Once

	mu  sync.Mutex
	err error
}

// pump splits stdout into JPEG images and offers each one to frames,
// replacing a frame nobody picked up yet.
func (p *process) pump(r io.Reader) {
	defer close(p.done)
	defer close(p.frames)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1<<20), maxFrameSize)
	sc.Split(splitJPEG)
	for sc.Scan() {
		frame := append([]byte(nil), sc.Bytes()...)
		select {
		case p.frames <- frame:
		default:
			select {
			case <-p.frames:
			default:
			}
			p.frames <- frame
		}
		if p.ready != nil {
			p.readyOnce.Do(func() { close(p.ready) })
		}
	}
	p.mu.Lock()
	p.err = sc.Err()
	p.mu.Unlock()
}

// await waits for the first image or an early exit. Only an exit is an error.
func (p *process) await(timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-p.ready:
		return nil
	case <-p.done:
		select {
		case <-p.ready:
			return nil
		default:
		}
		return exitError(p.reason())
	case <-timer.C:
		return nil
	}
}

// exitError maps the last thing ffmpeg said before exiting onto the camera
// error taxonomy.
func exitError(reason string) error {
	lower := strings.ToLower(reason)
	switch {
	case strings.Contains(lower, "device or resource busy"):
		return fmt.Errorf("ffmpeg exited: %s: %w", reason, camera.ErrDeviceBusy)
	case strings.Contains(lower, "cannot allocate memory"):
		return fmt.Errorf("ffmpeg exited: %s: %w", reason, camera.ErrResourceExhausted)
	default:
		return fmt.Errorf("ffmpeg exited: %s: %w", reason, camera.ErrDeviceLost)
	}
}

func (p *process) reason() string {
	p.mu.Lock()
	err := p.err
	p.mu.Unlock()
	if err != nil {
		return err.Error()
	}
	if s := p.stderr.String(); s != "" {
		return lastLine(s)
	}
	return "end of stream"
}

func (p *process) stop() {
	p.cancel()
	<-p.done
	if err := p.cmd.Wait(); err != nil {
		logger.Debugf("ffmpeg exited: %s", err)
	}
}

// splitJPEG is a bufio.SplitFunc yielding one SOI..EOI image per token and
// discarding anything between images.
func splitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, soi)
	if start < 0 {
		if atEOF || len(data) == 0 {
			return len(data), nil, nil
		}
		// keep a trailing 0xFF, it may begin the next SOI
		return len(data) - 1, nil, nil
	}
	end := bytes.Index(data[start+len(soi):], eoi)
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}
	end += start + len(soi) + len(eoi)

	return end, data[start:end], nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

func lastLine(s string) string {
	s = strings.TrimRight(s, "\r\n")
	if i := strings.LastIndexAny(s, "\r\n"); i >= 0 {
		return s[i+1:]
	}
	return s
}
