package sink

import (
	"sync"

	"camera-core/pkg/camera"
	"camera-core/pkg/utils/image"
)

// Preview keeps the newest frame as JPEG and forwards it to subscribers.
// A subscriber that has not taken the previous frame misses this one.
type Preview struct {
	quality int

	mu      sync.Mutex
	latest  []byte
	size    camera.Resolution
	subs    map[int]chan []byte
	nextID  int
	dropped uint64
}

func NewPreview(quality int) *Preview {
	if quality <= 0 || quality > 100 {
		quality = image.DefaultQuality
	}
	return &Preview{
		quality: quality,
		subs:    make(map[int]chan []byte),
	}
}

func (p *Preview) OnFrameReady(f camera.Frame) {
	data, err := EncodeJPEG(f, p.quality)
	if err != nil {
		logger.Warnf("drop preview frame %d: %s", f.Seq, err)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.latest = data
	for _, ch := range p.subs {
		select {
		case ch <- data:
		default:
			p.dropped++
		}
	}
}

func (p *Preview) OnDeviceReady(r camera.Resolution) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.size = r
	p.latest = nil
	logger.Infof("preview size %s", r)
}

// Subscribe returns a channel of JPEG frames and a func that closes it.
func (p *Preview) Subscribe() (<-chan []byte, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	ch := make(chan []byte, 1)
	if p.latest != nil {
		ch <- p.latest
	}
	p.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			delete(p.subs, id)
			close(ch)
		})
	}
}

// Latest is the newest encoded frame, nil before the first one.
func (p *Preview) Latest() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest
}

func (p *Preview) Size() camera.Resolution {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

func (p *Preview) Subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

func (p *Preview) Dropped() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}
