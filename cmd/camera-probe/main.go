package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"camera-core/pkg/camera"
	"camera-core/pkg/provider"
	"camera-core/pkg/utils"
)

var (
	providerName = flag.String("provider", "", "camera provider, empty picks the first usable one")
	index        = flag.Int("index", camera.DefaultIndex, "device index")
	width        = flag.Int("width", camera.DefaultWidth, "requested width")
	height       = flag.Int("height", camera.DefaultHeight, "requested height")
	fps          = flag.Float64("fps", 0, "requested fps, 0 keeps the device rate")
	duration     = flag.Duration("duration", 0, "stream this long and report the measured fps")
	asJSON       = flag.Bool("json", false, "print the report as json")
)

type candidate struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

type report struct {
	Platform   provider.Platform `json:"platform"`
	Candidates []candidate       `json:"candidates"`
	Provider   string            `json:"provider"`
	Stats      camera.Stats      `json:"stats"`
	Frames     int               `json:"frames"`
}

func main() {
	flag.Parse()
	logger := utils.GetLogger()
	defer logger.Sync()

	cfg := camera.DefaultConfig()
	cfg.DeviceIndex = *index
	cfg.Width, cfg.Height = *width, *height
	cfg.FPS = *fps
	cfg.StartImmediately = false

	rep, err := probe(provider.Default(), provider.Current(), *providerName, cfg, *duration)
	if perr := render(os.Stdout, rep, *asJSON); perr != nil {
		logger.Error(perr)
	}
	if err != nil {
		logger.Fatal(err)
	}
}

func candidates(r *provider.Registry, pl provider.Platform) []candidate {
	var out []candidate
	for _, p := range r.Compatible(pl) {
		c := candidate{Name: p.Name, Available: true}
		if p.Available != nil {
			if err := p.Available(); err != nil {
				c.Available = false
				c.Reason = err.Error()
			}
		}
		out = append(out, c)
	}
	return out
}

// probe prepares the device once and, for a positive d, streams for d.
// The device is always released before it returns.
func probe(r *provider.Registry, pl provider.Platform, name string, cfg camera.Config, d time.Duration, opts ...camera.Option) (report, error) {
	rep := report{Platform: pl, Candidates: candidates(r, pl)}
	p, backend, err := r.Backend(name, pl)
	if err != nil {
		return rep, err
	}
	rep.Provider = p.Name

	var frames atomic.Int64
	counter := camera.SinkFuncs{FrameReady: func(camera.Frame) { frames.Add(1) }}
	c := camera.New(backend, counter, cfg, opts...)
	defer c.Release()

	if !c.Prepare() {
		rep.Stats = c.Stats()
		return rep, errors.New("could not prepare the camera, see log")
	}
	if d > 0 {
		err = camera.Use(c, func(c *camera.Controller) error {
			time.Sleep(d)
			rep.Stats = c.Stats()
			return nil
		})
		rep.Frames = int(frames.Load())
		return rep, err
	}
	rep.Stats = c.Stats()

	return rep, nil
}

func render(w io.Writer, rep report, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	fmt.Fprintf(w, "platform: %s (cgo %t)\n", rep.Platform.OS, rep.Platform.CGO)
	for _, c := range rep.Candidates {
		if c.Available {
			fmt.Fprintf(w, "  %-14s available\n", c.Name)
		} else {
			fmt.Fprintf(w, "  %-14s unavailable: %s\n", c.Name, c.Reason)
		}
	}
	if rep.Provider == "" {
		return nil
	}
	st := rep.Stats
	fmt.Fprintf(w, "provider:  %s\n", rep.Provider)
	fmt.Fprintf(w, "device:    %d (%s)\n", st.DeviceIndex, st.State)
	fmt.Fprintf(w, "requested: %s\n", st.Requested)
	fmt.Fprintf(w, "actual:    %s\n", st.Actual)
	fmt.Fprintf(w, "fps:       %.2f\n", st.TargetFPS)
	if rep.Frames > 0 {
		fmt.Fprintf(w, "measured:  %.2f fps over %d frames\n", st.RealFPS, rep.Frames)
	}
	return nil
}
