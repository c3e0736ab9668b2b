package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/vincent-vinf/go-jsend"
	"go.uber.org/zap"

	"camera-core/pkg/camera"
	"camera-core/pkg/config"
	"camera-core/pkg/provider"
	"camera-core/pkg/sink"
	"camera-core/pkg/storage"
	"camera-core/pkg/utils"
	"camera-core/pkg/utils/ps"
	"camera-core/pkg/webdav"
)

const (
	opStart    = "start"
	opStop     = "stop"
	opRelease  = "release"
	opShutdown = "shutdown"
)

var (
	configPath   = flag.String("config", "", "config file (json)")
	port         = flag.Int("port", 0, "ui port, overrides the config file")
	webdavPort   = flag.Int("webdav-port", 0, "webdav port, overrides the config file")
	storageDir   = flag.String("dir", "", "recordings dir, overrides the config file")
	providerName = flag.String("provider", "", "camera provider, overrides the config file")
	staticsDir   = flag.String("statics", "", "static ui dir, optional")

	logger *zap.SugaredLogger
)

func init() {
	logger = utils.GetLogger()
}

type server struct {
	cam      *camera.Controller
	provider string
	preview  *sink.Preview
	recorder *sink.Recorder
	share    *webdav.Share
	store    *storage.Store
}

func main() {
	flag.Parse()
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal(err)
	}
	applyFlags(&cfg)
	if err = cfg.Validate(); err != nil {
		logger.Fatal(err)
	}
	store, err := storage.New(cfg.StorageDir)
	if err != nil {
		logger.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	preview := sink.NewPreview(cfg.JPEGQuality)
	recorder := sink.NewRecorder(store.Dir(), cfg.JPEGQuality)
	cam, p, err := provider.NewCamera(cfg.Provider, sink.Multi{preview, recorder}, cfg.Camera)
	if err != nil {
		logger.Fatal(err)
	}
	s := &server{
		cam:      cam,
		provider: p.Name,
		preview:  preview,
		recorder: recorder,
		share:    webdav.New(ctx, cfg.WebdavPort, store.Dir()),
		store:    store,
	}
	defer s.close()
	if !cam.Started() {
		logger.Warnf("camera %d did not start, use PUT /api/device/stream?op=start to retry", cfg.Camera.DeviceIndex)
	}

	r := newRouter(s)
	if *staticsDir != "" {
		if err := registerStaticsDir(r, *staticsDir, "/"); err != nil {
			logger.Fatal(err)
		}
	}

	if err = utils.Serve(ctx, "ui", r, cfg.Port); err != nil {
		logger.Fatal(err)
	}
	utils.WatchSignal(ctx)
}

func applyFlags(cfg *config.Config) {
	if *port != 0 {
		cfg.Port = *port
	}
	if *webdavPort != 0 {
		cfg.WebdavPort = *webdavPort
	}
	if *storageDir != "" {
		cfg.StorageDir = *storageDir
	}
	if *providerName != "" {
		cfg.Provider = *providerName
	}
}

func (s *server) close() {
	if s.recorder.Recording() {
		if _, err := s.recorder.Stop(); err != nil {
			logger.Errorf("finish recording: %s", err)
		}
	}
	s.share.Stop()
	s.cam.Release()
}

func newRouter(s *server) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(utils.Cors())
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, jsend.SimpleErr("page not found"))
	})

	deviceRouter := r.Group("/api/device")
	deviceRouter.GET("/status", s.getStatus)
	deviceRouter.GET("/realtime/video", s.realtimeVideo)
	deviceRouter.PUT("/config", s.updateConfig)
	deviceRouter.PUT("/stream", s.ctlStream)
	deviceRouter.PUT("/record", s.ctlRecord)
	deviceRouter.PUT("/webdav", s.ctlWebdav)

	recordingRouter := r.Group("/api/recordings")
	recordingRouter.GET("", s.listRecordings)
	recordingRouter.GET("/:name", s.getRecording)
	recordingRouter.DELETE("/:name", s.deleteRecording)

	return r
}

type status struct {
	Provider  string       `json:"provider"`
	Camera    camera.Stats `json:"camera"`
	Recording bool         `json:"recording"`
	Webdav    bool         `json:"webdav"`
	Host      *ps.Status   `json:"host,omitempty"`
}

func (s *server) status(withHost bool) status {
	st := status{
		Provider:  s.provider,
		Camera:    s.cam.Stats(),
		Recording: s.recorder.Recording(),
		Webdav:    s.share.Running(),
	}
	if withHost {
		host, err := ps.HostStatus(s.store.Dir())
		if err != nil {
			logger.Warnf("host status: %s", err)
		}
		st.Host = &host
	}
	return st
}

func (s *server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, jsend.Success(s.status(c.Query("host") != "false")))
}

func (s *server) realtimeVideo(c *gin.Context) {
	if !s.cam.Started() {
		c.JSON(http.StatusConflict, jsend.SimpleErr("camera is not started"))
		return
	}
	frames, cancel := s.preview.Subscribe()
	defer cancel()

	mimeWriter := multipart.NewWriter(c.Writer)
	c.Header("Content-Type", fmt.Sprintf("multipart/x-mixed-replace; boundary=%s", mimeWriter.Boundary()))
	c.Status(http.StatusOK)
	partHeader := make(textproto.MIMEHeader)
	partHeader.Add("Content-Type", "image/jpeg")

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			partWriter, err := mimeWriter.CreatePart(partHeader)
			if err != nil {
				logger.Warnf("failed to create multi-part writer: %s", err)
				return
			}
			if _, err := partWriter.Write(frame); err != nil {
				logger.Debugf("failed to write image: %s", err)
				return
			}
			c.Writer.Flush()
		}
	}
}

// deviceConfig is a partial update; absent fields are left alone.
type deviceConfig struct {
	Index  *int     `json:"index"`
	Width  *int     `json:"width"`
	Height *int     `json:"height"`
	FPS    *float64 `json:"fps"`
}

func (s *server) updateConfig(c *gin.Context) {
	var req deviceConfig
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, jsend.SimpleErr(err.Error()))
		return
	}

	var failed []string
	if req.Index != nil && !s.cam.SetDeviceIndex(*req.Index) {
		failed = append(failed, fmt.Sprintf("could not switch to device %d", *req.Index))
	}
	if req.Width != nil || req.Height != nil {
		res := s.cam.Resolution()
		if req.Width != nil {
			res.Width = *req.Width
		}
		if req.Height != nil {
			res.Height = *req.Height
		}
		if !res.Valid() {
			c.JSON(http.StatusBadRequest, jsend.SimpleErr(fmt.Sprintf("invalid resolution %s", res)))
			return
		}
		if !s.cam.SetResolution(res) {
			failed = append(failed, fmt.Sprintf("could not apply resolution %s", res))
		}
	}
	if req.FPS != nil {
		s.cam.SetTargetFPS(*req.FPS)
	}

	if len(failed) > 0 {
		internalErr(c, errors.New(strings.Join(failed, "; ")))
		return
	}
	c.JSON(http.StatusOK, jsend.Success(s.cam.Stats()))
}

func (s *server) ctlStream(c *gin.Context) {
	switch c.Query("op") {
	case opStart:
		if !s.cam.Start() {
			internalErr(c, errors.New("could not start camera, see server log"))
			return
		}
	case opStop:
		s.cam.Stop()
	case opRelease:
		s.cam.Release()
	default:
		c.JSON(http.StatusBadRequest, jsend.SimpleErr("unknown operation"))
		return
	}
	c.JSON(http.StatusOK, jsend.Success(s.cam.Stats()))
}

func (s *server) ctlRecord(c *gin.Context) {
	switch c.Query("op") {
	case opStart:
		p, err := s.recorder.Start(s.cam.TargetFPS())
		if err != nil {
			c.JSON(http.StatusConflict, jsend.SimpleErr(err.Error()))
			return
		}
		c.JSON(http.StatusOK, jsend.Success(filepath.Base(p)))
	case opStop:
		rec, err := s.recorder.Stop()
		if errors.Is(err, sink.ErrNotRecording) {
			c.JSON(http.StatusConflict, jsend.SimpleErr(err.Error()))
			return
		}
		if err != nil {
			internalErr(c, err)
			return
		}
		c.JSON(http.StatusOK, jsend.Success(rec))
	default:
		c.JSON(http.StatusBadRequest, jsend.SimpleErr("unknown operation"))
	}
}

func (s *server) ctlWebdav(c *gin.Context) {
	switch c.Query("op") {
	case opStart:
		started, err := s.share.Start()
		if err != nil {
			internalErr(c, err)
			return
		}
		if !started {
			c.JSON(http.StatusOK, jsend.Success("the webdav service is already enabled"))
			return
		}
		host := c.Request.Host
		if i := strings.LastIndex(host, ":"); i >= 0 {
			host = host[:i]
		}
		c.JSON(http.StatusOK, jsend.Success(fmt.Sprintf("%s:%d", host, s.share.Port())))
	case opShutdown:
		if !s.share.Stop() {
			c.JSON(http.StatusOK, jsend.SimpleErr("the webdav service has been shut down"))
			return
		}
		c.JSON(http.StatusOK, jsend.Success(nil))
	default:
		c.JSON(http.StatusBadRequest, jsend.SimpleErr("unknown operation"))
	}
}

func (s *server) listRecordings(c *gin.Context) {
	files, err := s.store.List()
	if err != nil {
		internalErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(files))
}

func (s *server) getRecording(c *gin.Context) {
	p, err := s.store.Path(c.Param("name"))
	if err != nil {
		recordingErr(c, err)
		return
	}

	c.FileAttachment(p, filepath.Base(p))
}

func (s *server) deleteRecording(c *gin.Context) {
	name := c.Param("name")
	if s.recorder.Recording() && s.recorder.Current() == name {
		c.JSON(http.StatusConflict, jsend.SimpleErr("recording in progress"))
		return
	}
	if err := s.store.Remove(name); err != nil {
		recordingErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(fmt.Sprintf("delete recording %s success", name)))
}

func recordingErr(c *gin.Context, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, jsend.SimpleErr(err.Error()))
		return
	}
	c.JSON(http.StatusBadRequest, jsend.SimpleErr(err.Error()))
}

func registerStaticsDir(group gin.IRoutes, dir, relativeGroup string) error {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return fmt.Errorf("the specified directory %s does not exist", dir)
	}
	dir = filepath.ToSlash(filepath.Clean(dir))
	group.StaticFile(relativeGroup, filepath.Join(dir, "index.html"))
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			relativePath := path.Join(relativeGroup, strings.Replace(filepath.ToSlash(p), dir, "", 1))
			group.StaticFile(relativePath, p)
		}
		return nil
	})
}

func internalErr(c *gin.Context, err error) {
	c.JSON(http.StatusInternalServerError, jsend.SimpleErr(err.Error()))
}
