package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"go.uber.org/multierr"

	"camera-core/pkg/camera"
	"camera-core/pkg/utils/image"
)

const (
	DefaultPort       = 9999
	DefaultWebdavPort = 9998
	DefaultStorageDir = "./recordings"
)

// Config is the daemon configuration file.
type Config struct {
	Camera camera.Config `json:"camera"`
	// Provider forces a camera provider by name; empty selects one.
	Provider    string `json:"provider"`
	Port        int    `json:"port"`
	WebdavPort  int    `json:"webdavPort"`
	StorageDir  string `json:"storageDir"`
	JPEGQuality int    `json:"jpegQuality"`
}

func Default() Config {
	return Config{
		Camera:      camera.DefaultConfig(),
		Port:        DefaultPort,
		WebdavPort:  DefaultWebdavPort,
		StorageDir:  DefaultStorageDir,
		JPEGQuality: image.DefaultQuality,
	}
}

// Load reads path over the defaults. Fields missing from the file keep their
// default value. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err = json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err = cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

func (c Config) Validate() error {
	var err error
	if c.Port <= 0 || c.Port > 65535 {
		err = multierr.Append(err, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.WebdavPort <= 0 || c.WebdavPort > 65535 {
		err = multierr.Append(err, fmt.Errorf("webdav port %d out of range", c.WebdavPort))
	}
	if c.Port == c.WebdavPort {
		err = multierr.Append(err, fmt.Errorf("port and webdav port are both %d", c.Port))
	}
	if c.Camera.DeviceIndex < 0 {
		err = multierr.Append(err, fmt.Errorf("device index %d is negative", c.Camera.DeviceIndex))
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		err = multierr.Append(err, fmt.Errorf("jpeg quality %d not in 1..100", c.JPEGQuality))
	}
	if c.StorageDir == "" {
		err = multierr.Append(err, errors.New("storage dir is empty"))
	}
	return err
}

// Save writes c as indented JSON.
func (c Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o660)
}
