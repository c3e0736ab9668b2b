package provider

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camera-core/pkg/camera"
)

type nopBackend struct{ name string }

func (nopBackend) Open(int) error { return nil }
func (nopBackend) SetParameter(camera.Param, float64) error { return nil }
func (nopBackend) Read() (camera.Frame, error) { return camera.Frame{}, camera.ErrReadTimeout }
func (nopBackend) Close() error { return nil }
func (nopBackend) FPS() float64 { return 0 }

func fake(name string, applicable func(Platform) bool, availErr error) Provider {
	return Provider{
		Name:       name,
		Applicable: applicable,
		Available:  func() error { return availErr },
		New:        func() (camera.DeviceBackend, error) { return nopBackend{name: name}, nil },
	}
}

func names(ps []Provider) []string {
	var out []string
	for _, p := range ps {
		out = append(out, p.Name)
	}
	return out
}

var (
	linux  = Platform{OS: "linux", CGO: true}
	darwin = Platform{OS: "darwin", CGO: true}
)

func TestRegistry_FallbackIsLast(t *testing.T) {
	r := NewRegistry()
	r.SetFallback(fake("generic", nil, nil))
	r.Register(fake("a", onOS("linux"), nil))
	r.Register(fake("b", onOS("darwin"), nil))
	r.Register(fake("c", nil, nil))

	assert.Equal(t, []string{"a", "c", "generic"}, names(r.Compatible(linux)))
	assert.Equal(t, []string{"b", "c", "generic"}, names(r.Compatible(darwin)))
}

func TestRegistry_RegisterReplacesByName(t *testing.T) {
	r := NewRegistry()
	r.Register(fake("a", nil, nil))
	r.Register(fake("b", nil, nil))
	r.Register(fake("a", onOS("darwin"), nil))

	assert.Equal(t, []string{"b"}, names(r.Compatible(linux)))
	assert.Equal(t, []string{"a", "b"}, names(r.Compatible(darwin)))
}

func TestRegistry_SelectSkipsUnavailable(t *testing.T) {
	missing := errors.New("library missing")
	r := NewRegistry()
	r.Register(fake("a", nil, missing))
	r.Register(fake("b", nil, nil))
	r.SetFallback(fake("generic", nil, nil))

	p, b, err := r.Select(linux)

	require.NoError(t, err)
	assert.Equal(t, "b", p.Name)
	assert.Equal(t, nopBackend{name: "b"}, b)
}

func TestRegistry_SelectAggregatesFailures(t *testing.T) {
	r := NewRegistry()
	r.Register(fake("a", nil, errors.New("no a")))
	r.Register(Provider{
		Name: "b",
		New:  func() (camera.DeviceBackend, error) { return nil, errors.New("no b") },
	})
	r.SetFallback(fake("generic", nil, errors.New("no generic")))

	_, _, err := r.Select(linux)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoProvider)
	assert.Contains(t, err.Error(), "no a")
	assert.Contains(t, err.Error(), "no b")
	assert.Contains(t, err.Error(), "no generic")
}

func TestRegistry_SelectEmpty(t *testing.T) {
	_, _, err := NewRegistry().Select(linux)
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestRegistry_Backend(t *testing.T) {
	r := NewRegistry()
	r.Register(fake("a", nil, nil))
	r.SetFallback(fake("generic", nil, nil))

	p, _, err := r.Backend("generic", linux)
	require.NoError(t, err)
	assert.Equal(t, "generic", p.Name)

	p, _, err = r.Backend("", linux)
	require.NoError(t, err)
	assert.Equal(t, "a", p.Name)

	_, _, err = r.Backend("nope", linux)
	assert.ErrorIs(t, err, ErrUnknown)
}

func TestBuiltin_Order(t *testing.T) {
	r := Builtin()

	assert.Equal(t, []string{NameV4L2, NameFFmpegV4L2, NameOpenCV}, names(r.Compatible(Platform{OS: "linux", CGO: true})))
	assert.Equal(t, []string{NameFFmpegV4L2, NameOpenCV}, names(r.Compatible(Platform{OS: "linux"})))
	assert.Equal(t, []string{NameAVFoundation, NameOpenCV}, names(r.Compatible(Platform{OS: "darwin", CGO: true})))
	assert.Equal(t, []string{NameOpenCV}, names(r.Compatible(Platform{OS: "windows"})))
}

func TestDefault_IsShared(t *testing.T) {
	assert.Same(t, Default(), Default())
}
