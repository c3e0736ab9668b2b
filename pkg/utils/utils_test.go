package utils

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger_Level(t *testing.T) {
	assert.True(t, NewLogger("").Desugar().Core().Enabled(zapcore.DebugLevel))
	assert.True(t, NewLogger("bogus").Desugar().Core().Enabled(zapcore.DebugLevel))

	l := NewLogger("WARN")
	assert.False(t, l.Desugar().Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Desugar().Core().Enabled(zapcore.WarnLevel))
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestServe_ShutsDownWithContext(t *testing.T) {
	port := freePort(t)
	ctx, cancel := context.WithCancel(context.Background())
	h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, Serve(ctx, "test", h, port))
	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d", port))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	cancel()
	assert.Eventually(t, func() bool {
		_, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d", port))
		return err != nil
	}, 2*time.Second, 20*time.Millisecond)
}

func TestServe_PortInUse(t *testing.T) {
	l, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer l.Close()

	err = Serve(context.Background(), "test", http.NotFoundHandler(), l.Addr().(*net.TCPAddr).Port)
	assert.Error(t, err)
}

func TestCors_AllowsStreamAndDeleteMethods(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Cors())
	r.DELETE("/api/recordings/:name", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		req := httptest.NewRequest(http.MethodOptions, "/api/recordings/a.avi", nil)
		req.Header.Set("Origin", "http://pi.local")
		req.Header.Set("Access-Control-Request-Method", method)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), method)
	}
}
