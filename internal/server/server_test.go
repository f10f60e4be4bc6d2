package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knei-knurow/mahony"
	"github.com/knei-knurow/mahony/internal/actuator"
	"github.com/knei-knurow/mahony/internal/config"
	"github.com/knei-knurow/mahony/internal/loop"
	"github.com/knei-knurow/mahony/internal/sensor"
	"github.com/knei-knurow/mahony/pid"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestLoop() *loop.Loop {
	return loop.New(
		mahony.New(mahony.DefaultSamplePeriod),
		sensor.NewLineSource("test", strings.NewReader("")),
		actuator.NewLogSink(),
		loop.NewPositionalChannel("roll", loop.AxisRoll, 10, pid.NewPositional(1, 0, 0, 100, 0)),
	)
}

func TestRouter(t *testing.T) {
	l := newTestLoop()
	router := NewRouter(l)

	// 90 deg/s about x, without gravity correction
	l.Step(sensor.Sample{Gyro: [3]float64{90, 0, 0}, Seq: 41})
	l.Step(sensor.Sample{Gyro: [3]float64{90, 0, 0}, Seq: 42})

	t.Run("Healthz", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, 2.0, body["samples"])
	})

	t.Run("Attitude", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/attitude", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var snap loop.Snapshot
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
		assert.Equal(t, uint64(42), snap.Seq)
		assert.InDelta(t, 0.9, snap.Roll, 1e-3)
		assert.InDelta(t, 10-snap.Roll, snap.Outputs["roll"], 1e-9)
	})

	t.Run("Rearm", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/rearm", nil))
		assert.Equal(t, http.StatusAccepted, w.Code)

		l.Step(sensor.Sample{Acc: [3]float64{0, 0, 1}})
		assert.Equal(t, [4]float64{1, 0, 0, 0}, l.Snapshot().Quaternion)
	})

	t.Run("RearmNeedsPost", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rearm", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestNewChannels(t *testing.T) {
	channels, err := newChannels([]config.PIDOpt{
		{Name: "roll", Kind: config.PIDPositional, Axis: "roll", Target: 3, Kp: 1, MaxOutput: 10},
		{Name: "rate", Kind: config.PIDIncremental, Axis: "gz", Kp: 1, MaxOutput: 10},
	})
	require.NoError(t, err)
	require.Len(t, channels, 2)
	assert.Equal(t, "roll", channels[0].Name)
	assert.Equal(t, loop.AxisRoll, channels[0].Axis)
	assert.Equal(t, 3.0, channels[0].Target)
	assert.Equal(t, loop.AxisGyroZ, channels[1].Axis)

	_, err = newChannels([]config.PIDOpt{{Name: "x", Kind: "fuzzy", Axis: "roll"}})
	assert.Error(t, err)
	_, err = newChannels([]config.PIDOpt{{Name: "x", Kind: config.PIDPositional, Axis: "heading"}})
	assert.Error(t, err)
}

func TestOpenErrors(t *testing.T) {
	_, err := openSource(config.SourceOpt{Kind: "usb"})
	assert.Error(t, err)
	_, err = openSource(config.SourceOpt{Kind: config.SourceReplay, Path: filepath.Join(t.TempDir(), "missing.log")})
	assert.Error(t, err)
	_, err = openSink(config.SinkOpt{Kind: "pwm"})
	assert.Error(t, err)
}

func TestAppRunReplay(t *testing.T) {
	var lines []string
	for i := 0; i < 50; i++ {
		lines = append(lines, "Accel: 0, 0.5, 0.866,0, 0, 0,0,0,0")
	}
	path := filepath.Join(t.TempDir(), "flight.log")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0600))

	opt := config.NewIMUCtlOpt()
	opt.Estimator.Period = 100 * time.Microsecond
	opt.Source.Kind = config.SourceReplay
	opt.Source.Path = path
	opt.API.Enabled = false
	require.NoError(t, opt.Validate())

	app := NewMainApp(&cobra.Command{}, nil).SetOpt(&opt)
	assert.Same(t, &opt, app.GetOpt())
	assert.NoError(t, app.(*mainApp).run(context.Background()))
}

func TestAppRunCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flight.log")
	require.NoError(t, os.WriteFile(path, []byte("0,0,1,0,0,0\n"), 0600))

	opt := config.NewIMUCtlOpt()
	opt.Source.Kind = config.SourceReplay
	opt.Source.Path = path
	opt.API.Enabled = false

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	app := NewMainApp(&cobra.Command{}, nil).SetOpt(&opt)
	assert.NoError(t, app.(*mainApp).run(ctx))
}
