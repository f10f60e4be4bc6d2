package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/knei-knurow/mahony"
	"github.com/knei-knurow/mahony/internal/actuator"
	"github.com/knei-knurow/mahony/internal/config"
	"github.com/knei-knurow/mahony/internal/loop"
	"github.com/knei-knurow/mahony/internal/sensor"
	"github.com/knei-knurow/mahony/pid"
)

const probeTimeout = 2 * time.Second
const shutdownTimeout = 5 * time.Second

type mainApp struct {
	name string
	cmd  *cobra.Command
	args []string
	opt  *config.IMUCtlOpt
}

type MainApp interface {
	Run() error
	PrepareRun() (MainApp, error)
	GetOpt() *config.IMUCtlOpt
	SetOpt(*config.IMUCtlOpt) MainApp
	ProbeSensor() error
}

func NewMainApp(cmd *cobra.Command, args []string) MainApp {
	return &mainApp{
		name: config.DefaultAppName,
		cmd:  cmd,
		args: args,
	}
}

func (a *mainApp) GetOpt() *config.IMUCtlOpt {
	return a.opt
}

func (a *mainApp) SetOpt(opt *config.IMUCtlOpt) MainApp {
	a.opt = opt
	return a
}

func (a *mainApp) PrepareRun() (MainApp, error) {
	desc := config.NewIMUCtlDesc()
	if err := desc.Parse(a.cmd); err != nil {
		return nil, err
	}
	desc.PostParse()
	a.opt = &desc.Opt
	return a, nil
}

// ProbeSensor lists the serial ports that stream sample lines at the
// configured baud rate.
func (a *mainApp) ProbeSensor() error {
	ports, err := sensor.ListSerialPorts()
	if err != nil {
		return err
	}

	log.Infof("probing %d serial ports at %d baud...", len(ports), a.opt.Source.Baud)
	var valid []string
	for _, port := range ports {
		if sensor.ProbeSerial(port, a.opt.Source.Baud, probeTimeout) {
			valid = append(valid, port)
		}
	}
	if len(valid) == 0 {
		return errors.New("no valid ports found")
	}

	log.Infof("found %d valid IMU devices:", len(valid))
	for _, port := range valid {
		_, _ = fmt.Fprintf(a.cmd.OutOrStdout(), "- %s\n", port)
	}
	return nil
}

// Run runs the control loop until SIGINT/SIGTERM or the end of a replay.
func (a *mainApp) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.run(ctx)
}

func (a *mainApp) run(ctx context.Context) error {
	opt := a.opt
	log.Infoln("estimator:", fmt.Sprintf("%+v", opt.Estimator))
	log.Infoln("source:", fmt.Sprintf("%+v", opt.Source))
	log.Infoln("sink:", fmt.Sprintf("%+v", opt.Sink))
	log.Infoln("api.enabled:", opt.API.Enabled)
	log.Infoln("debug:", opt.Debug)

	est := mahony.New(opt.Estimator.Period.Seconds())
	est.SetGains(opt.Estimator.Kp, opt.Estimator.Ki)
	est.SetIntegralLimit(opt.Estimator.IntegralLimit)

	channels, err := newChannels(opt.PID)
	if err != nil {
		return err
	}

	source, err := openSource(opt.Source)
	if err != nil {
		return err
	}
	defer func() { _ = source.Close() }()

	sink, err := openSink(opt.Sink)
	if err != nil {
		return err
	}
	defer func() { _ = sink.Close() }()

	l := loop.New(est, source, sink, channels...)

	if opt.API.Enabled {
		if !opt.Debug {
			gin.SetMode(gin.ReleaseMode)
		}
		addr := opt.API.Interface + ":" + strconv.Itoa(opt.API.Port)
		srv := &http.Server{Addr: addr, Handler: NewRouter(l)}
		go func() {
			log.Infoln("start api listen on", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorln("failed to serve...", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// The serial firmware paces its own stream
	period := opt.Estimator.Period
	if opt.Source.Kind == config.SourceSerial {
		period = 0
	}

	err = l.Run(ctx, period)
	snap := l.Snapshot()
	log.Infof("loop stopped after %d samples, %d errors", snap.Samples, snap.Errors)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newChannels(opts []config.PIDOpt) ([]*loop.Channel, error) {
	channels := make([]*loop.Channel, 0, len(opts))
	for _, p := range opts {
		axis, err := loop.ParseAxis(p.Axis)
		if err != nil {
			return nil, fmt.Errorf("pid %q: %w", p.Name, err)
		}
		switch p.Kind {
		case config.PIDPositional:
			ctrl := pid.NewPositional(p.Kp, p.Ki, p.Kd, p.MaxOutput, p.MaxIntegral)
			channels = append(channels, loop.NewPositionalChannel(p.Name, axis, p.Target, ctrl))
		case config.PIDIncremental:
			ctrl := pid.NewIncremental(p.Kp, p.Ki, p.Kd, p.MaxOutput)
			channels = append(channels, loop.NewIncrementalChannel(p.Name, axis, p.Target, ctrl))
		default:
			return nil, fmt.Errorf("pid %q: unknown kind %q", p.Name, p.Kind)
		}
	}
	return channels, nil
}

func openSource(opt config.SourceOpt) (sensor.Source, error) {
	var (
		source sensor.Source
		err    error
	)
	switch opt.Kind {
	case config.SourceSerial:
		source, err = sensor.OpenSerial(opt.ID, opt.Port, opt.Baud)
	case config.SourceReplay:
		source, err = sensor.OpenReplay(opt.ID, opt.Path)
	case config.SourceLSM6DS3TR:
		source, err = sensor.OpenLSM6DS3TR(opt.ID, opt.Bus)
	case config.SourceMPU6050:
		source, err = sensor.OpenMPU6050(opt.ID, opt.Bus)
	default:
		err = fmt.Errorf("unknown source kind %q", opt.Kind)
	}
	if err != nil {
		return nil, err
	}
	return source, nil
}

func openSink(opt config.SinkOpt) (actuator.Sink, error) {
	switch opt.Kind {
	case config.SinkLog:
		return actuator.NewLogSink(), nil
	case config.SinkStdout:
		return actuator.NewStdoutSink(), nil
	case config.SinkSerial:
		sink, err := actuator.OpenSerialSink(opt.Port, opt.Baud)
		if err != nil {
			return nil, err
		}
		return sink, nil
	}
	return nil, fmt.Errorf("unknown sink kind %q", opt.Kind)
}
