package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/knei-knurow/mahony"
	"github.com/knei-knurow/mahony/internal/loop"
	"github.com/knei-knurow/mahony/internal/sensor"
	"github.com/knei-knurow/mahony/internal/utils"
)

const DefaultAppName = "imuctl"
const DefaultConfigName = "config"
const DefaultAPIInterface = "127.0.0.1"
const DefaultAPIPort = 18889
const DefaultSerialPort = "/dev/ttyUSB0"
const DefaultIMUID = "imu_0"
const DefaultPeriod = 5 * time.Millisecond

const (
	SourceSerial    = "serial"
	SourceReplay    = "replay"
	SourceLSM6DS3TR = "lsm6ds3tr"
	SourceMPU6050   = "mpu6050"

	SinkLog    = "log"
	SinkStdout = "stdout"
	SinkSerial = "serial"

	PIDPositional  = "positional"
	PIDIncremental = "incremental"
)

var userHomeDir, _ = os.UserHomeDir()
var DefaultConfig = path.Join(userHomeDir, ".config", DefaultAppName, DefaultConfigName+".yaml")
var DefaultConfigSearchPath0 = path.Join(userHomeDir, ".config", DefaultAppName)

const DefaultConfigSearchPath1 = "/etc/" + DefaultAppName
const DefaultConfigSearchPath2 = "./"

type EstimatorOpt struct {
	Period        time.Duration `yaml:"period" mapstructure:"period"`
	Kp            float64       `yaml:"kp" mapstructure:"kp"`
	Ki            float64       `yaml:"ki" mapstructure:"ki"`
	IntegralLimit float64       `yaml:"integral_limit" mapstructure:"integral_limit"`
}

type SourceOpt struct {
	ID   string `yaml:"id" mapstructure:"id"`
	Kind string `yaml:"kind" mapstructure:"kind"`
	Port string `yaml:"port" mapstructure:"port"`
	Baud int    `yaml:"baud" mapstructure:"baud"`
	Path string `yaml:"path" mapstructure:"path"`
	Bus  string `yaml:"bus" mapstructure:"bus"`
}

type SinkOpt struct {
	Kind string `yaml:"kind" mapstructure:"kind"`
	Port string `yaml:"port" mapstructure:"port"`
	Baud int    `yaml:"baud" mapstructure:"baud"`
}

type APIOpt struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	Interface string `yaml:"interface" mapstructure:"interface"`
	Port      int    `yaml:"port" mapstructure:"port"`
}

type PIDOpt struct {
	Name        string  `yaml:"name" mapstructure:"name"`
	Kind        string  `yaml:"kind" mapstructure:"kind"`
	Axis        string  `yaml:"axis" mapstructure:"axis"`
	Target      float64 `yaml:"target" mapstructure:"target"`
	Kp          float64 `yaml:"kp" mapstructure:"kp"`
	Ki          float64 `yaml:"ki" mapstructure:"ki"`
	Kd          float64 `yaml:"kd" mapstructure:"kd"`
	MaxOutput   float64 `yaml:"max_output" mapstructure:"max_output"`
	MaxIntegral float64 `yaml:"max_integral" mapstructure:"max_integral"` // positional only
}

type IMUCtlOpt struct {
	Debug     bool         `yaml:"debug" mapstructure:"debug"`
	Estimator EstimatorOpt `yaml:"estimator" mapstructure:"estimator"`
	Source    SourceOpt    `yaml:"source" mapstructure:"source"`
	Sink      SinkOpt      `yaml:"sink" mapstructure:"sink"`
	API       APIOpt       `yaml:"api" mapstructure:"api"`
	PID       []PIDOpt     `yaml:"pid" mapstructure:"pid"`
}

type IMUCtlDesc struct {
	Opt   IMUCtlOpt
	Viper *viper.Viper
}

func NewIMUCtlDesc() IMUCtlDesc {
	return IMUCtlDesc{
		Opt:   NewIMUCtlOpt(),
		Viper: nil,
	}
}

func NewIMUCtlOpt() IMUCtlOpt {
	return IMUCtlOpt{
		Estimator: EstimatorOpt{
			Period: DefaultPeriod,
			Kp:     mahony.DefaultKp,
			Ki:     mahony.DefaultKi,
		},
		Source: SourceOpt{
			ID:   DefaultIMUID,
			Kind: SourceSerial,
			Port: DefaultSerialPort,
			Baud: sensor.DefaultBaudRate,
		},
		Sink: SinkOpt{
			Kind: SinkLog,
			Baud: sensor.DefaultBaudRate,
		},
		API: APIOpt{
			Enabled:   true,
			Interface: DefaultAPIInterface,
			Port:      DefaultAPIPort,
		},
		PID:   DefaultPIDs(),
		Debug: false,
	}
}

// DefaultPIDs levels roll and pitch.
func DefaultPIDs() []PIDOpt {
	return []PIDOpt{
		{Name: "roll", Kind: PIDPositional, Axis: string(loop.AxisRoll), Kp: 2, Ki: 0.1, Kd: 0.5, MaxOutput: 1000, MaxIntegral: 300},
		{Name: "pitch", Kind: PIDPositional, Axis: string(loop.AxisPitch), Kp: 2, Ki: 0.1, Kd: 0.5, MaxOutput: 1000, MaxIntegral: 300},
	}
}

func setDefaults(vipCfg *viper.Viper, opt IMUCtlOpt) {
	vipCfg.SetDefault("debug", opt.Debug)
	vipCfg.SetDefault("estimator.period", opt.Estimator.Period)
	vipCfg.SetDefault("estimator.kp", opt.Estimator.Kp)
	vipCfg.SetDefault("estimator.ki", opt.Estimator.Ki)
	vipCfg.SetDefault("estimator.integral_limit", opt.Estimator.IntegralLimit)
	vipCfg.SetDefault("source.id", opt.Source.ID)
	vipCfg.SetDefault("source.kind", opt.Source.Kind)
	vipCfg.SetDefault("source.port", opt.Source.Port)
	vipCfg.SetDefault("source.baud", opt.Source.Baud)
	vipCfg.SetDefault("source.path", opt.Source.Path)
	vipCfg.SetDefault("source.bus", opt.Source.Bus)
	vipCfg.SetDefault("sink.kind", opt.Sink.Kind)
	vipCfg.SetDefault("sink.port", opt.Sink.Port)
	vipCfg.SetDefault("sink.baud", opt.Sink.Baud)
	vipCfg.SetDefault("api.enabled", opt.API.Enabled)
	vipCfg.SetDefault("api.interface", opt.API.Interface)
	vipCfg.SetDefault("api.port", opt.API.Port)
}

// Parse loads the configuration, by the following order of precedence:
// command line flags, IMUCTL_* environment variables, the config file
// (--config, then IMUCTL_CONFIG, then the search paths) and the defaults.
func (o *IMUCtlDesc) Parse(cmd *cobra.Command) error {
	vipCfg := viper.New()
	setDefaults(vipCfg, NewIMUCtlOpt())

	explicit := false
	if configFileCmd, err := cmd.Flags().GetString("config"); err == nil && configFileCmd != "" {
		vipCfg.SetConfigFile(configFileCmd)
		explicit = true
	} else if configFileEnv := os.Getenv("IMUCTL_CONFIG"); configFileEnv != "" {
		vipCfg.SetConfigFile(configFileEnv)
		explicit = true
	} else {
		vipCfg.SetConfigName(DefaultConfigName)
		vipCfg.SetConfigType("yaml")
		vipCfg.AddConfigPath(DefaultConfigSearchPath0)
		vipCfg.AddConfigPath(DefaultConfigSearchPath1)
		vipCfg.AddConfigPath(DefaultConfigSearchPath2)
	}

	vipCfg.SetEnvPrefix(DefaultAppName)
	vipCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vipCfg.AutomaticEnv()

	_ = vipCfg.BindPFlag("debug", cmd.Flags().Lookup("debug"))
	_ = vipCfg.BindPFlag("source.kind", cmd.Flags().Lookup("source"))
	_ = vipCfg.BindPFlag("source.port", cmd.Flags().Lookup("port"))
	_ = vipCfg.BindPFlag("source.path", cmd.Flags().Lookup("replay"))
	_ = vipCfg.BindPFlag("api.port", cmd.Flags().Lookup("api-port"))

	// If a config file is found, read it in.
	if err := vipCfg.ReadInConfig(); err == nil {
		log.Debugln("using config file:", vipCfg.ConfigFileUsed())
	} else {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return fmt.Errorf("cannot read config: %w", err)
		}
		log.Debugln(err)
	}

	opt := NewIMUCtlOpt()
	opt.PID = nil
	if err := vipCfg.Unmarshal(&opt); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if !vipCfg.IsSet("pid") {
		opt.PID = DefaultPIDs()
	}

	o.Opt = opt
	o.Viper = vipCfg
	return o.Opt.Validate()
}

func (o *IMUCtlDesc) PostParse() {
	if o.Opt.Debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

// Validate reports the first inconsistency in the options.
func (o *IMUCtlOpt) Validate() error {
	if o.Estimator.Period <= 0 {
		return fmt.Errorf("estimator.period must be positive, got %v", o.Estimator.Period)
	}
	if o.Estimator.Kp < 0 || o.Estimator.Ki < 0 {
		return fmt.Errorf("estimator gains must not be negative, got kp=%v ki=%v", o.Estimator.Kp, o.Estimator.Ki)
	}
	if o.Estimator.IntegralLimit < 0 {
		return fmt.Errorf("estimator.integral_limit must not be negative, got %v", o.Estimator.IntegralLimit)
	}

	switch o.Source.Kind {
	case SourceSerial:
		if o.Source.Port == "" || o.Source.Baud <= 0 {
			return errors.New("serial source needs source.port and a positive source.baud")
		}
	case SourceReplay:
		if o.Source.Path == "" {
			return errors.New("replay source needs source.path")
		}
	case SourceLSM6DS3TR, SourceMPU6050:
	default:
		return fmt.Errorf("unknown source.kind %q", o.Source.Kind)
	}

	switch o.Sink.Kind {
	case SinkLog, SinkStdout:
	case SinkSerial:
		if o.Sink.Port == "" || o.Sink.Baud <= 0 {
			return errors.New("serial sink needs sink.port and a positive sink.baud")
		}
	default:
		return fmt.Errorf("unknown sink.kind %q", o.Sink.Kind)
	}

	if o.API.Enabled && (o.API.Port <= 0 || o.API.Port > 65535) {
		return fmt.Errorf("api.port out of range: %d", o.API.Port)
	}

	names := make(map[string]struct{}, len(o.PID))
	for i, p := range o.PID {
		if p.Name == "" {
			return fmt.Errorf("pid[%d] has no name", i)
		}
		if _, ok := names[p.Name]; ok {
			return fmt.Errorf("duplicate pid name %q", p.Name)
		}
		names[p.Name] = struct{}{}

		if p.Kind != PIDPositional && p.Kind != PIDIncremental {
			return fmt.Errorf("pid %q: unknown kind %q", p.Name, p.Kind)
		}
		if _, err := loop.ParseAxis(p.Axis); err != nil {
			return fmt.Errorf("pid %q: %w", p.Name, err)
		}
		if p.MaxOutput < 0 || p.MaxIntegral < 0 {
			return fmt.Errorf("pid %q: limits must not be negative", p.Name)
		}
	}
	return nil
}

// InitCfg prepares a config template for the application
func InitCfg(cmd *cobra.Command, _ []string) error {
	printFlag, _ := cmd.Flags().GetBool("print")
	outputPath, _ := cmd.Flags().GetString("output")
	overwriteFlag, _ := cmd.Flags().GetBool("yes")

	desc := NewIMUCtlDesc()
	if err := desc.Parse(cmd); err != nil {
		log.Errorln(err)
		return err
	}

	if printFlag {
		configBuffer, err := yaml.Marshal(desc.Opt)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), string(configBuffer))
		return err
	}
	_, err := utils.DumpOption(desc.Opt, outputPath, overwriteFlag)
	return err
}
