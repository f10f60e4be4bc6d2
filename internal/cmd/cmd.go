package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/knei-knurow/mahony/internal/config"
	"github.com/knei-knurow/mahony/internal/server"
	"github.com/knei-knurow/mahony/internal/sensor"
)

var RootCmd = &cobra.Command{
	Use:   config.DefaultAppName,
	Short: "IMU attitude estimation and PID control loop",
	Long:  "IMU attitude estimation and PID control loop",
}

func RunCmdRunE(cmd *cobra.Command, args []string) error {
	app, err := server.NewMainApp(cmd, args).PrepareRun()
	if err != nil {
		return err
	}
	return app.Run()
}

func RunCmdFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "default configuration path")
	cmd.Flags().Bool("debug", false, "toggle debug logging")
	cmd.Flags().String("source", config.SourceSerial, "sample source: serial, replay, lsm6ds3tr or mpu6050")
	cmd.Flags().StringP("port", "p", config.DefaultSerialPort, "serial port of the IMU")
	cmd.Flags().String("replay", "", "sample log to replay, with --source=replay")
	cmd.Flags().Int("api-port", config.DefaultAPIPort, "port that the status api listens on")
}

var RunCmd = &cobra.Command{
	Use: "run",
	SuggestFor: []string{
		"ru", "start",
	},
	Short: "run the attitude estimation and control loop using predefined configs.",
	Long: `run the attitude estimation and control loop using predefined configs, by the following order:
1. path specified in --config flag
2. path defined IMUCTL_CONFIG environment variable
3. default location $HOME/.config/imuctl/config.yaml, /etc/imuctl/config.yaml, current directory
The parameters in the configuration file will be overwritten by the following order:
1. command line arguments
2. environment variables
`,
	Example: `  imuctl run --config=/path/to/config
  imuctl run --source=replay --replay=flight.log`,
	RunE: RunCmdRunE,
}

func InitCmdFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("print", false, "print config to stdout")
	cmd.Flags().BoolP("yes", "y", false, "overwrite")
	cmd.Flags().StringP("output", "o", config.DefaultConfig, "specify output path")
}

var InitCmd = &cobra.Command{
	Use: "init",
	SuggestFor: []string{
		"ini", "in",
	},
	Short: "init create a configuration template",
	Long: `init create a configuration template.
If --print flag is present, the configuration will be printed to stdout.
If --output / -o flag is present, the configuration will be saved to the path specified
Otherwise init will output configuration file to $HOME/.config/imuctl/config.yaml
If --yes / -y flag is present, the configuration will be overwrite without confirmation
`,
	Example: `  imuctl init --print
  imuctl init --output /path/to/config.yaml
  imuctl init -o /path/to/config.yaml -y`,
	RunE: config.InitCfg,
}

func ProbeCmdFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "default configuration path")
}

var ProbeCmd = &cobra.Command{
	Use: "probe",
	SuggestFor: []string{
		"pro", "pr", "prob",
	},
	Short: "probe the serial ports for IMUs",
	Long: `probe the serial ports for IMUs.
The probe command opens every serial port at source.baud and prints the ones
streaming sample lines.
`,
	Example: `  imuctl probe`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := server.NewMainApp(cmd, args).PrepareRun()
		if err != nil {
			return err
		}
		return app.ProbeSensor()
	},
}

var PortsCmd = &cobra.Command{
	Use:   "ports",
	Short: "list the serial ports without probing them",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ports, err := sensor.ListSerialPorts()
		if err != nil {
			return err
		}
		for _, port := range ports {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), port)
		}
		return nil
	},
}

func getRootCmd() *cobra.Command {
	RunCmdFlags(RunCmd)
	RootCmd.AddCommand(RunCmd)

	InitCmdFlags(InitCmd)
	RootCmd.AddCommand(InitCmd)

	ProbeCmdFlags(ProbeCmd)
	RootCmd.AddCommand(ProbeCmd)

	RootCmd.AddCommand(PortsCmd)

	return RootCmd
}

func Execute() error {
	return getRootCmd().Execute()
}
