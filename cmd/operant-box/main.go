// Command operant-box runs an operant conditioning chamber: it polls the
// levers, drives the cue, pump and laser, reports to a host over serial and
// publishes events to MQTT.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sweeney/operant-box/internal/config"
	"github.com/sweeney/operant-box/internal/gpio"
	"github.com/sweeney/operant-box/internal/logging"
	"github.com/sweeney/operant-box/internal/session"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	root, err := newRootCmd()
	if err != nil {
		log.Fatal().Err(err).Msg("build command")
	}
	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("fatal")
		os.Exit(1)
	}
}

type cli struct {
	v          *viper.Viper
	configPath string
	cfg        config.Config
}

func newRootCmd() (*cobra.Command, error) {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:           "operant-box",
		Short:         "Operant conditioning box controller",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.load(); err != nil {
				return err
			}
			return run(c.cfg)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", "", "config file (default ./operant.yaml or /etc/operant-box/operant.yaml)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("log-format", "", "log format: console or json")
	flags.String("box", "", "box name used in MQTT topics")
	flags.String("broker", "", "MQTT broker address (empty disables MQTT)")
	flags.String("serial", "", "host serial device (empty disables the host link)")
	flags.String("http", "", "HTTP status address (empty disables)")
	for key, name := range map[string]string{
		"log.level":     "log-level",
		"log.format":    "log-format",
		"box":           "box",
		"mqtt.broker":   "broker",
		"serial.device": "serial",
		"http.addr":     "http",
	} {
		if err := c.v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", name, err)
		}
	}

	root.AddCommand(c.probeCmd(), c.configCmd(), versionCmd())
	return root, nil
}

// load reads the configuration and sets up logging.
func (c *cli) load() error {
	cfg, err := config.LoadWith(c.v, c.configPath)
	if err != nil {
		return err
	}
	if _, err := logging.Setup(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}); err != nil {
		return err
	}
	c.cfg = cfg
	return nil
}

func (c *cli) probeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Print the raw state of every lever and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.load(); err != nil {
				return err
			}
			board, err := gpio.NewRealBoard(c.cfg.Pins())
			if err != nil {
				return fmt.Errorf("init gpio: %w", err)
			}
			defer board.Close()
			return printLevers(cmd.OutOrStdout(), board, c.cfg.Levers)
		},
	}
}

func (c *cli) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "print",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.load(); err != nil {
				return err
			}
			out, err := c.cfg.YAML()
			if err != nil {
				return fmt.Errorf("render config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	})
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func printLevers(out io.Writer, sens session.Sensor, levers []config.LeverConfig) error {
	for _, l := range levers {
		pressed, err := sens.ReadRaw(config.LeverChannel(l.Name))
		if err != nil {
			return fmt.Errorf("read lever %s: %w", l.Name, err)
		}
		fmt.Fprintf(out, "%s (pin %d, %s): %s\n", l.Name, l.Pin, l.Role, stateString(pressed))
	}
	return nil
}

func stateString(pressed bool) string {
	if pressed {
		return "PRESSED"
	}
	return "RELEASED"
}
