package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	terminate "github.com/pulcy/go-terminate"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/pinwheel-io/pinwheel/pkg/config"
	"github.com/pinwheel-io/pinwheel/pkg/environment"
	"github.com/pinwheel-io/pinwheel/pkg/ui"
	"github.com/pinwheel-io/pinwheel/server"
	"github.com/pinwheel-io/pinwheel/service"
	"github.com/pinwheel-io/pinwheel/service/bridge"
	"github.com/pinwheel-io/pinwheel/service/lines"
	"github.com/pinwheel-io/pinwheel/service/mqtt"
)

const (
	projectName       = "Pinwheel GPIO daemon"
	defaultServerPort = 7231
)

var (
	projectVersion = "dev"
	projectBuild   = "dev"
	maskAny        = errors.WithStack
)

func main() {
	var levelFlag string
	var serverHost string
	var serverPort int
	var chipFlag string
	var bridgeType string
	var configFile string
	var withUI bool

	pflag.StringVarP(&levelFlag, "level", "l", "debug", "Set log level")
	pflag.StringVarP(&chipFlag, "chip", "c", "", "GPIO chip to open (gpiochip0|stub)")
	pflag.StringVarP(&bridgeType, "bridge", "b", "auto", "Type of status LED bridge to use (rpi|stub|auto)")
	pflag.StringVar(&configFile, "config", "", "Path of the configuration file")
	pflag.StringVar(&serverHost, "host", "0.0.0.0", "Host address the HTTP server will listen on")
	pflag.IntVar(&serverPort, "port", defaultServerPort, "Port the HTTP server will listen on")
	pflag.BoolVar(&withUI, "ui", false, "Run the terminal pin monitor")
	pflag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if level, err := zerolog.ParseLevel(levelFlag); err == nil {
		logger = logger.Level(level)
	}

	conf := config.New()
	if configFile != "" {
		var err error
		conf, err = config.Load(configFile)
		if err != nil {
			Exitf("Failed to load configuration %s: %v\n", configFile, err)
		}
	}
	if chipFlag != "" {
		conf.Chip = chipFlag
	}

	platform := environment.Detect(logger)

	var provider lines.Provider
	if conf.Chip == "stub" {
		provider = lines.NewStub()
	} else {
		provider = lines.NewChardevProvider(lines.ChardevConfig{Chip: conf.Chip}, logger)
	}

	var br bridge.API
	var err error
	switch bridgeType {
	case "auto":
		if platform.IsRaspberryPi() && conf.Chip != "stub" {
			br, err = bridge.NewRaspberryPiBridge()
			if err != nil {
				Exitf("Failed to initialize Raspberry Pi Bridge: %v\n", err)
			}
		} else {
			br = bridge.NewStubBridge()
		}
	case "rpi":
		br, err = bridge.NewRaspberryPiBridge()
		if err != nil {
			Exitf("Failed to initialize Raspberry Pi Bridge: %v\n", err)
		}
	case "stub":
		br = bridge.NewStubBridge()
	default:
		Exitf("Unknown bridge type '%s' (rpi|stub|auto)\n", bridgeType)
	}

	svc, err := service.NewService(service.Config{
		ProgramVersion: projectVersion,
	}, service.Dependencies{
		Log:      logger,
		Provider: provider,
		Bridge:   br,
		Hardware: platform,
	})
	if err != nil {
		Exitf("Failed to initialize Service: %v\n", err)
	}

	if err := service.ApplyConfig(svc, conf, logger); err != nil {
		Exitf("Failed to apply configuration: %v\n", err)
	}

	var mqttPublisher *mqtt.Publisher
	if conf.MQTT.Broker != "" {
		mqttSvc, err := mqtt.NewService(mqtt.Config{
			BrokerURL: conf.MQTT.Broker,
			UserName:  conf.MQTT.Username,
			Password:  conf.MQTT.Password,
			ClientID:  "pinwheel",
		}, logger)
		if err != nil {
			Exitf("Failed to connect to MQTT broker: %v\n", err)
		}
		defer mqttSvc.Close()
		mqttPublisher, err = mqtt.NewPublisher(logger, mqttSvc, svc, conf.MQTT.TopicPrefix)
		if err != nil {
			Exitf("Failed to initialize MQTT publisher: %v\n", err)
		}
		defer mqttPublisher.Close()
	}

	httpServer, err := server.New(server.Config{
		Host:     serverHost,
		HTTPPort: serverPort,
	}, logger, svc)
	if err != nil {
		Exitf("Failed to initialize Server: %v\n", err)
	}

	// Prepare to shutdown in a controlled manor
	ctx, cancel := context.WithCancel(context.Background())
	t := terminate.NewTerminator(func(template string, args ...interface{}) {
		logger.Info().Msgf(template, args...)
	}, cancel)
	go t.ListenSignals()

	fmt.Printf("Starting %s (version %s build %s)\n", projectName, projectVersion, projectBuild)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(ctx) })
	g.Go(func() error { return httpServer.Run(ctx) })
	if withUI {
		g.Go(func() error {
			root, err := ui.New(svc)
			if err != nil {
				return maskAny(err)
			}
			defer root.Close()
			p := tea.NewProgram(root, tea.WithContext(ctx), tea.WithAltScreen())
			if _, err := p.Run(); err != nil && err != tea.ErrProgramKilled {
				return maskAny(err)
			}
			// Quitting the UI stops the daemon.
			cancel()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		Exitf("Service run failed: %#v", err)
	}
}

// Print the given error message and exit with code 1
func Exitf(message string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, message, args...)
	os.Exit(1)
}
