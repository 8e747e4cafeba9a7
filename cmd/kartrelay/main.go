package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"kartrelay/internal/relay"
)

var (
	configPath string
	debug      bool
)

func init() {
	flag.StringVar(&configPath, "c", "./config.yml", "config path")
	flag.BoolVar(&debug, "debug", false, "log all persistence calls locally as well as posting them")
	flag.Parse()
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logger.SetLevel(logrus.DebugLevel)

	logger.Infof("Starting kartrelay live-timing relay")

	if err := godotenv.Load(); err != nil {
		logger.Debugf("No .env file loaded, using process environment")
	}

	config, err := relay.ReadConfig(configPath)

	if err != nil {
		logger.WithError(err).Fatal("Could not read config")
	}

	httpBridge := relay.NewHTTPBridge(config.Persistence, logger)
	httpBridge.Init(&http.Client{
		Timeout: time.Second * 10,
	})

	var bridge relay.Bridge = httpBridge

	if debug {
		bridge = relay.MultiBridge(httpBridge, relay.NewLogBridge(logger))
	}

	service := relay.NewRelay(context.Background(), config, logger, bridge)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)

	go func() {
		for range c {
			if err := service.Stop(); err != nil {
				logger.WithError(err).Fatal("Could not stop relay")
			}

			os.Exit(0)
		}
	}()

	if err := service.Run(); err != nil {
		logger.WithError(err).Fatal("Could not run relay")
	}

	logger.Infof("Relay stopped. Exiting")
}
