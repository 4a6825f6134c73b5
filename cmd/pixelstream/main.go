package main

import (
	"context"
	"time"

	"github.com/openeq/pixelstream/pkg/config"
	"github.com/openeq/pixelstream/pkg/logger"
	"github.com/openeq/pixelstream/pkg/monitoring"
	"github.com/openeq/pixelstream/pkg/os"
	"github.com/openeq/pixelstream/pkg/relay"
	"github.com/openeq/pixelstream/pkg/service"
)

var Version = "?"

func main() {
	conf := config.NewConfig()
	conf.ParseFlags()

	log := logger.NewConsole(conf.Relay.Debug, "rel", false)
	log.Info().Msgf("version: %v", Version)
	log.Debug().Msgf("config: %+v", conf)

	done := os.ExpectTermination()

	var services service.Group
	re, err := relay.New(conf, log)
	if err != nil {
		log.Fatal().Err(err).Msg("couldn't init the relay")
	}
	services.Add(re)
	if conf.Monitoring.IsEnabled() {
		services.Add(monitoring.New(conf.Monitoring, "rel", log))
	}
	services.Start()

	<-done
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := services.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("service shutdown errors")
	}
}
