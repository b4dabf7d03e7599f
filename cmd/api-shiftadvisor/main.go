package main

import (
	"flag"

	"github.com/iot-for-tillgenglighet/messaging-golang/pkg/messaging"
	log "github.com/sirupsen/logrus"

	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/advisor"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/app"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/config"
	shiftmessaging "github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/messaging"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/messaging/commands"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/pkg/handler"
)

var dataDir string

func main() {
	flag.StringVar(&dataDir, "datadir", "", "Overrides SHIFTADVISOR_DATA_DIR")
	flag.Parse()

	log.SetFormatter(&log.JSONFormatter{})

	serviceName := "api-shiftadvisor"

	log.Infof("Starting up %s ...", serviceName)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %s", err.Error())
	}
	if dataDir != "" {
		cfg.Storage.DataDir = dataDir
	}
	if cfg.Auth.UsesDefaultSecret() {
		log.Fatal("JWT_SECRET is not set, refusing to issue tokens signed with the default secret")
	}

	var messenger *messaging.Context
	var publisher advisor.Publisher

	if cfg.Messaging.Enabled {
		messenger, err = messaging.Initialize(messaging.LoadConfiguration(serviceName))
		if err != nil {
			log.Fatalf("Failed to connect to message broker: %s", err.Error())
		}
		publisher = messenger
	}

	a, err := app.Build(cfg, publisher)
	if err != nil {
		log.Fatalf("Failed to start %s: %s", serviceName, err.Error())
	}
	defer a.Close()

	if messenger != nil {
		messenger.RegisterTopicMessageHandler((&commands.LogShift{}).TopicName(), shiftmessaging.CreateLogShiftReceiver(a.Service))
	}

	handler.CreateRouterAndStartServing(a, cfg.Server.Port)
}
