package messaging

import (
	"context"
	"encoding/json"

	log "github.com/sirupsen/logrus"

	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/livecontext"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/messaging/commands"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/shiftlog"
	"github.com/iot-for-tillgenglighet/messaging-golang/pkg/messaging"
	"github.com/streadway/amqp"
)

//ShiftLogger is the part of the service that incoming commands are forwarded to
type ShiftLogger interface {
	LogShift(ctx context.Context, acct string, r shiftlog.Record, loc *livecontext.Location) (shiftlog.Record, error)
}

//CreateLogShiftReceiver is a closure that takes a shift logger and handles incoming commands
func CreateLogShiftReceiver(logger ShiftLogger) messaging.TopicMessageHandler {
	return func(msg amqp.Delivery) {
		log.Info("Message received from topic: " + string(msg.Body))

		cmd := &commands.LogShift{}
		err := json.Unmarshal(msg.Body, cmd)

		if err != nil {
			log.Error("Failed to unmarshal message")
			return
		}

		record := shiftlog.Record{
			Date:      cmd.Date,
			StartHour: cmd.StartHour,
			EndHour:   cmd.EndHour,
			Earnings:  cmd.Earnings,
			Weather:   cmd.Weather,
			Traffic:   shiftlog.UnknownTraffic,
		}
		if cmd.Traffic != nil {
			record.Traffic = shiftlog.KnownTraffic(*cmd.Traffic)
		}

		var loc *livecontext.Location
		if cmd.Latitude != nil && cmd.Longitude != nil {
			loc = &livecontext.Location{Latitude: *cmd.Latitude, Longitude: *cmd.Longitude}
		}

		_, err = logger.LogShift(context.Background(), cmd.Account, record, loc)

		if err != nil {
			log.Error(err.Error())
			return
		}
	}
}
