package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"charge_point/config"
	notifier "charge_point/notifier/nats"
	"charge_point/server"
	"charge_point/timesource"
	"charge_point/transport"
	mqtttransport "charge_point/transport/mqtt"
	natstransport "charge_point/transport/nats"
	wstransport "charge_point/transport/ws"

	"github.com/sirupsen/logrus"
)

const (
	INSERT_CABLE = "insert.cable"
	REMOVE_CABLE = "remove.cable"
	SWIPE        = "swipe"
	STATUS       = "status"
)

var log *logrus.Logger

func newTransport(conf *config.Config) transport.Transport {
	switch conf.Transport.Kind {
	case "nats":
		return natstransport.New(natstransport.Config{URL: conf.Transport.URL, Name: conf.Transport.ClientID})
	case "ws":
		return wstransport.New(wstransport.Config{URL: conf.Transport.URL, ChargePointId: conf.Charger.Serial})
	default:
		return mqtttransport.New(mqtttransport.Config{
			Broker:         conf.Transport.Broker,
			ClientID:       conf.Transport.ClientID,
			Username:       conf.Transport.Username,
			Password:       conf.Transport.Password,
			SubscribeQoS:   transport.QoS(conf.Transport.QoS),
			ConnectTimeout: conf.Transport.ConnectTimeout,
		})
	}
}

// Start function
func main() {
	configPath := flag.String("conf", "", "path to the yaml configuration; environment only when empty")
	flag.Parse()

	conf, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	log.SetLevel(conf.LogLevel())
	logrus.SetLevel(conf.LogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chargePoint := NewChargePoint(conf, newTransport(conf), timesource.System{})

	if conf.Notifier.Enabled {
		natsNotifier := notifier.New(conf.Notifier.URL, conf.Notifier.Subject, conf.Charger.Serial)
		natsNotifier.SetChannel(chargePoint.NotificationChannel())
		natsNotifier.SetTimeout(conf.Notifier.Timeout)
		log.Printf("waiting for command responses up to %v", natsNotifier.Timeout().String())

		natsNotifier.AddHandler(INSERT_CABLE, chargePoint.InsertCable)
		natsNotifier.AddHandler(REMOVE_CABLE, chargePoint.RemoveCable)
		natsNotifier.AddHandler(SWIPE, chargePoint.Swipe)
		natsNotifier.AddHandler(STATUS, chargePoint.Status)

		if err := natsNotifier.Start(ctx); err != nil {
			log.Warnf("command bridge disabled: %v", err)
		} else {
			chargePoint.EnableStateFeed()
			defer natsNotifier.Stop()
		}
	}

	if conf.Status.Enabled {
		statusServer := server.NewServer(chargePoint)
		go func() {
			if err := statusServer.Start(ctx, conf.Status.Listen); err != nil {
				log.Warnf("status server: %v", err)
			}
		}()
	}

	log.Infof("starting charge point %v over %v", conf.Charger.Serial, conf.Transport.Kind)
	if err := chargePoint.Run(ctx); err != nil {
		log.Fatal(err)
	}
	log.Info("stopped charge point")
}

func init() {
	log = logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetLevel(logrus.InfoLevel)
}
