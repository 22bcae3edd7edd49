package main

import (
	"context"
	"fmt"
	"sync"

	"charge_point/actions"
	"charge_point/charger"
	"charge_point/config"
	"charge_point/delivery"
	"charge_point/eventbus"
	"charge_point/notifier"
	"charge_point/peripheral"
	"charge_point/server"
	"charge_point/timesource"
	"charge_point/transport"
)

// ChargePoint owns the whole object graph of one charge point. Everything is
// built here and handed down explicitly.
type ChargePoint struct {
	conf      *config.Config
	clock     timesource.Clock
	transport transport.Transport

	charger   *charger.Charger
	inputs    *eventbus.Queue[charger.InputEvent]
	states    *eventbus.Broadcast[charger.Record]
	handler   *charger.Handler
	connector *Connector

	outbound *delivery.Queue
	inbound  *delivery.Queue
	delivery *delivery.Service
	actions  *actions.CoreProfileActions

	led, relay, lock, rejected peripheral.Switch
	display                    peripheral.Display

	notifications chan notifier.Notification
	stateFeed     bool
}

func NewChargePoint(conf *config.Config, t transport.Transport, clock timesource.Clock) *ChargePoint {
	cp := &ChargePoint{
		conf:          conf,
		clock:         clock,
		transport:     t,
		inputs:        eventbus.NewQueue[charger.InputEvent](conf.Bus.InputCapacity),
		states:        eventbus.NewBroadcast[charger.Record](conf.Bus.BroadcastDepth, conf.Bus.MaxSubscribers),
		outbound:      delivery.NewQueue("send", conf.Delivery.QueueCapacity, conf.Delivery.MaxPayload),
		inbound:       delivery.NewQueue("receive", conf.Delivery.QueueCapacity, conf.Delivery.MaxPayload),
		led:           peripheral.NewLogSwitch("led"),
		relay:         peripheral.NewLogSwitch("relay"),
		lock:          peripheral.NewLogSwitch("lock"),
		rejected:      peripheral.NewLogSwitch("rejected"),
		display:       &peripheral.LogDisplay{},
		notifications: make(chan notifier.Notification, 16),
	}
	cp.charger = charger.NewCharger(
		charger.WithFaultRecoveryDelay(conf.Fault.RecoveryDelay),
		charger.WithInputQueue(cp.inputs),
	)
	cp.handler = charger.NewHandler(cp.charger, cp.inputs, cp.states, conf.Bus.Pacing)
	cp.connector = NewConnector(conf.Charger.ConnectorId, cp.inputs, conf.Charger.Debounce)
	cp.delivery = delivery.NewService(t, cp.outbound, cp.inbound, delivery.Options{
		PublishTopic:   conf.Topics.Charger,
		SubscribeTopic: conf.Topics.System,
		QoS:            transport.QoS(conf.Transport.QoS),
		Retain:         conf.Transport.Retain,
		ReceiveTimeout: conf.Delivery.ReceiveTimeout,
		SendTimeout:    conf.Delivery.SendTimeout,
		ConnectTimeout: conf.Transport.ConnectTimeout,
		Pacing:         conf.Delivery.Pacing,
	})
	cp.actions = actions.InitializeCoreProfileActions(actions.Settings{
		Identity: actions.Identity{
			Vendor:          conf.Charger.Vendor,
			Model:           conf.Charger.Model,
			Serial:          conf.Charger.Serial,
			FirmwareVersion: conf.Charger.FirmwareVersion,
		},
		ConnectorId:           conf.Charger.ConnectorId,
		IdTag:                 conf.Charger.IdTag,
		HeartbeatInterval:     conf.Ocpp.HeartbeatInterval,
		InitialStatusDelay:    conf.Ocpp.InitialStatusDelay,
		InitialHeartbeatDelay: conf.Ocpp.InitialHeartbeatDelay,
		ResponseTimeout:       conf.Ocpp.ResponseTimeout,
	}, cp.charger, cp.states, cp.inputs, cp.inbound, actions.NewSender(cp.outbound, nil), clock)
	return cp
}

// NotificationChannel carries state changes to the command bridge. Records
// are only fed into it when enabled before Run.
func (this *ChargePoint) NotificationChannel() chan notifier.Notification {
	return this.notifications
}

func (this *ChargePoint) EnableStateFeed() {
	this.stateFeed = true
}

func (this *ChargePoint) StateTopic() string {
	return this.conf.Notifier.Prefix + ".state"
}

func (this *ChargePoint) Report() server.Report {
	state := this.charger.State()
	return server.Report{
		Serial:        this.conf.Charger.Serial,
		State:         state.String(),
		Display:       this.statusSource().Status().String(),
		TransactionId: this.charger.TransactionID(),
		Connected:     this.transport.IsConnected(),
		Outbound:      this.outbound.Len(),
		Inbound:       this.inbound.Len(),
		Inputs:        this.inputs.Len(),
	}
}

func (this *ChargePoint) statusSource() peripheral.StatusSource {
	return peripheral.StatusSource{
		Serial:  this.conf.Charger.Serial,
		Charger: this.charger,
		Clock:   this.clock,
		Address: peripheral.LocalAddress,
	}
}

type follower func(context.Context, *eventbus.Subscriber[charger.Record])

// Run probes the boot state, subscribes every consumer of the state broadcast
// and then starts all tasks. It returns once ctx ends and every task is done.
func (this *ChargePoint) Run(ctx context.Context) error {
	this.connector.Probe(this.charger, this.conf.Charger.CableConnected)

	followers := []follower{
		peripheral.NewLEDReactor(this.led, this.charger).Run,
		peripheral.NewRelayReactor(this.relay, this.charger).Run,
		peripheral.NewLockReactor(this.lock, this.charger).Run,
		peripheral.NewRejectedIndicator(this.rejected, 3, 0).Run,
	}
	if this.stateFeed {
		topic := this.StateTopic()
		followers = append(followers, func(ctx context.Context, sub *eventbus.Subscriber[charger.Record]) {
			notifier.StateFeed(ctx, sub, this.charger, topic, this.notifications)
		})
	}
	subs := make([]*eventbus.Subscriber[charger.Record], 0, len(followers))
	for range followers {
		sub, err := this.states.Subscribe()
		if err != nil {
			for _, s := range subs {
				s.Close()
			}
			return fmt.Errorf("subscribing to state changes: %w", err)
		}
		subs = append(subs, sub)
	}

	var wg sync.WaitGroup
	if err := this.actions.Start(ctx, &wg); err != nil {
		for _, s := range subs {
			s.Close()
		}
		return fmt.Errorf("starting protocol tasks: %w", err)
	}
	for i, run := range followers {
		wg.Add(1)
		go func(run follower, sub *eventbus.Subscriber[charger.Record]) {
			defer wg.Done()
			run(ctx, sub)
		}(run, subs[i])
	}
	for _, task := range []func(context.Context){
		this.handler.Run,
		this.delivery.Run,
		func(ctx context.Context) {
			peripheral.RunDisplay(ctx, this.display, this.statusSource(), 0)
		},
	} {
		wg.Add(1)
		go func(task func(context.Context)) {
			defer wg.Done()
			task(ctx)
		}(task)
	}

	log.WithField("serial", this.conf.Charger.Serial).Info("charge point running")
	wg.Wait()
	log.Info("charge point stopped")
	return nil
}
