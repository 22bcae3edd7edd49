package delivery

import (
	"context"
	"errors"
	"time"

	"charge_point/metrics"
	"charge_point/transport"

	log "github.com/sirupsen/logrus"
)

type Options struct {
	PublishTopic   string
	SubscribeTopic string
	QoS            transport.QoS
	Retain         bool
	ReceiveTimeout time.Duration
	SendTimeout    time.Duration
	ConnectTimeout time.Duration
	Pacing         time.Duration
}

func (o *Options) defaults() {
	if o.ReceiveTimeout <= 0 {
		o.ReceiveTimeout = 100 * time.Millisecond
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = 2 * time.Second
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.Pacing < 0 {
		o.Pacing = 50 * time.Millisecond
	}
}

// Service moves payloads between the two queues and the transport.
type Service struct {
	transport  transport.Transport
	outbound   *Queue
	inbound    *Queue
	opts       Options
	subscribed bool
	logger     *log.Entry
}

func NewService(t transport.Transport, outbound, inbound *Queue, opts Options) *Service {
	opts.defaults()
	return &Service{
		transport: t,
		outbound:  outbound,
		inbound:   inbound,
		opts:      opts,
		logger:    log.WithField("task", "delivery"),
	}
}

func (s *Service) Run(ctx context.Context) {
	s.logger.Info("task started")
	for {
		s.Step(ctx)
		select {
		case <-time.After(s.opts.Pacing):
		case <-ctx.Done():
			s.transport.Close()
			return
		}
	}
}

// Step runs one iteration: ensure the link, receive at most one payload, send
// at most one payload.
func (s *Service) Step(ctx context.Context) {
	if !s.ensureConnected(ctx) {
		return
	}
	s.receiveOne(ctx)
	s.sendOne(ctx)
}

func (s *Service) ensureConnected(ctx context.Context) bool {
	if s.transport.IsConnected() && s.subscribed {
		return true
	}
	if !s.transport.IsConnected() {
		s.subscribed = false
		cctx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
		err := s.transport.Connect(cctx)
		cancel()
		if err != nil {
			metrics.CountTransportError("connect")
			s.logger.Warnf("connect failed: %v", err)
			return false
		}
		s.logger.Info("transport connected")
	}
	if s.opts.SubscribeTopic != "" {
		cctx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
		err := s.transport.Subscribe(cctx, s.opts.SubscribeTopic)
		cancel()
		if err != nil {
			metrics.CountTransportError("subscribe")
			s.logger.Warnf("subscribe to %s failed: %v", s.opts.SubscribeTopic, err)
			return false
		}
		s.logger.Infof("subscribed to %s", s.opts.SubscribeTopic)
	}
	s.subscribed = true
	return true
}

func (s *Service) receiveOne(ctx context.Context) {
	rctx, cancel := context.WithTimeout(ctx, s.opts.ReceiveTimeout)
	msg, err := s.transport.Receive(rctx)
	cancel()
	switch {
	case err == nil:
		if err := s.inbound.TryPush(msg.Payload); err != nil {
			metrics.CountDropped(s.inbound.Name())
			s.logger.Warnf("receive queue: dropping message: %v", err)
		}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, transport.ErrNoMessage):
		// nothing arrived within the window
	default:
		metrics.CountTransportError("receive")
		s.logger.Warnf("failed to receive message: %v", err)
	}
}

func (s *Service) sendOne(ctx context.Context) {
	payload, ok := s.outbound.TryPop()
	if !ok {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, s.opts.SendTimeout)
	err := s.transport.Publish(sctx, s.opts.PublishTopic, payload, s.opts.QoS, s.opts.Retain)
	cancel()
	if err == nil {
		return
	}
	metrics.CountTransportError("publish")
	s.logger.Warnf("failed to send message: %v", err)
	if err := s.outbound.TryPush(payload); err != nil {
		metrics.CountDropped(s.outbound.Name())
		s.logger.Warnf("failed to requeue message for retry, dropping: %v", err)
		return
	}
	metrics.CountRequeued()
}
