package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"charge_point/common"
	"charge_point/notifier"

	"github.com/go-playground/validator/v10"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// Function handles one command action for a charge point id and answers on
// the response channel.
type Function func(string, []byte, chan common.Response)

type natsChargePointNotifier struct {
	notification  chan notifier.Notification // state changes published to NATS
	connection    *nats.Conn
	handlers      map[string]Function
	timeout       time.Duration // how long a command may take to answer
	url           string
	subject       string
	chargePointId string
	validate      *validator.Validate
}

func (ncp *natsChargePointNotifier) SetTimeout(timeout time.Duration) {
	ncp.timeout = timeout
}

func (ncp natsChargePointNotifier) Timeout() time.Duration {
	return ncp.timeout
}

func (ncp *natsChargePointNotifier) AddHandler(action string, fn Function) {
	ncp.handlers[action] = fn
}

func (ncp *natsChargePointNotifier) SetChannel(notification chan notifier.Notification) {
	ncp.notification = notification
}

func (ncp *natsChargePointNotifier) notificationsToNats(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-ncp.notification:
			bt, err := json.Marshal(n.Data)
			if err != nil {
				log.Error(err)
				continue
			}
			if err := ncp.connection.Publish(n.Topic, bt); err != nil {
				log.Warnf("publishing notification on %s: %v", n.Topic, err)
			}
		}
	}
}

func marshalResponse(response common.Response) []byte {
	bt, err := json.Marshal(response)
	if err != nil {
		bt, _ = json.Marshal(common.ErrorResponse("response.not.encodable", err.Error()))
	}
	return bt
}

// handle answers one request/reply message body.
func (ncp *natsChargePointNotifier) handle(data []byte) []byte {
	log.Debugf("RequestHandler, %s", data)

	var command common.Command
	if err := json.Unmarshal(data, &command); err != nil || ncp.validate.Struct(&command) != nil {
		return marshalResponse(common.ErrorResponse("command.format.not.valid", "The command is not valid"))
	}
	if command.ChargePointId != ncp.chargePointId {
		return marshalResponse(common.ErrorResponse("command.charge.point.not.found",
			fmt.Sprintf("Unknown charge point \"%v\"", command.ChargePointId)))
	}
	fn, exists := ncp.handlers[command.Action]
	if !exists {
		return marshalResponse(common.ErrorResponse("command.action.not.found",
			fmt.Sprintf("Action \"%v\" does not exist", command.Action)))
	}

	responseChannel := make(chan common.Response, 1)
	payload, _ := json.Marshal(command.Payload)
	go fn(command.ChargePointId, payload, responseChannel)

	select {
	case response := <-responseChannel:
		bt := marshalResponse(response)
		log.Debugf("RequestHandler => Response, %s", bt)
		return bt
	case <-time.After(ncp.timeout):
		return marshalResponse(common.ErrorResponse("request.timeout", "The request timed out"))
	}
}

// request/reply handler
func (ncp *natsChargePointNotifier) requestHandler() error {
	_, err := ncp.connection.Subscribe(ncp.subject, func(m *nats.Msg) {
		if err := m.Respond(ncp.handle(m.Data)); err != nil {
			log.Warnf("responding on %s: %v", m.Reply, err)
		}
	})
	return err
}

func (ncp *natsChargePointNotifier) Start(ctx context.Context) error {
	nc, err := nats.Connect(ncp.url, nats.Name(ncp.chargePointId))
	if err != nil {
		return fmt.Errorf("nats connect %s: %w", ncp.url, err)
	}
	ncp.connection = nc
	if err := ncp.requestHandler(); err != nil {
		nc.Close()
		return fmt.Errorf("nats subscribe %s: %w", ncp.subject, err)
	}
	if ncp.notification != nil {
		go ncp.notificationsToNats(ctx)
	}
	log.WithField("subject", ncp.subject).Info("command bridge started")
	return nil
}

func (ncp *natsChargePointNotifier) Stop() {
	if ncp.connection != nil {
		ncp.connection.Close()
		log.Info("NatsStopped")
	}
}

func New(url, subject, chargePointId string) *natsChargePointNotifier {
	if url == "" {
		url = nats.DefaultURL
	}
	return &natsChargePointNotifier{
		notification:  nil,
		connection:    nil,
		handlers:      make(map[string]Function),
		timeout:       30 * time.Second,
		url:           url,
		subject:       subject,
		chargePointId: chargePointId,
		validate:      validator.New(),
	}
}
