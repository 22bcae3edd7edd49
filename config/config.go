package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/ilyakaznacheev/cleanenv"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	Charger struct {
		Model           string `yaml:"model" env:"CP_MODEL" env-default:"ESP32-C6" validate:"required,max=20"`
		Vendor          string `yaml:"vendor" env:"CP_VENDOR" env-default:"GA Make" validate:"required,max=20"`
		Serial          string `yaml:"serial" env:"CP_SERIAL" env-default:"esp32c6-charger-001" validate:"required,max=25"`
		FirmwareVersion string `yaml:"firmware_version" env:"CP_FIRMWARE" env-default:"0.1.0" validate:"max=50"`
		ConnectorId     int    `yaml:"connector_id" env:"CP_CONNECTOR_ID" env-default:"1" validate:"gt=0"`
		IdTag           string `yaml:"id_tag" env:"CP_ID_TAG" env-default:"123456" validate:"required,max=20"`
		// CableConnected is the cable level sensed at boot.
		CableConnected bool          `yaml:"cable_connected" env:"CP_CABLE_CONNECTED" env-default:"false"`
		Debounce       time.Duration `yaml:"debounce" env-default:"100ms" validate:"gte=0"`
	} `yaml:"charger"`
	Ocpp struct {
		HeartbeatInterval     time.Duration `yaml:"heartbeat_interval" env:"OCPP_HEARTBEAT_INTERVAL" env-default:"900s" validate:"gt=0"`
		InitialStatusDelay    time.Duration `yaml:"initial_status_delay" env-default:"3s" validate:"gte=0"`
		InitialHeartbeatDelay time.Duration `yaml:"initial_heartbeat_delay" env-default:"5s" validate:"gte=0"`
		ResponseTimeout       time.Duration `yaml:"response_timeout" env-default:"1s" validate:"gt=0"`
	} `yaml:"ocpp"`
	Fault struct {
		RecoveryDelay time.Duration `yaml:"recovery_delay" env:"FAULT_RECOVERY_DELAY" env-default:"5s" validate:"gte=0"`
	} `yaml:"fault"`
	Bus struct {
		InputCapacity  int           `yaml:"input_capacity" env-default:"10" validate:"gt=0"`
		BroadcastDepth int           `yaml:"broadcast_depth" env-default:"8" validate:"gt=0"`
		MaxSubscribers int           `yaml:"max_subscribers" env-default:"8" validate:"gt=0"`
		Pacing         time.Duration `yaml:"pacing" env-default:"100ms" validate:"gte=0"`
	} `yaml:"bus"`
	Delivery struct {
		QueueCapacity  int           `yaml:"queue_capacity" env-default:"5" validate:"gt=0"`
		MaxPayload     int           `yaml:"max_payload" env-default:"2048" validate:"gt=0"`
		ReceiveTimeout time.Duration `yaml:"receive_timeout" env-default:"100ms" validate:"gt=0"`
		SendTimeout    time.Duration `yaml:"send_timeout" env-default:"2s" validate:"gt=0"`
		Pacing         time.Duration `yaml:"pacing" env-default:"50ms" validate:"gte=0"`
	} `yaml:"delivery"`
	Transport struct {
		Kind           string        `yaml:"kind" env:"TRANSPORT" env-default:"mqtt" validate:"oneof=mqtt nats ws"`
		Broker         string        `yaml:"broker" env:"MQTT_BROKER" env-default:"broker.hivemq.com:1883"`
		Username       string        `yaml:"username" env:"MQTT_USERNAME"`
		Password       string        `yaml:"password" env:"MQTT_PASSWORD"`
		URL            string        `yaml:"url" env:"TRANSPORT_URL"`
		ClientID       string        `yaml:"client_id" env:"CLIENT_ID"`
		QoS            uint8         `yaml:"qos" env-default:"1" validate:"lte=2"`
		Retain         bool          `yaml:"retain" env-default:"false"`
		ConnectTimeout time.Duration `yaml:"connect_timeout" env-default:"10s" validate:"gt=0"`
	} `yaml:"transport"`
	Topics struct {
		Charger string `yaml:"charger" env:"TOPIC_CHARGER"`
		System  string `yaml:"system" env:"TOPIC_SYSTEM"`
	} `yaml:"topics"`
	Status struct {
		Enabled bool   `yaml:"enabled" env:"STATUS_ENABLED" env-default:"true"`
		Listen  string `yaml:"listen" env:"STATUS_LISTEN" env-default:"127.0.0.1:8080" validate:"required_if=Enabled true"`
	} `yaml:"status"`
	Notifier struct {
		Enabled bool          `yaml:"enabled" env:"NOTIFIER_ENABLED" env-default:"false"`
		URL     string        `yaml:"url" env:"NATS_URL" env-default:"nats://127.0.0.1:4222"`
		Subject string        `yaml:"subject" env-default:"request" validate:"required_if=Enabled true"`
		Prefix  string        `yaml:"prefix" env-default:"charger"`
		Timeout time.Duration `yaml:"timeout" env-default:"30s" validate:"gt=0"`
	} `yaml:"notifier"`
	Log struct {
		Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info" validate:"oneof=trace debug info warn warning error"`
	} `yaml:"log"`
}

// Load reads the yaml file at path, or only the environment when path is
// empty, then fills derived defaults and validates the result.
func Load(path string) (*Config, error) {
	conf := &Config{}
	var err error
	if path == "" {
		err = cleanenv.ReadEnv(conf)
	} else {
		err = cleanenv.ReadConfig(path, conf)
	}
	if err != nil {
		desc, _ := cleanenv.GetDescription(conf, nil)
		log.Debug(desc)
		return nil, fmt.Errorf("reading config: %w", err)
	}
	conf.fill()
	if err := validator.New().Struct(conf); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return conf, nil
}

func (c *Config) fill() {
	if c.Transport.ClientID == "" {
		c.Transport.ClientID = "cp-" + uuid.NewString()
	}
	if c.Topics.Charger == "" {
		c.Topics.Charger = "/charger/" + c.Charger.Serial
	}
	if c.Topics.System == "" {
		c.Topics.System = "/system/" + c.Charger.Serial
	}
}

func (c *Config) LogLevel() log.Level {
	level, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return log.InfoLevel
	}
	return level
}
