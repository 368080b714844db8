package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

const (
	// QosAtMostOnce represents "QoS 0: At most once delivery".
	QosAtMostOnce byte = 0
	// QosAtLeastOnce represents "QoS 1: At least once delivery".
	QosAtLeastOnce byte = 1
	// QosExactlyOnce represents "QoS 2: Exactly once delivery".
	QosExactlyOnce byte = 2

	connectTimeout    = time.Second * 10
	disconnectQuiesce = 250 // milliseconds
)

type Config struct {
	// BrokerURL such as tcp://localhost:1883.
	BrokerURL string
	UserName  string
	Password  string
	ClientID  string
}

// Service contains the API exposed by the MQTT service.
type Service interface {
	// Close the service
	Close() error
	// Publish a JSON encoded message into a topic.
	Publish(ctx context.Context, msg interface{}, topic string, qos byte) error
	// Subscribe to a topic
	Subscribe(ctx context.Context, topic string, qos byte) (Subscription, error)
}

// Subscription for a single topic
type Subscription interface {
	// Unsubscribe.
	Close() error
	// NextMsg blocks until the next message has been received.
	NextMsg(ctx context.Context, result interface{}) error
}

// NewService instantiates a new MQTT service and connects it to the
// configured broker.
func NewService(config Config, log zerolog.Logger) (Service, error) {
	log = log.With().Str("component", "mqtt").Logger()
	opts := paho.NewClientOptions().
		AddBroker(config.BrokerURL).
		SetClientID(config.ClientID).
		SetUsername(config.UserName).
		SetPassword(config.Password).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Error().Err(err).Msg("MQTT connection lost")
		})
	cli := paho.NewClient(opts)
	token := cli.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, maskAny(ConnectTimeoutError)
	}
	if err := token.Error(); err != nil {
		return nil, maskAny(err)
	}
	log.Debug().Str("broker", config.BrokerURL).Msg("MQTT connected")
	return &mqttService{
		Config: config,
		log:    log,
		client: cli,
	}, nil
}

type mqttService struct {
	Config
	log    zerolog.Logger
	client paho.Client
}

// Close the service
func (s *mqttService) Close() error {
	s.client.Disconnect(disconnectQuiesce)
	return nil
}

// Publish a JSON encoded message into a topic.
func (s *mqttService) Publish(ctx context.Context, msg interface{}, topic string, qos byte) error {
	encodedMsg, err := json.Marshal(msg)
	if err != nil {
		return maskAny(err)
	}
	token := s.client.Publish(topic, qos, false, encodedMsg)
	done := make(chan struct{})
	go func() {
		token.Wait()
		close(done)
	}()
	select {
	case <-done:
		if err := token.Error(); err != nil {
			return maskAny(err)
		}
		return nil
	case <-ctx.Done():
		return maskAny(ctx.Err())
	}
}

// Subscribe to a topic
func (s *mqttService) Subscribe(ctx context.Context, topic string, qos byte) (Subscription, error) {
	result := &subscription{
		client: s.client,
		topic:  topic,
		queue:  make(chan []byte, 32),
	}
	token := s.client.Subscribe(topic, qos, result.messageHandler)
	if !token.WaitTimeout(connectTimeout) {
		return nil, maskAny(ConnectTimeoutError)
	}
	if err := token.Error(); err != nil {
		return nil, maskAny(err)
	}
	return result, nil
}

type subscription struct {
	client    paho.Client
	topic     string
	queue     chan []byte
	closeOnce sync.Once
}

// Put the raw message in the queue, dropping when full.
func (s *subscription) messageHandler(_ paho.Client, msg paho.Message) {
	select {
	case s.queue <- msg.Payload():
	default:
	}
}

// Unsubscribe.
func (s *subscription) Close() error {
	var result error
	s.closeOnce.Do(func() {
		token := s.client.Unsubscribe(s.topic)
		token.Wait()
		result = token.Error()
		close(s.queue)
	})
	if result != nil {
		return maskAny(result)
	}
	return nil
}

// NextMsg blocks until the next message has been received.
func (s *subscription) NextMsg(ctx context.Context, result interface{}) error {
	select {
	case encodedMsg, ok := <-s.queue:
		if !ok {
			return maskAny(SubscriptionClosedError)
		}
		if err := json.Unmarshal(encodedMsg, result); err != nil {
			return maskAny(err)
		}
		return nil
	case <-ctx.Done():
		return maskAny(ctx.Err())
	}
}
