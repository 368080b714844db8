package mqtt

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/pinwheel-io/pinwheel/service"
)

// Publisher forwards accepted edge events to an MQTT topic per pin:
// <prefix>/pins/<pin>/edge.
type Publisher struct {
	log     zerolog.Logger
	service Service
	runtime service.Service
	prefix  string
	cb      func(service.EdgeEvent)
}

// NewPublisher subscribes to the runtime's edge events and publishes
// them to the given MQTT service.
func NewPublisher(log zerolog.Logger, svc Service, runtime service.Service, topicPrefix string) (*Publisher, error) {
	p := &Publisher{
		log:     log.With().Str("component", "mqtt-publisher").Logger(),
		service: svc,
		runtime: runtime,
		prefix:  topicPrefix,
	}
	p.cb = p.publish
	if err := runtime.Subscribe(p.cb); err != nil {
		return nil, maskAny(err)
	}
	return p, nil
}

func (p *Publisher) publish(evt service.EdgeEvent) {
	topic := fmt.Sprintf("%s/pins/%d/edge", p.prefix, evt.Pin)
	if err := p.service.Publish(context.Background(), evt, topic, QosAtMostOnce); err != nil {
		p.log.Warn().Err(err).Int("pin", evt.Pin).Msg("Failed to publish edge event")
	}
}

// Close stops forwarding edge events.
func (p *Publisher) Close() error {
	if err := p.runtime.Unsubscribe(p.cb); err != nil {
		return maskAny(err)
	}
	return nil
}
