// Mqttsink republishes every accepted delivery as JSON on
// <topic>/<source>, for home automation that wants the live values.
package mqttsink

import (
	"fmt"
	"strings"
	"time"

	"github.com/NotCoffee418/homedash/pkg/faults"
	"github.com/NotCoffee418/homedash/pkg/logging"
	"github.com/NotCoffee418/homedash/pkg/types"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	DefaultTopic   = "homedash"
	publishTimeout = 2 * time.Second
)

// Publisher is the part of mqtt.Client the sink uses.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type Sink struct {
	client     Publisher
	topic      string
	disconnect func()
	log        *logrus.Entry
}

// Connect dials broker and returns a sink publishing under topic.
func Connect(broker, topic string) (*Sink, error) {
	log := logging.For("mqttsink")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID("homedash-" + uuid.NewString()[:8])
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		log.Warnf("MQTT connection lost: %v", err)
	}
	opts.OnConnect = func(c mqtt.Client) {
		log.Infof("Connected to MQTT broker %s", broker)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, faults.Wrapf(faults.Network, token.Error(), "connect "+broker)
	}

	s := New(client, topic)
	s.disconnect = func() { client.Disconnect(250) }
	return s, nil
}

func New(client Publisher, topic string) *Sink {
	topic = strings.TrimRight(topic, "/")
	if topic == "" {
		topic = DefaultTopic
	}
	return &Sink{
		client: client,
		topic:  topic,
		log:    logging.For("mqttsink"),
	}
}

// Topic is where deliveries for source are published.
func (s *Sink) Topic(source types.Source) string {
	return fmt.Sprintf("%s/%s", s.topic, source)
}

// Publish sends d with QoS 0, not retained.
func (s *Sink) Publish(d types.Delivery) error {
	token := s.client.Publish(s.Topic(d.Source), 0, false, d.ToJsonBytes())
	if !token.WaitTimeout(publishTimeout) {
		return faults.New(faults.Timeout, "mqtt publish timed out")
	}
	if err := token.Error(); err != nil {
		return faults.Wrap(faults.Network, err)
	}
	return nil
}

func (s *Sink) Close() {
	if s.disconnect != nil {
		s.disconnect()
	}
}
