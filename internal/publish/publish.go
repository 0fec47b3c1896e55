package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/speakerid/voicecapture/internal/predict"
)

// Prediction is the message published for every identified recording
type Prediction struct {
	SessionID   string              `json:"session_id"`
	Speaker     string              `json:"speaker"`
	Confidence  float64             `json:"confidence"`
	Predictions []predict.Candidate `json:"predictions"`
	Model       string              `json:"model"`
	DurationMS  int64               `json:"duration_ms"`
	RecordedAt  time.Time           `json:"recorded_at"`
}

// NewPrediction flattens a backend result for publishing
func NewPrediction(sessionID string, duration time.Duration, recordedAt time.Time, res predict.Result) Prediction {
	p := Prediction{
		SessionID:   sessionID,
		Predictions: res.Prediction.Predictions,
		Model:       res.Prediction.ModelUsed,
		DurationMS:  duration.Milliseconds(),
		RecordedAt:  recordedAt.UTC(),
	}
	if top, ok := res.Top(); ok {
		p.Speaker = top.SpeakerID
		p.Confidence = top.Confidence
	}
	return p
}

// Publisher fans prediction results out to other services
type Publisher interface {
	Publish(ctx context.Context, p Prediction) error
	Close()
}

// Nop discards everything. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Prediction) error { return nil }
func (Nop) Close()                                    {}

type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string // may contain {session_id}
	Logger   zerolog.Logger
}

// MQTT publishes predictions to a broker at QoS 1
type MQTT struct {
	client mqtt.Client
	topic  string
	log    zerolog.Logger
}

// NewMQTT connects to the broker. Reconnects are handled by paho.
func NewMQTT(opts Options) (*MQTT, error) {
	log := opts.Logger.With().Str("broker", opts.Broker).Logger()

	co := mqtt.NewClientOptions()
	co.AddBroker(opts.Broker)
	co.SetClientID(opts.ClientID)
	co.SetUsername(opts.Username)
	co.SetPassword(opts.Password)
	co.SetAutoReconnect(true)
	co.SetKeepAlive(60 * time.Second)
	co.SetPingTimeout(10 * time.Second)
	co.SetOnConnectHandler(func(mqtt.Client) {
		log.Info().Msg("MQTT connection established")
	})
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})

	client := mqtt.NewClient(co)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return newMQTT(client, opts.Topic, log), nil
}

func newMQTT(client mqtt.Client, topic string, log zerolog.Logger) *MQTT {
	return &MQTT{client: client, topic: topic, log: log}
}

func (m *MQTT) Publish(ctx context.Context, p Prediction) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal prediction: %w", err)
	}

	topic := formatTopic(m.topic, p.SessionID)
	token := m.client.Publish(topic, 1, false, payload)

	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish prediction: %w", err)
	}

	m.log.Debug().Str("topic", topic).Str("speaker", p.Speaker).Msg("Published prediction")
	return nil
}

func (m *MQTT) Close() {
	m.client.Disconnect(250)
	m.log.Debug().Msg("MQTT client disconnected")
}

func formatTopic(pattern, sessionID string) string {
	return strings.ReplaceAll(pattern, "{session_id}", sessionID)
}
