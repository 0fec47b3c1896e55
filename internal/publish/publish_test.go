package publish

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/speakerid/voicecapture/internal/predict"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func newFakeToken(err error, complete bool) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	if complete {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

// fakeClient implements the parts of mqtt.Client the publisher uses
type fakeClient struct {
	mqtt.Client

	mu           sync.Mutex
	messages     []published
	token        *fakeToken
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return c.token
}

func (c *fakeClient) Disconnect(quiesce uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

func samplePrediction() Prediction {
	var res predict.Result
	res.Prediction.ModelUsed = "svm"
	res.Prediction.Predictions = []predict.Candidate{
		{SpeakerID: "alice", SpeakerName: "alice", Confidence: 0.9},
		{SpeakerID: "bob", SpeakerName: "bob", Confidence: 0.1},
	}
	return NewPrediction("abc-123", 2500*time.Millisecond, time.Unix(1700000000, 0), res)
}

func TestNewPredictionUsesTopCandidate(t *testing.T) {
	p := samplePrediction()
	if p.Speaker != "alice" || p.Confidence != 0.9 {
		t.Errorf("unexpected top candidate %s %.2f", p.Speaker, p.Confidence)
	}
	if p.DurationMS != 2500 || p.Model != "svm" || len(p.Predictions) != 2 {
		t.Errorf("unexpected prediction %+v", p)
	}
}

func TestMQTTPublish(t *testing.T) {
	client := &fakeClient{token: newFakeToken(nil, true)}
	m := newMQTT(client, "speakerid/{session_id}/prediction", zerolog.Nop())

	if err := m.Publish(context.Background(), samplePrediction()); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(client.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(client.messages))
	}
	msg := client.messages[0]
	if msg.topic != "speakerid/abc-123/prediction" {
		t.Errorf("unexpected topic %q", msg.topic)
	}
	if msg.qos != 1 {
		t.Errorf("expected qos 1, got %d", msg.qos)
	}

	var decoded map[string]any
	if err := json.Unmarshal(msg.payload, &decoded); err != nil {
		t.Fatalf("payload is not json: %v", err)
	}
	if decoded["speaker"] != "alice" || decoded["session_id"] != "abc-123" {
		t.Errorf("unexpected payload %s", msg.payload)
	}

	m.Close()
	if !client.disconnected {
		t.Error("expected Close to disconnect")
	}
}

func TestMQTTPublishError(t *testing.T) {
	client := &fakeClient{token: newFakeToken(errors.New("not connected"), true)}
	m := newMQTT(client, "t", zerolog.Nop())

	if err := m.Publish(context.Background(), samplePrediction()); err == nil {
		t.Fatal("expected publish error")
	}
}

func TestMQTTPublishHonoursContext(t *testing.T) {
	client := &fakeClient{token: newFakeToken(nil, false)}
	m := newMQTT(client, "t", zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := m.Publish(ctx, samplePrediction()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = Nop{}
	if err := p.Publish(context.Background(), samplePrediction()); err != nil {
		t.Fatalf("Nop.Publish: %v", err)
	}
	p.Close()
}
