package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"landsim/internal/config"
)

type recordingPublisher struct {
	topics       []string
	payloads     [][]byte
	err          error
	disconnected bool
}

func (r *recordingPublisher) Publish(topic string, payload []byte) error {
	if r.err != nil {
		return r.err
	}
	r.topics = append(r.topics, topic)
	r.payloads = append(r.payloads, payload)
	return nil
}

func (r *recordingPublisher) Disconnect() { r.disconnected = true }

func TestMQTTPublishesJSON(t *testing.T) {
	rec := &recordingPublisher{}
	n := &MQTT{pub: rec, topic: "landsim/years"}
	msg := YearComplete{
		RunID:      "run-1",
		Year:       2015,
		Households: 3,
		Persons:    7,
		Issues:     map[string]int64{"stale_event": 2},
		At:         time.Date(2015, 12, 31, 0, 0, 0, 0, time.UTC),
	}
	if err := n.YearComplete(context.Background(), msg); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(rec.topics) != 1 || rec.topics[0] != "landsim/years" {
		t.Fatalf("topics = %v", rec.topics)
	}
	var got YearComplete
	if err := json.Unmarshal(rec.payloads[0], &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.RunID != "run-1" || got.Year != 2015 || got.Persons != 7 || got.Issues["stale_event"] != 2 {
		t.Fatalf("payload = %+v", got)
	}
	if err := n.Close(); err != nil || !rec.disconnected {
		t.Fatalf("close: %v disconnected=%v", err, rec.disconnected)
	}
}

func TestMQTTPublishError(t *testing.T) {
	boom := errors.New("broker down")
	n := &MQTT{pub: &recordingPublisher{err: boom}, topic: "t"}
	if err := n.YearComplete(context.Background(), YearComplete{}); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestOpen(t *testing.T) {
	n, err := Open(config.NotifyConfig{Kind: "none"})
	if err != nil {
		t.Fatal(err)
	}
	if err := n.YearComplete(context.Background(), YearComplete{Year: 1}); err != nil {
		t.Fatalf("nop: %v", err)
	}
	if _, err := Open(config.NotifyConfig{Kind: "pigeon"}); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}
