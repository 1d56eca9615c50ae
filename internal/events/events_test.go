package events

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
)

func TestPublisher_SendsJSONKeyedByCacheKey(t *testing.T) {
	mp := mocks.NewAsyncProducer(t, nil)
	mp.ExpectInputWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "resolve" {
			return fmt.Errorf("topic %q", msg.Topic)
		}
		k, err := msg.Key.Encode()
		if err != nil || string(k) != "poi:combined:abc" {
			return fmt.Errorf("key %q err %v", k, err)
		}
		v, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var ev ResolveEvent
		if err := json.Unmarshal(v, &ev); err != nil {
			return err
		}
		if ev.Outcome != "fill" || ev.Fetched != 2 {
			return fmt.Errorf("unexpected event %+v", ev)
		}
		return nil
	})

	p := NewPublisherWithProducer(mp, "resolve", 4, nil)
	p.Publish(context.Background(), ResolveEvent{Key: "poi:combined:abc", Outcome: "fill", Fetched: 2, TS: time.Now()})
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestPublisher_PublishAfterCloseIsNoop(t *testing.T) {
	mp := mocks.NewAsyncProducer(t, nil)
	p := NewPublisherWithProducer(mp, "resolve", 1, nil)
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	p.Publish(context.Background(), ResolveEvent{Key: "k"})
	if err := p.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestNop(t *testing.T) {
	var s Sink = Nop{}
	s.Publish(context.Background(), ResolveEvent{Key: "k"})
}
