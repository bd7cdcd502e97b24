package rabbitmq

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"ecowing/models"
	"ecowing/taxonomy"

	"github.com/streadway/amqp"
)

type recordingChannel struct {
	exchange, key string
	msg           amqp.Publishing
	err           error
	closed        bool
}

func (c *recordingChannel) Publish(exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.exchange, c.key, c.msg = exchange, key, msg
	return c.err
}

func (c *recordingChannel) Close() error {
	c.closed = true
	return nil
}

func TestPublishReportCreated(t *testing.T) {
	ch := &recordingChannel{}
	p := &Publisher{channel: ch, exchange: "ecowing", routingKey: "report.created"}

	lat, lng := 22.2, 114.2
	ts := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	r := models.Report{
		ID: "abc", LocationName: "Shek O", Lat: &lat, Lng: &lng,
		Severity: taxonomy.High, Category: "Plastic", MediaType: "image",
		WasteDistribution: map[string]int{"Plastic": 4, "Metal": 1}, Timestamp: ts,
	}

	if err := p.Publish(NewReportCreated(&r)); err != nil {
		t.Fatalf("Publish() unexpected error: %v", err)
	}
	if ch.exchange != "ecowing" || ch.key != "report.created" {
		t.Errorf("published to %s/%s", ch.exchange, ch.key)
	}
	if ch.msg.ContentType != "application/json" || ch.msg.DeliveryMode != amqp.Persistent {
		t.Errorf("unexpected publishing headers: %+v", ch.msg)
	}

	var got ReportCreated
	if err := json.Unmarshal(ch.msg.Body, &got); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if got.ID != "abc" || got.ItemCount != 5 || got.Severity != taxonomy.High || *got.Lat != 22.2 || !got.Timestamp.Equal(ts) {
		t.Errorf("unexpected event: %+v", got)
	}

	if ch.msg.MessageId != "abc" || ch.msg.Type != "report.created" {
		t.Errorf("unexpected message id/type: %q %q", ch.msg.MessageId, ch.msg.Type)
	}

	if err := p.Close(); err != nil || !ch.closed {
		t.Errorf("Close() = %v, closed = %v", err, ch.closed)
	}
	if err := p.Publish(NewReportCreated(&r)); err == nil {
		t.Errorf("expected error publishing on a closed publisher")
	}
}

func TestPublishError(t *testing.T) {
	p := &Publisher{channel: &recordingChannel{err: errors.New("channel closed")}}
	if err := p.Publish(map[string]string{"a": "b"}); err == nil {
		t.Errorf("expected error")
	}
	if err := p.Publish(func() {}); err == nil {
		t.Errorf("expected marshal error")
	}
}
