package rabbitmq

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"ecowing/models"
	"ecowing/taxonomy"

	"github.com/apex/log"
	"github.com/streadway/amqp"
)

// ReportCreated is the event published after a report is stored.
type ReportCreated struct {
	ID           string            `json:"id"`
	LocationName string            `json:"locationName"`
	Lat          *float64          `json:"lat"`
	Lng          *float64          `json:"lng"`
	Severity     taxonomy.Severity `json:"severity"`
	Category     string            `json:"category"`
	ItemCount    int               `json:"itemCount"`
	MediaType    string            `json:"mediaType"`
	Timestamp    time.Time         `json:"timestamp"`
}

func NewReportCreated(r *models.Report) ReportCreated {
	return ReportCreated{
		ID:           r.ID,
		LocationName: r.LocationName,
		Lat:          r.Lat,
		Lng:          r.Lng,
		Severity:     r.Severity,
		Category:     r.Category,
		ItemCount:    r.ItemCount(),
		MediaType:    r.MediaType,
		Timestamp:    r.Timestamp,
	}
}

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

const (
	appID         = "ecowing"
	dialTimeout   = 30 * time.Second
	exchangeKind  = amqp.ExchangeDirect
	contentTypeJS = "application/json"
)

// Publisher sends report events to a durable direct exchange. Publishing is
// serialized because an amqp channel must not be shared between goroutines.
type Publisher struct {
	mu         sync.Mutex
	conn       *amqp.Connection
	channel    channel
	exchange   string
	routingKey string
}

func NewPublisher(amqpURL, exchangeName, routingKey string) (*Publisher, error) {
	conn, err := amqp.DialConfig(amqpURL, amqp.Config{Dial: amqp.DefaultDial(dialTimeout)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	// durable, not auto-deleted, not internal, wait for the broker
	if err := ch.ExchangeDeclare(exchangeName, exchangeKind, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchangeName, err)
	}

	log.WithFields(log.Fields{"exchange": exchangeName, "routing_key": routingKey}).Info("RabbitMQ publisher ready")
	return &Publisher{
		conn:       conn,
		channel:    ch,
		exchange:   exchangeName,
		routingKey: routingKey,
	}, nil
}

// Publish marshals message to JSON and sends it as a persistent message.
// ReportCreated events also carry the report id as the message id.
func (p *Publisher) Publish(message interface{}) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message to JSON: %w", err)
	}

	msg := amqp.Publishing{
		AppId:        appID,
		ContentType:  contentTypeJS,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         p.routingKey,
		Body:         body,
	}
	if ev, ok := message.(ReportCreated); ok {
		msg.MessageId = ev.ID
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel == nil {
		return fmt.Errorf("publisher is closed")
	}
	// not mandatory, not immediate
	if err := p.channel.Publish(p.exchange, p.routingKey, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.exchange, err)
	}
	return nil
}

// Close shuts the channel and then the connection. Publish fails afterwards.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			log.Warnf("Failed to close channel: %v", err)
			errs = append(errs, err)
		}
		p.channel = nil
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			log.Warnf("Failed to close connection: %v", err)
			errs = append(errs, err)
		}
		p.conn = nil
	}
	return errors.Join(errs...)
}
