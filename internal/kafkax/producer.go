package kafkax

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Producer writes to any topic; callers pass the topic per message so one
// producer serves the whole order lifecycle. Publish is safe at any point of
// the lifecycle: after Close (or context cancellation) messages are dropped
// with a warning instead of panicking.
type Producer struct {
	w     *kafka.Writer
	inbox chan kafka.Message
	quit  chan struct{}
	done  chan struct{}
	once  sync.Once
	log   logrus.FieldLogger
}

func NewProducer(brokers []string, buf int, log logrus.FieldLogger) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
		inbox: make(chan kafka.Message, buf),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
		log:   log,
	}
}

func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.done)
		defer p.w.Close()
		for {
			select {
			case <-p.quit:
				p.drain()
				return
			case <-ctx.Done():
				p.drain()
				return
			case m := <-p.inbox:
				p.write(m)
			}
		}
	}()
}

// drain flushes whatever is already buffered, then stops. New publishes are
// rejected by then, so this terminates.
func (p *Producer) drain() {
	for {
		select {
		case m := <-p.inbox:
			p.write(m)
		default:
			return
		}
	}
}

func (p *Producer) write(m kafka.Message) {
	if err := p.w.WriteMessages(context.Background(), m); err != nil {
		p.log.WithError(err).WithField("topic", m.Topic).Error("kafka write failed")
	}
}

func (p *Producer) Publish(topic string, key, value []byte, headers ...kafka.Header) {
	m := kafka.Message{
		Topic:   topic,
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	}
	select {
	case <-p.quit:
		p.log.WithField("topic", topic).Warn("producer closed, dropping message")
		return
	default:
	}
	select {
	case <-p.quit:
		p.log.WithField("topic", topic).Warn("producer closed, dropping message")
	case p.inbox <- m:
	}
}

// Close tells the loop to flush buffered messages and exit. Idempotent.
func (p *Producer) Close() { p.once.Do(func() { close(p.quit) }) }

// WaitClosed blocks until the flush is done.
func (p *Producer) WaitClosed() { <-p.done }
