package kafka

import (
	"context"
	"strconv"

	"github.com/segmentio/kafka-go"

	"github.com/Domenick1991/bookingsaga/internal/domain"
	"github.com/Domenick1991/bookingsaga/pkg/logger"
)

type HandlerFunc func(ctx context.Context, msg kafka.Message) error

// Publisher is the producer surface the ack policy needs for redelivery and
// dead-lettering.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte, headers map[string]string) error
}

type AckPolicyConfig struct {
	RetryTopic      string
	DeadLetterTopic string
	MaxRedeliveries int
}

// AckPolicy turns handler results into ack decisions.
//
// Business errors acknowledge immediately so a poison message never loops;
// the optional OnBusinessError hook propagates the failure to the saga.
// Transient errors republish the message to the retry topic with an
// incremented redelivery counter, up to MaxRedeliveries, after which the
// message is acknowledged into the dead-letter topic.
type AckPolicy struct {
	producer        Publisher
	cfg             AckPolicyConfig
	onBusinessError func(ctx context.Context, msg kafka.Message, err error)
	log             logger.Logger
}

func NewAckPolicy(producer Publisher, cfg AckPolicyConfig, log logger.Logger) *AckPolicy {
	return &AckPolicy{producer: producer, cfg: cfg, log: log}
}

// OnBusinessError registers the callback invoked when a handler reports a
// business failure. The message is still acknowledged.
func (p *AckPolicy) OnBusinessError(fn func(ctx context.Context, msg kafka.Message, err error)) {
	p.onBusinessError = fn
}

// Wrap returns a handler that never asks for a blind redelivery: every
// outcome is an explicit ack, a retry-topic republish, or a dead-letter.
func (p *AckPolicy) Wrap(handler HandlerFunc) HandlerFunc {
	return func(ctx context.Context, msg kafka.Message) error {
		err := handler(ctx, msg)
		if err == nil {
			return nil
		}

		eventID := HeaderValue(msg, domain.HeaderEventID)

		if domain.ClassOf(err) == domain.ErrorClassBusiness {
			p.log.Warn("business failure, acking message", "event_id", eventID, "error", err)
			if p.onBusinessError != nil {
				p.onBusinessError(ctx, msg, err)
			}
			return nil
		}

		redeliveries := RedeliveryCount(msg)
		if redeliveries >= p.cfg.MaxRedeliveries {
			p.log.Error("redelivery budget exhausted, dead-lettering message",
				"event_id", eventID, "redeliveries", redeliveries, "error", err)
			if dlqErr := p.republish(ctx, p.cfg.DeadLetterTopic, msg, redeliveries, err); dlqErr != nil {
				// The original message must not be lost: leave it
				// unacknowledged so it comes back after restart.
				return dlqErr
			}
			return nil
		}

		p.log.Warn("transient failure, scheduling redelivery",
			"event_id", eventID, "redeliveries", redeliveries, "error", err)
		if pubErr := p.republish(ctx, p.cfg.RetryTopic, msg, redeliveries+1, err); pubErr != nil {
			return pubErr
		}
		return nil
	}
}

func (p *AckPolicy) republish(ctx context.Context, topic string, msg kafka.Message, redeliveries int, cause error) error {
	headers := make(map[string]string, len(msg.Headers)+1)
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	headers[domain.HeaderRetryCount] = strconv.Itoa(redeliveries)
	headers["x-last-error"] = cause.Error()
	return p.producer.Publish(ctx, topic, string(msg.Key), msg.Value, headers)
}

// RedeliveryCount reads the redelivery counter from the message headers; a
// first delivery has no header and counts as zero.
func RedeliveryCount(msg kafka.Message) int {
	v := HeaderValue(msg, domain.HeaderRetryCount)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func HeaderValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
