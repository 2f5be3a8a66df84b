package ocrsweep

import (
	"encoding/json"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/ksuid"
	"github.com/streadway/amqp"
)

const confirmTimeout = 10 * time.Second

// MethodNotice announces a written method output file
type MethodNotice struct {
	RunID        string    `json:"run_id"`
	Method       string    `json:"method"`
	Lang         string    `json:"lang"`
	Preprocessor string    `json:"preprocessor"`
	PageSegMode  int       `json:"psm"`
	File         string    `json:"file"`
	Pages        int       `json:"pages"`
	FailedPages  []int     `json:"failed_pages"`
	FinishedAt   time.Time `json:"finished_at"`
}

func newMethodNotice(runID string, result MethodResult) MethodNotice {
	failed := result.FailedPages
	if failed == nil {
		failed = []int{}
	}
	return MethodNotice{
		RunID:        runID,
		Method:       result.Method.Name,
		Lang:         result.Method.Lang,
		Preprocessor: result.Method.Preprocessor.String(),
		PageSegMode:  result.Method.PageSegMode,
		File:         result.OutputFile,
		Pages:        result.Pages,
		FailedPages:  failed,
		FinishedAt:   result.FinishedAt,
	}
}

type ResultPublisher interface {
	Publish(notice MethodNotice) error
	Close() error
}

type AmqpResultPublisher struct {
	rabbitConfig RabbitConfig
	connection   *amqp.Connection
	channel      *amqp.Channel
	confirms     chan amqp.Confirmation
}

func NewAmqpResultPublisher(rc RabbitConfig) (*AmqpResultPublisher, error) {
	var err error
	p := &AmqpResultPublisher{rabbitConfig: rc}

	logURI := rc.AmqpURI
	if parsed, perr := url.Parse(rc.AmqpURI); perr == nil {
		logURI = StripPasswordFromUrl(parsed)
	}
	log.Info().Str("component", "PUBLISHER").Str("host", logURI).Msg("dialing rabbitMq")

	p.connection, err = amqp.Dial(rc.AmqpURI)
	if err != nil {
		return nil, errors.Wrap(err, "could not connect to rabbitMq")
	}

	p.channel, err = p.connection.Channel()
	if err != nil {
		p.connection.Close()
		return nil, errors.Wrap(err, "could not open channel")
	}

	if err := p.channel.ExchangeDeclare(
		rc.Exchange,     // name
		rc.ExchangeType, // type
		true,            // durable
		false,           // auto-deleted
		false,           // internal
		false,           // noWait
		nil,             // arguments
	); err != nil {
		p.connection.Close()
		return nil, errors.Wrap(err, "could not declare exchange")
	}

	// Reliable publisher confirms require confirm.select support from the
	// connection.
	if rc.Reliable {
		if err := p.channel.Confirm(false); err != nil {
			p.connection.Close()
			return nil, errors.Wrap(err, "channel could not be put into confirm mode")
		}
		p.confirms = p.channel.NotifyPublish(make(chan amqp.Confirmation, 1))
	}

	return p, nil
}

func newNoticePublishing(notice MethodNotice) (amqp.Publishing, error) {
	body, err := json.Marshal(notice)
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		Headers:       amqp.Table{},
		ContentType:   "application/json",
		Body:          body,
		DeliveryMode:  amqp.Persistent,
		MessageId:     ksuid.New().String(),
		CorrelationId: notice.RunID,
		Timestamp:     notice.FinishedAt,
	}, nil
}

func (p *AmqpResultPublisher) Publish(notice MethodNotice) error {
	publishing, err := newNoticePublishing(notice)
	if err != nil {
		return err
	}

	if err = p.channel.Publish(
		p.rabbitConfig.Exchange, // publish to an exchange
		p.rabbitConfig.RoutingKey,
		false, // mandatory
		false, // immediate
		publishing,
	); err != nil {
		return errors.Wrapf(err, "could not publish notice for %s", notice.Method)
	}

	if p.confirms != nil {
		return confirmDelivery(p.confirms, confirmTimeout)
	}
	return nil
}

func (p *AmqpResultPublisher) Close() error {
	if p.connection == nil {
		return nil
	}
	return p.connection.Close()
}

func confirmDelivery(confirms <-chan amqp.Confirmation, timeout time.Duration) error {
	select {
	case confirmed, ok := <-confirms:
		if !ok {
			return errors.New("channel closed before delivery was confirmed")
		}
		if !confirmed.Ack {
			return errors.Errorf("failed to confirm delivery: %v", confirmed.DeliveryTag)
		}
		log.Debug().Str("component", "PUBLISHER").Uint64("tag", confirmed.DeliveryTag).Msg("confirmed delivery")
		return nil
	case <-time.After(timeout):
		return errors.Errorf("no delivery confirmation within %v", timeout)
	}
}
