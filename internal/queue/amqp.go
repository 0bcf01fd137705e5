package queue

import (
	"encoding/json"
	"log"

	"github.com/streadway/amqp"
)

type dispatchMessage struct {
	CampaignID int `json:"campaign_id"`
}

const maxDispatchRetries = 3

// retryAttempt reads the redelivery counter we stamp on republished
// messages; a message without the header is a first attempt.
func retryAttempt(headers amqp.Table) int32 {
	if v, ok := headers["x-retry-count"].(int32); ok {
		return v
	}
	return 0
}

// AMQPQueue moves dispatch triggers through RabbitMQ so cmd/worker can run
// delivery cycles in a separate process from the API server.
type AMQPQueue struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func DialAMQP(url string) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &AMQPQueue{conn: conn, ch: ch}, nil
}

func (q *AMQPQueue) Close() {
	q.ch.Close()
	q.conn.Close()
}

func (q *AMQPQueue) declare(topic string) (amqp.Queue, error) {
	return q.ch.QueueDeclare(
		topic,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
}

func (q *AMQPQueue) Publish(topic string, campaignID int) error {
	body, err := json.Marshal(dispatchMessage{CampaignID: campaignID})
	if err != nil {
		return err
	}
	return q.publish(topic, body, nil)
}

func (q *AMQPQueue) publish(topic string, body []byte, headers amqp.Table) error {
	declared, err := q.declare(topic)
	if err != nil {
		return err
	}
	return q.ch.Publish(
		"",
		declared.Name,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Headers:     headers,
			Body:        body,
		},
	)
}

func (q *AMQPQueue) Subscribe(topic string, handler func(campaignID int) error) error {
	declared, err := q.declare(topic)
	if err != nil {
		return err
	}
	msgs, err := q.ch.Consume(
		declared.Name,
		"",
		false, // autoAck off for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	go func() {
		for d := range msgs {
			var msg dispatchMessage
			if err := json.Unmarshal(d.Body, &msg); err != nil {
				log.Println("invalid dispatch message:", err)
				d.Ack(false)
				continue
			}

			// Failed messages are republished with an incremented counter
			// rather than Nack-requeued: the broker does not carry a retry
			// count across requeues, so Nack would loop forever.
			if err := handler(msg.CampaignID); err != nil {
				attempt := retryAttempt(d.Headers)
				if attempt < maxDispatchRetries {
					headers := amqp.Table{"x-retry-count": attempt + 1}
					if rerr := q.publish(topic, d.Body, headers); rerr != nil {
						log.Println("failed to requeue dispatch for campaign", msg.CampaignID, ":", rerr)
						d.Nack(false, true)
						continue
					}
					log.Printf("dispatch failed (attempt %d/%d) campaign=%d: %v\n", attempt+1, maxDispatchRetries, msg.CampaignID, err)
				} else {
					log.Printf("dispatch permanently failed after %d attempts, campaign=%d: %v\n", maxDispatchRetries, msg.CampaignID, err)
				}
			}
			d.Ack(false)
		}
	}()
	return nil
}
