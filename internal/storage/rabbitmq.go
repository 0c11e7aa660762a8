package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"resume-rag/internal/config"
	"resume-rag/internal/logger"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// MessageQueue 消息队列接口
type MessageQueue interface {
	PublishJSON(ctx context.Context, exchangeName, routingKey string, data any, persistent bool) error
	EnsureExchange(exchangeName, exchangeType string, durable bool) error
	EnsureQueue(queueName string, durable bool) error
	BindQueue(queueName, exchangeName, routingKey string) error
	StartConsumer(ctx context.Context, queueName string, prefetchCount int, handler func(context.Context, []byte) bool) (<-chan struct{}, error)
	Close() error
}

var _ MessageQueue = (*RabbitMQ)(nil)

// RabbitMQ 提供消息队列功能。发布共用一个 channel，每个消费者独占一个 channel。
type RabbitMQ struct {
	conn       *amqp.Connection
	pubMu      sync.Mutex
	pubChannel *amqp.Channel

	declMu   sync.Mutex
	declared map[string]bool // 已声明的 exchange / queue / binding

	logger zerolog.Logger
}

// NewRabbitMQ 连接 RabbitMQ
func NewRabbitMQ(cfg *config.RabbitMQConfig) (*RabbitMQ, error) {
	if cfg == nil {
		return nil, fmt.Errorf("RabbitMQ配置不能为空")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("RabbitMQ URL配置不能为空")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("无法连接到RabbitMQ服务器: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("无法创建RabbitMQ通道: %w", err)
	}

	mq := &RabbitMQ{
		conn:       conn,
		pubChannel: ch,
		declared:   make(map[string]bool),
		logger:     logger.Component("rabbitmq"),
	}
	mq.logger.Info().Msg("成功连接到RabbitMQ服务器")
	return mq, nil
}

// Close 关闭连接
func (r *RabbitMQ) Close() error {
	if r.pubChannel != nil {
		_ = r.pubChannel.Close()
	}
	return r.conn.Close()
}

func (r *RabbitMQ) declareOnce(id string, fn func(ch *amqp.Channel) error) error {
	r.declMu.Lock()
	defer r.declMu.Unlock()
	if r.declared[id] {
		return nil
	}
	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("无法获取RabbitMQ通道: %w", err)
	}
	defer ch.Close()
	if err := fn(ch); err != nil {
		return err
	}
	r.declared[id] = true
	return nil
}

// EnsureExchange 确保exchange存在
func (r *RabbitMQ) EnsureExchange(exchangeName, exchangeType string, durable bool) error {
	if exchangeName == "" {
		return fmt.Errorf("exchange名称不能为空")
	}
	return r.declareOnce("exchange:"+exchangeName, func(ch *amqp.Channel) error {
		if err := ch.ExchangeDeclare(exchangeName, exchangeType, durable, false, false, false, nil); err != nil {
			return fmt.Errorf("声明exchange失败: %w", err)
		}
		r.logger.Info().Str("exchange", exchangeName).Msg("已确保exchange存在")
		return nil
	})
}

// EnsureQueue 确保队列存在
func (r *RabbitMQ) EnsureQueue(queueName string, durable bool) error {
	return r.declareOnce("queue:"+queueName, func(ch *amqp.Channel) error {
		if _, err := ch.QueueDeclare(queueName, durable, false, false, false, nil); err != nil {
			return fmt.Errorf("声明队列失败: %w", err)
		}
		r.logger.Info().Str("queue", queueName).Msg("已确保队列存在")
		return nil
	})
}

// BindQueue 绑定队列到exchange
func (r *RabbitMQ) BindQueue(queueName, exchangeName, routingKey string) error {
	id := fmt.Sprintf("binding:%s:%s:%s", exchangeName, queueName, routingKey)
	return r.declareOnce(id, func(ch *amqp.Channel) error {
		if err := ch.QueueBind(queueName, routingKey, exchangeName, false, nil); err != nil {
			return fmt.Errorf("绑定队列到exchange失败: %w", err)
		}
		return nil
	})
}

// PublishJSON 发布JSON格式的消息
func (r *RabbitMQ) PublishJSON(ctx context.Context, exchangeName, routingKey string, data any, persistent bool) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("JSON序列化失败: %w", err)
	}

	deliveryMode := amqp.Transient
	if persistent {
		deliveryMode = amqp.Persistent
	}

	r.pubMu.Lock()
	defer r.pubMu.Unlock()
	return r.pubChannel.PublishWithContext(ctx, exchangeName, routingKey, false, false, amqp.Publishing{
		DeliveryMode: deliveryMode,
		ContentType:  "application/json",
		Body:         body,
		Timestamp:    time.Now(),
	})
}

// StartConsumer 启动消费者。handler 返回 false 时消息被拒绝且不重新入队。
// 返回的 channel 在消费者退出后关闭；ctx 取消时停止消费。
func (r *RabbitMQ) StartConsumer(ctx context.Context, queueName string, prefetchCount int, handler func(context.Context, []byte) bool) (<-chan struct{}, error) {
	ch, err := r.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("无法获取RabbitMQ通道: %w", err)
	}
	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("设置QoS失败: %w", err)
	}
	deliveries, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("注册消费者失败: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer ch.Close()
		r.logger.Info().Str("queue", queueName).Int("prefetch", prefetchCount).Msg("RabbitMQ消费者已启动")

		for {
			select {
			case <-ctx.Done():
				r.logger.Info().Str("queue", queueName).Msg("RabbitMQ消费者已停止")
				return
			case delivery, ok := <-deliveries:
				if !ok {
					r.logger.Warn().Str("queue", queueName).Msg("RabbitMQ通道已关闭")
					return
				}
				if handler(ctx, delivery.Body) {
					if err := delivery.Ack(false); err != nil {
						r.logger.Error().Err(err).Msg("确认消息失败")
					}
				} else if err := delivery.Nack(false, false); err != nil {
					r.logger.Error().Err(err).Msg("拒绝消息失败")
				}
			}
		}
	}()
	return done, nil
}
