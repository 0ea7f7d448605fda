package svc

import (
	"context"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/redis/go-redis/v9"

	"txlog-sol/internal/config"
	"txlog-sol/internal/logic/feelog"
	"txlog-sol/internal/logic/pipeline"
	"txlog-sol/internal/mq"
	"txlog-sol/internal/stats"
	"txlog-sol/pkg/logger"
)

const flushTimeoutMs = 3000

// ServiceContext 包含各服务共享的资源
type ServiceContext struct {
	Config    config.TxLogConfig
	Producer  *kafka.Producer // 未配置 brokers 时为 nil
	Redis     *redis.Client   // 未配置 redis 时为 nil
	Processor *pipeline.Processor
}

// NewServiceContext 按配置初始化 txlog 输出与可选的 Kafka / Redis sink
func NewServiceContext(c config.TxLogConfig) (*ServiceContext, error) {
	ctx := &ServiceContext{Config: c}
	var opts []pipeline.Option

	// 1. Kafka 生产者
	if c.KafkaProducerConf.Brokers != "" {
		producer, err := mq.NewKafkaProducer(c.KafkaProducerConf.ToKafkaOption())
		if err != nil {
			return nil, fmt.Errorf("kafka producer 初始化失败: %w", err)
		}
		ctx.Producer = producer
		timeout := time.Duration(c.KafkaProducerConf.SendTimeoutMs) * time.Millisecond
		opts = append(opts, pipeline.WithPublisher(
			mq.NewRecordPublisher(producer, c.KafkaProducerConf.Topic, c.KafkaProducerConf.Partitions, timeout)))
		logger.Infof("kafka sink enabled, topic=%s", c.KafkaProducerConf.Topic)
	}

	// 2. Redis 客户端
	if c.RedisConf.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     c.RedisConf.Addr,
			Password: c.RedisConf.Password,
			DB:       c.RedisConf.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			_ = rdb.Close()
			ctx.Close()
			return nil, fmt.Errorf("redis 连接失败 %s: %w", c.RedisConf.Addr, err)
		}
		ctx.Redis = rdb
		ttl := time.Duration(c.RedisConf.TTLSec) * time.Second
		opts = append(opts, pipeline.WithStats(stats.NewRedisFeeStats(rdb, ttl)))
		logger.Infof("redis sink enabled, addr=%s", c.RedisConf.Addr)
	}

	// 3. txlog 输出
	ctx.Processor = pipeline.NewProcessor(feelog.NewTxLogger(logger.L()), opts...)

	logger.Infof("服务上下文初始化完成")
	return ctx, nil
}

// Close 关闭服务上下文中的资源
func (ctx *ServiceContext) Close() {
	if ctx.Producer != nil {
		if remaining := ctx.Producer.Flush(flushTimeoutMs); remaining > 0 {
			logger.Warnf("kafka flush 未完成，剩余 %d 条", remaining)
		}
		ctx.Producer.Close()
		ctx.Producer = nil
	}
	if ctx.Redis != nil {
		if err := ctx.Redis.Close(); err != nil {
			logger.Errorf("redis close: %v", err)
		}
		ctx.Redis = nil
	}
}
