package config

import (
	"txlog-sol/internal/mq"
	"txlog-sol/pkg/logger"
)

// go-zero conf 按 json tag 映射 yaml 字段

type LogConfig struct {
	Format   string `json:"format,default=console"` // 日志格式，支持 "console" 或 "json"
	LogDir   string `json:"log_dir,optional"`       // 日志目录，为空时只输出 stdout
	Level    string `json:"level,default=info"`     // 日志级别：debug / info / warn / error
	Compress bool   `json:"compress,optional"`      // 是否压缩旧日志文件
}

func (c *LogConfig) ToLogOption() logger.LogOption {
	return logger.LogOption{
		Format:   c.Format,
		LogDir:   c.LogDir,
		Level:    c.Level,
		Compress: c.Compress,
	}
}

// PacketConfig UDP 交易包接入配置
type PacketConfig struct {
	Enabled     bool   `json:"enabled,optional"`
	ListenAddr  string `json:"listen_addr,default=0.0.0.0:8003"` // 监听地址，支持 IPv4 / IPv6
	QueueSize   int    `json:"queue_size,default=4096"`          // 待解码包队列长度，满则丢弃
	Workers     int    `json:"workers,optional"`                 // 解码协程数，<=0 时取 CPU 核数
	ReadBuffer  int    `json:"read_buffer,default=8388608"`      // socket 读缓冲（字节）
	BatchSize   int    `json:"batch_size,default=128"`           // 每批最多交易数，sink 按批写入
	BatchWaitMs int    `json:"batch_wait_ms,default=5"`          // 凑批最长等待（毫秒）
}

// KafkaProducerConfig 表示 Kafka 生产者相关配置，Brokers 为空时不推送
type KafkaProducerConfig struct {
	Brokers       string `json:"brokers,optional"`             // Kafka broker 地址，多个用英文逗号分隔
	BatchSize     int    `json:"batch_size,default=32768"`     // 批处理大小（单位字节）
	LingerMs      int    `json:"linger_ms,default=5"`          // 批处理最大延迟（毫秒）
	Topic         string `json:"topic,default=txlog"`          // txlog 记录 topic
	Partitions    int    `json:"partitions,default=8"`         // topic 分区数
	SendTimeoutMs int    `json:"send_timeout_ms,default=2000"` // 单条消息等待 ack 的超时
}

func (c *KafkaProducerConfig) ToKafkaOption() mq.KafkaProducerOption {
	return mq.KafkaProducerOption{
		Brokers:   c.Brokers,
		BatchSize: c.BatchSize,
		LingerMs:  c.LingerMs,
		Topics: []mq.TopicOption{
			{Topic: c.Topic, Partitions: c.Partitions},
		},
	}
}

// RedisConfig 按来源地址聚合统计，Addr 为空时不启用
type RedisConfig struct {
	Addr     string `json:"addr,optional"`
	Password string `json:"password,optional"`
	DB       int    `json:"db,optional"`
	TTLSec   int    `json:"ttl_sec,default=86400"`
}

type MetricsConfig struct {
	ListenAddr string `json:"listen_addr,optional"` // 为空时不启动 /metrics
}

// GrpcConfig Yellowstone gRPC 订阅配置
type GrpcConfig struct {
	Enabled  bool   `json:"enabled,optional"`
	Endpoint string `json:"endpoint,optional"` // gRPC 服务端地址
	XToken   string `json:"x_token,optional"`  // x-token 认证

	// 应用级逻辑心跳（ping）配置
	StreamPingIntervalSec int `json:"stream_ping_interval_sec,default=10"`

	// gRPC Keepalive 底层连接检测配置
	KeepalivePingIntervalSec int `json:"keepalive_ping_interval_sec,default=10"`
	KeepalivePingTimeoutSec  int `json:"keepalive_ping_timeout_sec,default=5"`

	// gRPC 窗口大小调优（用于大数据流推送）
	InitialWindowSize     int `json:"initial_window_size,default=1073741824"`
	InitialConnWindowSize int `json:"initial_conn_window_size,default=1073741824"`

	// 消息体大小限制
	MaxCallSendMsgSize int `json:"max_call_send_msg_size,default=67108864"`
	MaxCallRecvMsgSize int `json:"max_call_recv_msg_size,default=67108864"`

	// 超时与重连策略
	ReconnectIntervalSec int `json:"reconnect_interval_sec,default=2"`
	ConnectTimeoutSec    int `json:"connect_timeout_sec,default=10"`
	SendTimeoutSec       int `json:"send_timeout_sec,default=5"`
	BlockRecvTimeoutSec  int `json:"block_recv_timeout_sec,default=30"` // 超过该时间未收到 block 则重连
}

// TxLogConfig 是主配置结构体
type TxLogConfig struct {
	LogConf           LogConfig           `json:"logger"`
	PacketConf        PacketConfig        `json:"packet,optional"`
	Grpc              GrpcConfig          `json:"grpc,optional"`
	KafkaProducerConf KafkaProducerConfig `json:"kafka_producer,optional"`
	RedisConf         RedisConfig         `json:"redis,optional"`
	MetricsConf       MetricsConfig       `json:"metrics,optional"`
}
