package pipeline

import (
	"context"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"txlog-sol/internal/logic/core"
	"txlog-sol/internal/logic/feelog"
	"txlog-sol/internal/metrics"
)

const defaultSinkTimeout = 3 * time.Second

// RecordPublisher 下游记录推送（Kafka）
type RecordPublisher interface {
	Publish(ctx context.Context, recs []feelog.Record) (int, error)
}

// StatsRecorder 按地址聚合统计（Redis），一批记录一次往返
type StatsRecorder interface {
	RecordBatch(ctx context.Context, recs []feelog.Record) error
}

// Processor 对每笔交易输出 txlog，并写入可选的下游 sink。
// sink 失败只记录错误，不影响日志输出。
type Processor struct {
	txLogger    *feelog.TxLogger
	publisher   RecordPublisher
	stats       StatsRecorder
	sinkTimeout time.Duration
	logx.Logger
}

type Option func(*Processor)

func WithPublisher(p RecordPublisher) Option {
	return func(proc *Processor) { proc.publisher = p }
}

func WithStats(s StatsRecorder) Option {
	return func(proc *Processor) { proc.stats = s }
}

func WithSinkTimeout(d time.Duration) Option {
	return func(proc *Processor) { proc.sinkTimeout = d }
}

func NewProcessor(txLogger *feelog.TxLogger, opts ...Option) *Processor {
	p := &Processor{
		txLogger:    txLogger,
		sinkTimeout: defaultSinkTimeout,
		Logger:      logx.WithContext(context.Background()).WithFields(logx.Field("service", "txlog_processor")),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle 处理一批交易，每笔恰好输出一行 txlog，返回对应记录
func (p *Processor) Handle(ctx context.Context, envs []core.Envelope) []feelog.Record {
	if len(envs) == 0 {
		return nil
	}

	recs := make([]feelog.Record, 0, len(envs))
	for _, env := range envs {
		if env.Tx == nil {
			continue
		}
		rec := p.txLogger.LogTx(env.Meta, env.Tx)
		metrics.ReportTx(env.Meta.Source, rec.Fee)
		recs = append(recs, rec)
	}
	p.writeSinks(ctx, recs)
	return recs
}

func (p *Processor) writeSinks(ctx context.Context, recs []feelog.Record) {
	if len(recs) == 0 || (p.publisher == nil && p.stats == nil) {
		return
	}

	sinkCtx, cancel := context.WithTimeout(ctx, p.sinkTimeout)
	defer cancel()

	if p.publisher != nil {
		if failed, err := p.publisher.Publish(sinkCtx, recs); err != nil {
			metrics.ReportSinkError("kafka")
			p.Errorf("kafka publish failed: %d/%d, err: %v", failed, len(recs), err)
		}
	}

	if p.stats != nil {
		if err := p.stats.RecordBatch(sinkCtx, recs); err != nil {
			metrics.ReportSinkError("redis")
			p.Errorf("redis stats failed: %d records, err: %v", len(recs), err)
		}
	}
}
