package mq

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"txlog-sol/internal/logic/feelog"
	"txlog-sol/internal/utils"
)

// RecordTypeTxLog Kafka value 前 4 字节的记录类型
const RecordTypeTxLog uint32 = 1

// RecordPublisher 将 txlog 记录推送到 Kafka，按签名分区
type RecordPublisher struct {
	producer   Producer
	topic      string
	partitions uint32
	timeout    time.Duration
}

func NewRecordPublisher(producer Producer, topic string, partitions int, timeout time.Duration) *RecordPublisher {
	if partitions <= 0 {
		partitions = 1
	}
	return &RecordPublisher{
		producer:   producer,
		topic:      topic,
		partitions: uint32(partitions),
		timeout:    timeout,
	}
}

// RecordToStruct 转为 protobuf Struct。
// price / fee 为 u64，超出 float64 精度，按十进制字符串编码。
func RecordToStruct(rec *feelog.Record) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"address":             rec.Address,
		"signature":           rec.Signature.String(),
		"source":              rec.Source,
		"compute_units":       rec.ComputeUnits,
		"compute_unit_price":  strconv.FormatUint(rec.ComputeUnitPrice, 10),
		"fee":                 strconv.FormatUint(rec.Fee, 10),
		"instruction_count":   rec.InstructionCount,
		"required_signatures": uint32(rec.RequiredSignatures),
	})
}

// BuildJob 编码一条记录
func (p *RecordPublisher) BuildJob(rec *feelog.Record) (*KafkaJob, error) {
	msg, err := RecordToStruct(rec)
	if err != nil {
		return nil, fmt.Errorf("build record struct: %w", err)
	}
	value, err := utils.EncodeRecord(RecordTypeTxLog, msg)
	if err != nil {
		return nil, err
	}
	return &KafkaJob{
		Topic:     p.topic,
		Partition: int32(utils.PartitionOf(rec.Signature[:], p.partitions)),
		Key:       rec.Signature[:],
		Value:     value,
	}, nil
}

// Publish 发送一批记录，返回失败条数与首个错误
func (p *RecordPublisher) Publish(ctx context.Context, recs []feelog.Record) (int, error) {
	jobs := make([]*KafkaJob, 0, len(recs))
	var firstErr error
	failedCount := 0
	for i := range recs {
		job, err := p.BuildJob(&recs[i])
		if err != nil {
			failedCount++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		jobs = append(jobs, job)
	}
	if len(jobs) == 0 {
		return failedCount, firstErr
	}

	_, failed := SendKafkaJobs(ctx, p.producer, jobs, p.timeout)
	failedCount += len(failed)
	if firstErr == nil && len(failed) > 0 {
		firstErr = failed[0].Err
	}
	return failedCount, firstErr
}
