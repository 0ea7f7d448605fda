package stats

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"txlog-sol/internal/logic/feelog"
)

// Redis key 前缀与字段
const (
	addrPrefix = "txlog:addr"

	fieldTxs          = "txs"
	fieldFee          = "fee"
	fieldComputeUnits = "compute_units"
)

const defaultTTL = 24 * time.Hour

// RedisFeeStats 按来源地址累计交易数、手续费与 CU
type RedisFeeStats struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisFeeStats(rdb *redis.Client, ttl time.Duration) *RedisFeeStats {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisFeeStats{rdb: rdb, ttl: ttl}
}

func (r *RedisFeeStats) getKey(addr string) string {
	return fmt.Sprintf("%s:%s", addrPrefix, addr)
}

// addrDelta 一批记录中同一地址的增量
type addrDelta struct {
	key          string
	txs          int64
	fee          uint64
	computeUnits int64
}

// RecordBatch 在一个 MULTI/EXEC 中累加一批记录，同一地址合并为一组 HINCRBY 并刷新 TTL。
// 事务整体提交，不会出现只累加了部分字段的 key。
func (r *RedisFeeStats) RecordBatch(ctx context.Context, recs []feelog.Record) error {
	if len(recs) == 0 {
		return nil
	}

	// 按首次出现顺序合并
	deltas := make([]*addrDelta, 0, len(recs))
	byAddr := make(map[string]*addrDelta, len(recs))
	for i := range recs {
		d, ok := byAddr[recs[i].Address]
		if !ok {
			d = &addrDelta{key: r.getKey(recs[i].Address)}
			byAddr[recs[i].Address] = d
			deltas = append(deltas, d)
		}
		d.txs++
		d.fee = saturatingAdd(d.fee, recs[i].Fee)
		d.computeUnits += int64(recs[i].ComputeUnits)
	}

	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, d := range deltas {
			pipe.HIncrBy(ctx, d.key, fieldTxs, d.txs)
			pipe.HIncrBy(ctx, d.key, fieldFee, saturateInt64(d.fee))
			pipe.HIncrBy(ctx, d.key, fieldComputeUnits, d.computeUnits)
			pipe.Expire(ctx, d.key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis stats tx (%d addrs): %w", len(deltas), err)
	}
	return nil
}

func saturatingAdd(a, b uint64) uint64 {
	if sum := a + b; sum >= a {
		return sum
	}
	return math.MaxUint64
}

func saturateInt64(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}
