package stats

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txlog-sol/internal/logic/feelog"
)

func record(addr string, fee uint64) feelog.Record {
	return feelog.Record{
		Address:  addr,
		Estimate: feelog.Estimate{ComputeUnits: 200_000, Fee: fee},
	}
}

func TestRedisFeeStats_RecordBatch(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	s := NewRedisFeeStats(rdb, time.Hour)

	v6 := "txlog:addr:2001:db8::1"
	v4 := "txlog:addr:1.2.3.4"
	mock.ExpectTxPipeline()
	// 同一地址合并为一组命令
	mock.ExpectHIncrBy(v6, "txs", 2).SetVal(2)
	mock.ExpectHIncrBy(v6, "fee", 10_400).SetVal(10_400)
	mock.ExpectHIncrBy(v6, "compute_units", 400_000).SetVal(400_000)
	mock.ExpectExpire(v6, time.Hour).SetVal(true)
	mock.ExpectHIncrBy(v4, "txs", 1).SetVal(1)
	mock.ExpectHIncrBy(v4, "fee", 5000).SetVal(5000)
	mock.ExpectHIncrBy(v4, "compute_units", 200_000).SetVal(200_000)
	mock.ExpectExpire(v4, time.Hour).SetVal(true)
	mock.ExpectTxPipelineExec()

	err := s.RecordBatch(context.Background(), []feelog.Record{
		record("2001:db8::1", 5200),
		record("1.2.3.4", 5000),
		record("2001:db8::1", 5200),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisFeeStats_RecordBatchSaturatesFee(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	s := NewRedisFeeStats(rdb, 0)

	key := "txlog:addr:2001:db8::1"
	mock.ExpectTxPipeline()
	mock.ExpectHIncrBy(key, "txs", 2).SetVal(2)
	mock.ExpectHIncrBy(key, "fee", math.MaxInt64).SetVal(math.MaxInt64)
	mock.ExpectHIncrBy(key, "compute_units", 400_000).SetVal(400_000)
	mock.ExpectExpire(key, defaultTTL).SetVal(true)
	mock.ExpectTxPipelineExec()

	err := s.RecordBatch(context.Background(), []feelog.Record{
		record("2001:db8::1", math.MaxUint64),
		record("2001:db8::1", 1),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisFeeStats_RecordBatchFailsAsOneTransaction(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	s := NewRedisFeeStats(rdb, time.Hour)

	key := "txlog:addr:2001:db8::1"
	mock.ExpectTxPipeline()
	mock.ExpectHIncrBy(key, "txs", 1).SetVal(1)
	mock.ExpectHIncrBy(key, "fee", 5200).SetErr(errors.New("timeout"))

	// 中途失败时整批返回错误，不再逐条发送剩余命令
	err := s.RecordBatch(context.Background(), []feelog.Record{record("2001:db8::1", 5200)})
	assert.ErrorContains(t, err, "timeout")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisFeeStats_RecordBatchEmpty(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	s := NewRedisFeeStats(rdb, time.Hour)

	require.NoError(t, s.RecordBatch(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaturatingAdd(t *testing.T) {
	assert.Equal(t, uint64(3), saturatingAdd(1, 2))
	assert.Equal(t, uint64(math.MaxUint64), saturatingAdd(math.MaxUint64, 1))
	assert.Equal(t, int64(math.MaxInt64), saturateInt64(math.MaxUint64))
}
