package grpc

import (
	"context"
	"errors"
	"time"

	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"
	"github.com/zeromicro/go-zero/core/logx"

	"txlog-sol/internal/consts"
	"txlog-sol/internal/logic/core"
	"txlog-sol/internal/logic/feelog"
	"txlog-sol/internal/logic/txadapter"
	"txlog-sol/internal/metrics"
	"txlog-sol/pkg/utils"
)

// Handler 接收一个区块内转换后的交易
type Handler interface {
	Handle(ctx context.Context, envs []core.Envelope) []feelog.Record
}

type BlockProcessor struct {
	handler   Handler
	blockChan <-chan BlockUpdate
	ctx       context.Context
	cancel    func(err error)
	logx.Logger
}

func NewBlockProcessor(handler Handler, blockChan <-chan BlockUpdate) *BlockProcessor {
	ctx, cancel := context.WithCancelCause(context.Background())
	return &BlockProcessor{
		handler:   handler,
		blockChan: blockChan,
		Logger:    logx.WithContext(ctx).WithFields(logx.Field("service", "block_processor")),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (p *BlockProcessor) Start() {
	for {
		select {
		case <-p.ctx.Done():
			return
		case update := <-p.blockChan:
			p.procBlock(update)
			if len(p.blockChan) > 10 {
				p.Debugf("block chan len:%v", len(p.blockChan))
			}
		}
	}
}

func (p *BlockProcessor) Stop() {
	p.cancel(errors.New("service stop"))
}

func (p *BlockProcessor) procBlock(update BlockUpdate) []feelog.Record {
	block := update.Block
	if block == nil {
		return nil
	}
	startTime := time.Now()
	defer func() {
		p.Debugf("区块处理耗时: %v, slot: %d", time.Since(startTime), block.Slot)
	}()

	// 1. 过滤 vote 与结构不完整的交易
	validTxs := make([]*pb.SubscribeUpdateTransactionInfo, 0, len(block.Transactions))
	for _, tx := range block.Transactions {
		if txadapter.IsValidGrpcTx(tx) {
			validTxs = append(validTxs, tx)
		}
	}

	// 2. 并发转换
	meta := core.ArrivalMeta{Addr: update.Peer, Source: core.SourceGrpc}
	envs := utils.ParallelMap(validTxs, consts.CpuCount+2,
		func(tx *pb.SubscribeUpdateTransactionInfo) core.Envelope {
			adapted, err := txadapter.AdaptGrpcTx(tx)
			if err != nil {
				metrics.ReportDecodeError(core.SourceGrpc)
				p.Errorf("adapt tx failed: slot=%d, index=%d, err=%v", block.Slot, tx.Index, err)
				return core.Envelope{Meta: meta}
			}
			return core.Envelope{Meta: meta, Tx: adapted}
		})

	// 3. 按区块内顺序输出，转换失败的 Tx 为 nil，由 Handler 跳过
	recs := p.handler.Handle(p.ctx, envs)
	p.Infof("slot: %d, 总tx数量: %d, 有效tx数量: %d, 输出: %d", block.Slot, len(block.Transactions), len(validTxs), len(recs))
	return recs
}
