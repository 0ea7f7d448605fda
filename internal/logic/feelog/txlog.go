package feelog

import (
	"fmt"
	"net/netip"

	"go.uber.org/zap"

	"txlog-sol/internal/logic/core"
	"txlog-sol/internal/types"
	"txlog-sol/pkg/logger"
)

// RecordPrefix 日志行前缀，下游按此筛选 txlog 记录
const RecordPrefix = "txlog"

const unknownAddr = "unknown"

// Record 一条 txlog 记录
type Record struct {
	Address   string
	Signature types.Signature
	Source    string
	Estimate
}

// Line 格式：txlog <address> <signature> <compute_units> <compute_unit_price> <fee>
func (r *Record) Line() string {
	return fmt.Sprintf("%s %s %s %d %d %d",
		RecordPrefix, r.Address, r.Signature.String(), r.ComputeUnits, r.ComputeUnitPrice, r.Fee)
}

// FormatAddr 按 IPv4 / IPv6 各自的标准文本格式输出来源地址。
// IPv4-mapped IPv6 仍按 IPv6 输出（::ffff:a.b.c.d），zone 不参与输出。
func FormatAddr(addr netip.Addr) string {
	switch {
	case addr.Is4():
		return addr.String()
	case addr.Is6():
		return addr.WithZone("").String()
	default:
		return unknownAddr
	}
}

// BuildRecord 只做计算，不产生日志。
func BuildRecord(meta core.ArrivalMeta, tx *core.Transaction) Record {
	return Record{
		Address:   FormatAddr(meta.Addr),
		Signature: tx.Signature(),
		Source:    meta.Source,
		Estimate:  EstimateTx(tx),
	}
}

// TxLogger 为每笔交易输出一行 txlog。zap.Logger 本身并发安全。
type TxLogger struct {
	log *zap.Logger
}

func NewTxLogger(l *zap.Logger) *TxLogger {
	if l == nil {
		l = zap.NewNop()
	}
	return &TxLogger{log: l}
}

// LogTx 计算并输出一行 txlog，返回对应记录供下游 sink 复用。
func (l *TxLogger) LogTx(meta core.ArrivalMeta, tx *core.Transaction) Record {
	rec := BuildRecord(meta, tx)
	l.log.Info(rec.Line())
	return rec
}

// LogTx 使用全局 logger 输出
func LogTx(meta core.ArrivalMeta, tx *core.Transaction) Record {
	return NewTxLogger(logger.L()).LogTx(meta, tx)
}
