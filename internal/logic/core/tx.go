package core

import (
	"net/netip"

	"txlog-sol/internal/types"
)

// 交易来源
const (
	SourceUDP  = "udp"
	SourceGrpc = "grpc"
	SourceRpc  = "rpc"
)

// MessageHeader 消息头，仅保留签名相关计数。
type MessageHeader struct {
	NumRequiredSignatures       uint8 // 必需签名数（前 N 个 account 为 signer）
	NumReadonlySignedAccounts   uint8
	NumReadonlyUnsignedAccounts uint8
}

// Instruction 表示消息中的一条已编译指令（program / accounts 均为 accountKeys 下标）。
type Instruction struct {
	ProgramIDIndex uint16   // 目标程序在 AccountKeys 中的下标
	Accounts       []uint16 // 指令涉及账户的下标，保持原始顺序
	Data           []byte   // 指令数据，首字节通常为 opcode
}

// Transaction 已由外部解码器解析完成的交易，只读。
type Transaction struct {
	Signatures   []types.Signature // 第一个签名即交易 ID
	Header       MessageHeader
	AccountKeys  []types.Pubkey // 静态账户列表（不含 Address Lookup Table 加载的地址）
	Instructions []Instruction
}

// Signature 返回交易的标识签名；无签名时返回零值。
func (tx *Transaction) Signature() types.Signature {
	if len(tx.Signatures) == 0 {
		return types.Signature{}
	}
	return tx.Signatures[0]
}

// ProgramIndex 返回 program 在静态账户列表中的下标。
func (tx *Transaction) ProgramIndex(program types.Pubkey) (int, bool) {
	for i, key := range tx.AccountKeys {
		if key == program {
			return i, true
		}
	}
	return -1, false
}

// ArrivalMeta 交易到达时的网络元信息。
type ArrivalMeta struct {
	Addr   netip.Addr // 来源地址（IPv4 或 IPv6）
	Source string     // udp / grpc / rpc
}

// Envelope 携带到达元信息的交易，作为 pipeline 的处理单元。
type Envelope struct {
	Meta ArrivalMeta
	Tx   *Transaction
}
