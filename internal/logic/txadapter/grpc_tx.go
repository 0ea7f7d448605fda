package txadapter

import (
	"errors"
	"fmt"
	"math"

	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"

	"txlog-sol/internal/logic/core"
	"txlog-sol/internal/types"
)

// IsValidGrpcTx 过滤结构不完整的交易与 vote 交易。
// 执行失败的交易同样支付手续费，因此保留。
func IsValidGrpcTx(tx *pb.SubscribeUpdateTransactionInfo) bool {
	if tx == nil || // - nil transaction info
		tx.Transaction == nil || // - missing Transaction field
		tx.Transaction.Message == nil || // - missing Message field in transaction
		tx.Transaction.Message.Header == nil || // - missing message header
		len(tx.Transaction.Signatures) == 0 || // - missing transaction signature
		len(tx.Transaction.Signatures[0]) != 64 || // - invalid transaction signature length
		tx.IsVote { // - vote transaction skipped
		return false
	}
	return true
}

// AdaptGrpcTx 将 gRPC 推送的交易转换为 core.Transaction。
// 只取 message.accountKeys（静态账户），不拼接 LoadedWritable / LoadedReadonly。
// 如 panic 会被 recover。
func AdaptGrpcTx(tx *pb.SubscribeUpdateTransactionInfo) (_ *core.Transaction, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("AdaptGrpcTx panic: %v", r)
		}
	}()

	if !IsValidGrpcTx(tx) {
		return nil, errors.New("invalid grpc transaction")
	}
	msg := tx.Transaction.Message

	signatures := make([]types.Signature, 0, len(tx.Transaction.Signatures))
	for i, raw := range tx.Transaction.Signatures {
		sig, err := types.SignatureFromBytes(raw)
		if err != nil {
			return nil, fmt.Errorf("signature %d: %w", i, err)
		}
		signatures = append(signatures, sig)
	}

	accountKeys := make([]types.Pubkey, len(msg.AccountKeys))
	for i, b := range msg.AccountKeys {
		key, err := types.PubkeyFromBytes(b)
		if err != nil {
			return nil, fmt.Errorf("invalid pubkey in accountKeys at index %d: %w", i, err)
		}
		accountKeys[i] = key
	}

	header := msg.Header
	if header.NumRequiredSignatures > math.MaxUint8 {
		return nil, fmt.Errorf("invalid signer count: %d", header.NumRequiredSignatures)
	}

	instructions := make([]core.Instruction, 0, len(msg.Instructions))
	for i, inst := range msg.Instructions {
		if inst.ProgramIdIndex > math.MaxUint16 {
			return nil, fmt.Errorf("instruction %d program index out of range: %d", i, inst.ProgramIdIndex)
		}
		accounts := make([]uint16, len(inst.Accounts))
		for j, idx := range inst.Accounts {
			accounts[j] = uint16(idx)
		}
		instructions = append(instructions, core.Instruction{
			ProgramIDIndex: uint16(inst.ProgramIdIndex),
			Accounts:       accounts,
			Data:           inst.Data,
		})
	}

	return &core.Transaction{
		Signatures: signatures,
		Header: core.MessageHeader{
			NumRequiredSignatures:       uint8(header.NumRequiredSignatures),
			NumReadonlySignedAccounts:   uint8(header.NumReadonlySignedAccounts),
			NumReadonlyUnsignedAccounts: uint8(header.NumReadonlyUnsignedAccounts),
		},
		AccountKeys:  accountKeys,
		Instructions: instructions,
	}, nil
}
