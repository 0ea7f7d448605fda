package txadapter

import (
	"fmt"
	"math"

	sdktypes "github.com/blocto/solana-go-sdk/types"

	"txlog-sol/internal/logic/core"
	"txlog-sol/internal/types"
)

// DecodeWireTx 将网络包中的原始交易字节（legacy 或 v0）解码为 core.Transaction。
func DecodeWireTx(raw []byte) (_ *core.Transaction, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("DecodeWireTx panic: %v", r)
		}
	}()

	tx, err := sdktypes.TransactionDeserialize(raw)
	if err != nil {
		return nil, fmt.Errorf("deserialize transaction: %w", err)
	}
	return AdaptSdkTx(&tx)
}

// AdaptSdkTx 将 blocto SDK 的交易结构转换为 core.Transaction。
// 只使用静态 accountKeys，Address Lookup Table 中的地址不参与。
func AdaptSdkTx(tx *sdktypes.Transaction) (*core.Transaction, error) {
	msg := &tx.Message

	signatures := make([]types.Signature, 0, len(tx.Signatures))
	for i, raw := range tx.Signatures {
		sig, err := types.SignatureFromBytes(raw)
		if err != nil {
			return nil, fmt.Errorf("signature %d: %w", i, err)
		}
		signatures = append(signatures, sig)
	}

	accountKeys := make([]types.Pubkey, len(msg.Accounts))
	for i, key := range msg.Accounts {
		accountKeys[i] = types.Pubkey(key)
	}

	instructions := make([]core.Instruction, 0, len(msg.Instructions))
	for i, ix := range msg.Instructions {
		programIndex, err := toIndex(ix.ProgramIDIndex)
		if err != nil {
			return nil, fmt.Errorf("instruction %d program index: %w", i, err)
		}
		accounts := make([]uint16, 0, len(ix.Accounts))
		for _, idx := range ix.Accounts {
			accountIndex, err := toIndex(idx)
			if err != nil {
				return nil, fmt.Errorf("instruction %d account index: %w", i, err)
			}
			accounts = append(accounts, accountIndex)
		}
		instructions = append(instructions, core.Instruction{
			ProgramIDIndex: programIndex,
			Accounts:       accounts,
			Data:           ix.Data,
		})
	}

	return &core.Transaction{
		Signatures: signatures,
		Header: core.MessageHeader{
			NumRequiredSignatures:       msg.Header.NumRequireSignatures,
			NumReadonlySignedAccounts:   msg.Header.NumReadonlySignedAccounts,
			NumReadonlyUnsignedAccounts: msg.Header.NumReadonlyUnsignedAccounts,
		},
		AccountKeys:  accountKeys,
		Instructions: instructions,
	}, nil
}

func toIndex(idx int) (uint16, error) {
	if idx < 0 || idx > math.MaxUint16 {
		return 0, fmt.Errorf("index out of range: %d", idx)
	}
	return uint16(idx), nil
}
