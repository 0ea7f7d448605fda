package txadapter

import (
	"encoding/binary"
	"testing"

	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txlog-sol/internal/consts"
	"txlog-sol/internal/logic/feelog"
	"txlog-sol/internal/types"
)

var systemProgram = types.PubkeyFromBase58("11111111111111111111111111111111")

type testIx struct {
	program  byte
	accounts []byte
	data     []byte
}

// appendCompactU16 Solana short_vec 长度编码
func appendCompactU16(b []byte, n int) []byte {
	for {
		v := byte(n & 0x7f)
		n >>= 7
		if n == 0 {
			return append(b, v)
		}
		b = append(b, v|0x80)
	}
}

type testLookup struct {
	table    types.Pubkey
	writable []byte
	readonly []byte
}

// encodeLegacyTx 手工编码 legacy 交易，避免依赖 SDK 的签名流程
func encodeLegacyTx(sig types.Signature, keys []types.Pubkey, ixs []testIx) []byte {
	b := appendCompactU16(nil, 1)
	b = append(b, sig[:]...)
	return appendMessage(b, keys, ixs)
}

// encodeV0Tx 版本前缀 0x80，消息体后追加 Address Lookup Table 引用
func encodeV0Tx(sig types.Signature, keys []types.Pubkey, ixs []testIx, lookups []testLookup) []byte {
	b := appendCompactU16(nil, 1)
	b = append(b, sig[:]...)
	b = append(b, 0x80)
	b = appendMessage(b, keys, ixs)
	b = appendCompactU16(b, len(lookups))
	for _, l := range lookups {
		b = append(b, l.table[:]...)
		b = appendCompactU16(b, len(l.writable))
		b = append(b, l.writable...)
		b = appendCompactU16(b, len(l.readonly))
		b = append(b, l.readonly...)
	}
	return b
}

func appendMessage(b []byte, keys []types.Pubkey, ixs []testIx) []byte {
	b = append(b, 1, 0, byte(len(keys)-1)) // header: 1 signer，其余只读
	b = appendCompactU16(b, len(keys))
	for _, k := range keys {
		b = append(b, k[:]...)
	}
	b = append(b, make([]byte, 32)...) // recent blockhash
	b = appendCompactU16(b, len(ixs))
	for _, ix := range ixs {
		b = append(b, ix.program)
		b = appendCompactU16(b, len(ix.accounts))
		b = append(b, ix.accounts...)
		b = appendCompactU16(b, len(ix.data))
		b = append(b, ix.data...)
	}
	return b
}

func priceData(p uint64) []byte {
	data := make([]byte, 9)
	data[0] = 3
	binary.LittleEndian.PutUint64(data[1:], p)
	return data
}

func TestDecodeWireTx_Legacy(t *testing.T) {
	sig := types.Signature{0xAB, 0xCD}
	keys := []types.Pubkey{{1}, systemProgram, consts.ComputeBudgetProgram}
	raw := encodeLegacyTx(sig, keys, []testIx{
		{program: 2, data: priceData(1000)},
		{program: 1, accounts: []byte{0}, data: []byte{2, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0}},
	})

	tx, err := DecodeWireTx(raw)
	require.NoError(t, err)
	assert.Equal(t, sig, tx.Signature())
	assert.Equal(t, uint8(1), tx.Header.NumRequiredSignatures)
	assert.Equal(t, uint8(2), tx.Header.NumReadonlyUnsignedAccounts)
	assert.Equal(t, keys, tx.AccountKeys)
	require.Len(t, tx.Instructions, 2)
	assert.Equal(t, uint16(2), tx.Instructions[0].ProgramIDIndex)
	assert.Equal(t, []uint16{0}, tx.Instructions[1].Accounts)

	est := feelog.EstimateTx(tx)
	assert.Equal(t, uint32(200_000), est.ComputeUnits)
	assert.Equal(t, uint64(5200), est.Fee)
}

func TestDecodeWireTx_V0WithLookupTable(t *testing.T) {
	sig := types.Signature{0xEF}
	keys := []types.Pubkey{{1}, consts.ComputeBudgetProgram}
	raw := encodeV0Tx(sig, keys, []testIx{
		{program: 1, data: priceData(1000)},
		{program: 2, accounts: []byte{0}, data: []byte{9}}, // program 来自 lookup table
	}, []testLookup{{table: types.Pubkey{0x77}, readonly: []byte{0}}})

	tx, err := DecodeWireTx(raw)
	require.NoError(t, err)
	assert.Equal(t, sig, tx.Signature())
	// 只保留静态账户
	assert.Equal(t, keys, tx.AccountKeys)
	require.Len(t, tx.Instructions, 2)
	assert.Equal(t, uint16(2), tx.Instructions[1].ProgramIDIndex)

	est := feelog.EstimateTx(tx)
	assert.Equal(t, uint32(1), est.InstructionCount)
	assert.Equal(t, uint32(200_000), est.ComputeUnits)
	assert.Equal(t, uint64(1000), est.ComputeUnitPrice)
	assert.Equal(t, uint64(5200), est.Fee)
}

func TestDecodeWireTx_V0LoadedProgramNotTreatedAsBudget(t *testing.T) {
	// 预算指令的 program 只能经 lookup table 解析时，不识别为 Compute Budget
	keys := []types.Pubkey{{1}, systemProgram}
	raw := encodeV0Tx(types.Signature{0x01}, keys, []testIx{
		{program: 2, data: priceData(50_000)},
		{program: 2, data: []byte{2, 0xf4, 0x01, 0, 0}},
	}, []testLookup{{table: types.Pubkey{0x78}, readonly: []byte{3}}})

	tx, err := DecodeWireTx(raw)
	require.NoError(t, err)
	assert.Len(t, tx.AccountKeys, 2)

	est := feelog.EstimateTx(tx)
	assert.Equal(t, uint32(2), est.InstructionCount)
	assert.Equal(t, uint32(400_000), est.ComputeUnits)
	assert.Equal(t, uint64(0), est.ComputeUnitPrice)
	assert.Equal(t, uint64(5000), est.Fee)
}

func TestDecodeWireTx_Garbage(t *testing.T) {
	_, err := DecodeWireTx([]byte{1, 2, 3})
	assert.Error(t, err)

	_, err = DecodeWireTx(nil)
	assert.Error(t, err)
}

func grpcTxInfo() *pb.SubscribeUpdateTransactionInfo {
	sig := make([]byte, 64)
	sig[0] = 9
	budget := consts.ComputeBudgetProgram
	payer := types.Pubkey{7}
	return &pb.SubscribeUpdateTransactionInfo{
		Signature: sig,
		Transaction: &pb.Transaction{
			Signatures: [][]byte{sig},
			Message: &pb.Message{
				Header:      &pb.MessageHeader{NumRequiredSignatures: 2, NumReadonlyUnsignedAccounts: 1},
				AccountKeys: [][]byte{payer[:], budget[:]},
				Instructions: []*pb.CompiledInstruction{
					{ProgramIdIndex: 1, Data: []byte{2, 0x40, 0x0d, 0x03, 0x00}}, // limit 200_000
					{ProgramIdIndex: 1, Data: priceData(10_000)},
					{ProgramIdIndex: 0, Accounts: []byte{0, 1}, Data: []byte{1}},
				},
			},
		},
		Meta: &pb.TransactionStatusMeta{},
	}
}

func TestAdaptGrpcTx(t *testing.T) {
	tx, err := AdaptGrpcTx(grpcTxInfo())
	require.NoError(t, err)
	assert.Equal(t, uint8(2), tx.Header.NumRequiredSignatures)
	assert.Equal(t, consts.ComputeBudgetProgram, tx.AccountKeys[1])
	assert.Equal(t, []uint16{0, 1}, tx.Instructions[2].Accounts)

	est := feelog.EstimateTx(tx)
	assert.Equal(t, uint32(1), est.InstructionCount)
	assert.Equal(t, uint32(200_000), est.ComputeUnits)
	assert.Equal(t, uint64(10_000), est.ComputeUnitPrice)
	assert.Equal(t, uint64(2000+2*5000), est.Fee)
}

func TestAdaptGrpcTx_Invalid(t *testing.T) {
	vote := grpcTxInfo()
	vote.IsVote = true
	_, err := AdaptGrpcTx(vote)
	assert.Error(t, err)

	badKey := grpcTxInfo()
	badKey.Transaction.Message.AccountKeys[0] = []byte{1, 2}
	_, err = AdaptGrpcTx(badKey)
	assert.Error(t, err)

	badSigners := grpcTxInfo()
	badSigners.Transaction.Message.Header.NumRequiredSignatures = 300
	_, err = AdaptGrpcTx(badSigners)
	assert.Error(t, err)

	_, err = AdaptGrpcTx(nil)
	assert.Error(t, err)
}

func TestIsValidGrpcTx_KeepsFailedTx(t *testing.T) {
	info := grpcTxInfo()
	info.Meta.Err = &pb.TransactionError{Err: []byte{1}}
	assert.True(t, IsValidGrpcTx(info))
}
