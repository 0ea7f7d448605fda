package feelog

import (
	"math"
	"math/bits"

	"txlog-sol/internal/consts"
	"txlog-sol/internal/logic/computebudget"
	"txlog-sol/internal/logic/core"
)

// Estimate 单笔交易的计算预算与费用估算结果。
type Estimate struct {
	InstructionCount   uint32 // 不含 Compute Budget 指令的指令数
	ComputeUnits       uint32 // 限定在 [0, MaxComputeUnitLimit]
	ComputeUnitPrice   uint64 // microlamports / CU
	RequiredSignatures uint8
	Fee                uint64 // lamports
}

// EstimateTx 从交易的 Compute Budget 指令推导 CU、CU 单价与预估手续费。
//
// 规则：
//   - 只识别静态账户列表中的 Compute Budget Program，找不到时全部走默认值；
//   - 每条预算指令都不计入默认 CU 估算的指令数；
//   - SetComputeUnitLimit / SetComputeUnitPrice 多次出现时以最后一条为准；
//   - 数据过短或未知 opcode 直接忽略。
func EstimateTx(tx *core.Transaction) Estimate {
	est := Estimate{
		InstructionCount:   uint32(len(tx.Instructions)),
		RequiredSignatures: tx.Header.NumRequiredSignatures,
	}

	var limit uint32
	if budgetIndex, ok := tx.ProgramIndex(consts.ComputeBudgetProgram); ok {
		for i := range tx.Instructions {
			ix := &tx.Instructions[i]
			if int(ix.ProgramIDIndex) != budgetIndex {
				continue
			}
			est.InstructionCount--

			d := computebudget.Parse(ix.Data)
			if d.HasUnitLimit {
				limit = d.UnitLimit
			}
			if d.HasUnitPrice {
				est.ComputeUnitPrice = d.UnitPrice
			}
		}
	}

	units := int64(limit)
	if units == 0 {
		// 显式设置 limit=0 与未设置等价
		units = int64(est.InstructionCount) * int64(consts.DefaultInstructionComputeUnits)
	}
	est.ComputeUnits = clampComputeUnits(units)
	est.Fee = computeFee(est.ComputeUnits, est.ComputeUnitPrice, est.RequiredSignatures)
	return est
}

// clampComputeUnits 将 CU 限定在 [0, MaxComputeUnitLimit]。
func clampComputeUnits(units int64) uint32 {
	if units < 0 {
		return 0
	}
	if units > int64(consts.MaxComputeUnitLimit) {
		return consts.MaxComputeUnitLimit
	}
	return uint32(units)
}

// computeFee = ceil(units * price / 1e6) + signatures * 5000，溢出时饱和到 MaxUint64。
func computeFee(units uint32, price uint64, signatures uint8) uint64 {
	hi, lo := bits.Mul64(uint64(units), price)
	lo, carry := bits.Add64(lo, consts.MicroLamportsPerLamport-1, 0)
	hi += carry
	if hi >= consts.MicroLamportsPerLamport {
		return math.MaxUint64
	}
	priorityFee, _ := bits.Div64(hi, lo, consts.MicroLamportsPerLamport)

	fee, overflow := bits.Add64(priorityFee, uint64(signatures)*consts.LamportsPerSignature, 0)
	if overflow != 0 {
		return math.MaxUint64
	}
	return fee
}
