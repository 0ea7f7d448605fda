// Package computebudget 解析 Compute Budget Program 的指令数据。
//
// 指令格式：首字节为 opcode，其余为 borsh 编码参数（小端）。
package computebudget

import (
	"github.com/near/borsh-go"
)

// Opcode Compute Budget 指令类型
type Opcode uint8

const (
	OpcodeUnknown                        Opcode = 0
	OpcodeRequestHeapFrame               Opcode = 1
	OpcodeSetComputeUnitLimit            Opcode = 2
	OpcodeSetComputeUnitPrice            Opcode = 3
	OpcodeSetLoadedAccountsDataSizeLimit Opcode = 4
)

const (
	setComputeUnitLimitLen = 1 + 4 // opcode + u32
	setComputeUnitPriceLen = 1 + 8 // opcode + u64
)

func (o Opcode) String() string {
	switch o {
	case OpcodeRequestHeapFrame:
		return "RequestHeapFrame"
	case OpcodeSetComputeUnitLimit:
		return "SetComputeUnitLimit"
	case OpcodeSetComputeUnitPrice:
		return "SetComputeUnitPrice"
	case OpcodeSetLoadedAccountsDataSizeLimit:
		return "SetLoadedAccountsDataSizeLimit"
	default:
		return "Unknown"
	}
}

// ParseOpcode 取 data 首字节作为 opcode，空数据或未知 tag 归为 OpcodeUnknown。
// opcode 0（已废弃的 RequestUnits）同样视为未知。
func ParseOpcode(data []byte) Opcode {
	if len(data) == 0 {
		return OpcodeUnknown
	}
	switch op := Opcode(data[0]); op {
	case OpcodeRequestHeapFrame,
		OpcodeSetComputeUnitLimit,
		OpcodeSetComputeUnitPrice,
		OpcodeSetLoadedAccountsDataSizeLimit:
		return op
	default:
		return OpcodeUnknown
	}
}

type setComputeUnitLimitParams struct {
	Units uint32
}

type setComputeUnitPriceParams struct {
	MicroLamports uint64
}

// Directive 一条预算指令解析后的效果：只有 limit / price 两种会影响估算。
type Directive struct {
	Opcode       Opcode
	UnitLimit    uint32
	HasUnitLimit bool
	UnitPrice    uint64 // microlamports / CU
	HasUnitPrice bool
}

// Parse 解析一条 Compute Budget 指令数据。
// 长度不足或 opcode 不影响估算时返回的 Directive 不带任何值，调用方保持原值即可。
// data[1:] 之后多余的字节忽略。
func Parse(data []byte) Directive {
	d := Directive{Opcode: ParseOpcode(data)}
	switch d.Opcode {
	case OpcodeSetComputeUnitLimit:
		if len(data) < setComputeUnitLimitLen {
			return d
		}
		var p setComputeUnitLimitParams
		if err := borsh.Deserialize(&p, data[1:setComputeUnitLimitLen]); err != nil {
			return d
		}
		d.UnitLimit, d.HasUnitLimit = p.Units, true
	case OpcodeSetComputeUnitPrice:
		if len(data) < setComputeUnitPriceLen {
			return d
		}
		var p setComputeUnitPriceParams
		if err := borsh.Deserialize(&p, data[1:setComputeUnitPriceLen]); err != nil {
			return d
		}
		d.UnitPrice, d.HasUnitPrice = p.MicroLamports, true
	}
	return d
}
