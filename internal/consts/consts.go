package consts

import "runtime"

// 计算预算与手续费常量（单位见注释）
const (
	DefaultInstructionComputeUnits uint64 = 200_000   // 未显式设置 limit 时，每条非预算指令的默认 CU
	MaxComputeUnitLimit            uint32 = 1_400_000 // 单笔交易 CU 上限
	LamportsPerSignature           uint64 = 5000      // 每个必需签名的基础费用（lamports）
	MicroLamportsPerLamport        uint64 = 1_000_000 // 1 lamport = 1e6 microlamports
)

// MaxPacketSize Solana 单个交易包的最大字节数（IPv6 MTU 1280 - 40 - 8）
const MaxPacketSize = 1232

// CpuCount 表示逻辑 CPU 核心数，用于控制并发任务调度上限
var CpuCount = runtime.NumCPU()
