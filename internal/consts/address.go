package consts

import "txlog-sol/internal/types"

// Base58 地址常量
const (
	ComputeBudgetProgramIdStr = "ComputeBudget111111111111111111111111111111"
)

var (
	ComputeBudgetProgram = types.PubkeyFromBase58(ComputeBudgetProgramIdStr)
)
