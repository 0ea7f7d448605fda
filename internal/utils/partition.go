package utils

import "github.com/cespare/xxhash/v2"

// PartitionOf 按 key 的 xxhash 选择分区，partitions 为 0 时返回 0。
// 同一签名总是落在同一分区。
func PartitionOf(key []byte, partitions uint32) uint32 {
	if partitions == 0 || len(key) == 0 {
		return 0
	}
	return uint32(xxhash.Sum64(key) % uint64(partitions))
}
