package pipeline

import (
	"encoding/binary"
	"math"
)

// RowKey 将一行数值编码为精确匹配键（按位编码，不做任何舍入）
func RowKey(row []float64) string {
	buf := make([]byte, 8*len(row))
	for i, value := range row {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(value))
	}
	return string(buf)
}
