package server

import (
	"encoding/binary"
	"fmt"
	"math"
)

const float64Size = 8

// encodeVector 将向量按小端序编码，用于存入数据库的二进制列
func encodeVector(v []float64) []byte {
	buf := make([]byte, len(v)*float64Size)
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*float64Size:], math.Float64bits(f))
	}
	return buf
}

func decodeVector(buf []byte) ([]float64, error) {
	if len(buf)%float64Size != 0 {
		return nil, fmt.Errorf("向量数据长度%d不是%d的倍数", len(buf), float64Size)
	}
	v := make([]float64, len(buf)/float64Size)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*float64Size:]))
	}
	return v, nil
}
