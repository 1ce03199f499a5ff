package core

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Matrix 按行存储的稠密矩阵。与mat.Dense不同，允许0行，用于表示空批次。
type Matrix struct {
	rows int
	cols int
	data []float64
}

var _ mat.Matrix = &Matrix{}

// NewMatrix 创建rows*cols的矩阵。data为nil时分配零值，否则直接使用data作为底层存储。
func NewMatrix(rows, cols int, data []float64) *Matrix {
	if rows < 0 || cols < 0 {
		panic(fmt.Sprintf("矩阵维度不能为负数：%dx%d", rows, cols))
	}
	if data == nil {
		data = make([]float64, rows*cols)
	} else if len(data) != rows*cols {
		panic(fmt.Sprintf("数据长度%d与维度%dx%d不符", len(data), rows, cols))
	}
	return &Matrix{rows: rows, cols: cols, data: data}
}

// FromRows 使用二维数组创建矩阵，每一行的长度必须等于cols。
func FromRows(cols int, rows [][]float64) (*Matrix, error) {
	m := NewMatrix(len(rows), cols, nil)
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("第%d行长度为%d，应为%d", i, len(row), cols)
		}
		copy(m.RawRow(i), row)
	}
	return m, nil
}

// FromDense 复制gonum矩阵的数据。
func FromDense(d mat.Matrix) *Matrix {
	r, c := d.Dims()
	m := NewMatrix(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			m.data[i*c+j] = d.At(i, j)
		}
	}
	return m
}

func (m *Matrix) Dims() (r, c int) {
	return m.rows, m.cols
}

func (m *Matrix) At(i, j int) float64 {
	m.check(i, j)
	return m.data[i*m.cols+j]
}

func (m *Matrix) Set(i, j int, v float64) {
	m.check(i, j)
	m.data[i*m.cols+j] = v
}

func (m *Matrix) T() mat.Matrix {
	return mat.Transpose{Matrix: m}
}

// RawRow 返回第i行的切片，修改会反映到矩阵中。
func (m *Matrix) RawRow(i int) []float64 {
	if i < 0 || i >= m.rows {
		panic(fmt.Sprintf("行号%d越界，共%d行", i, m.rows))
	}
	return m.data[i*m.cols : (i+1)*m.cols]
}

// RawData 返回底层存储。
func (m *Matrix) RawData() []float64 {
	return m.data
}

func (m *Matrix) IsEmpty() bool {
	return m.rows == 0 || m.cols == 0
}

// Dense 转换为gonum矩阵，共享底层存储。空矩阵无法表示为mat.Dense，返回nil。
func (m *Matrix) Dense() *mat.Dense {
	if m.IsEmpty() {
		return nil
	}
	return mat.NewDense(m.rows, m.cols, m.data)
}

func (m *Matrix) Clone() *Matrix {
	data := make([]float64, len(m.data))
	copy(data, m.data)
	return &Matrix{rows: m.rows, cols: m.cols, data: data}
}

// Rows 返回各行数据的副本。
func (m *Matrix) Rows() [][]float64 {
	result := make([][]float64, m.rows)
	for i := range result {
		result[i] = make([]float64, m.cols)
		copy(result[i], m.RawRow(i))
	}
	return result
}

// SelectRows 按照下标复制出新的矩阵。
func (m *Matrix) SelectRows(idx []int) *Matrix {
	result := NewMatrix(len(idx), m.cols, nil)
	for i, r := range idx {
		copy(result.RawRow(i), m.RawRow(r))
	}
	return result
}

func (m *Matrix) check(i, j int) {
	if i < 0 || i >= m.rows || j < 0 || j >= m.cols {
		panic(fmt.Sprintf("下标(%d,%d)越界，矩阵维度为%dx%d", i, j, m.rows, m.cols))
	}
}

// ArgMax 返回每一行最大值所在的列。列数为0时返回-1。
func ArgMax(m *Matrix) []int {
	result := make([]int, m.rows)
	for i := range result {
		if m.cols == 0 {
			result[i] = -1
			continue
		}
		result[i] = floats.MaxIdx(m.RawRow(i))
	}
	return result
}

const LineBreak = '\n'

const Splitter = ","
