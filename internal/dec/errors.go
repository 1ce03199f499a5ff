package dec

import "fmt"

var ErrInvalidAlpha = fmt.Errorf("alpha必须为大于0的有限数")

var ErrInvalidClusterNumber = fmt.Errorf("类别数量必须大于0")

var ErrInvalidDimension = fmt.Errorf("嵌入维度必须大于0")

// ErrDimensionMismatch 矩阵维度与期望不一致
type ErrDimensionMismatch struct {
	What     string
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("%s维度不匹配：应为%d，实际为%d", e.What, e.Expected, e.Actual)
}
