package preprocess

import (
	"io"
	"log"
	"math"
	"os"

	"github.com/packagewjx/deepcluster/internal/classify"
	"github.com/packagewjx/deepcluster/pkg/core"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const OutputPrecision = 6

var logger = log.New(os.Stdout, "preprocess: ", log.LstdFlags|log.Lshortfile|log.Lmsgprefix)

func Standardize() Preprocessor {
	return &standardize{}
}

// standardize 按列减去均值再除以标准差。方差为0的列只减去均值。
type standardize struct {
}

func (s standardize) Preprocess(data *core.Matrix) {
	rows, cols := data.Dims()
	if rows == 0 {
		return
	}
	column := make([]float64, rows)
	for j := 0; j < cols; j++ {
		for i := 0; i < rows; i++ {
			column[i] = data.At(i, j)
		}
		mean, std := stat.PopMeanStdDev(column, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		for i := 0; i < rows; i++ {
			data.Set(i, j, (column[i]-mean)/std)
		}
	}
}

func L2Normalize() Preprocessor {
	return &l2Normalize{}
}

// l2Normalize 每行除以其L2范数，范数为0的行保持不变
type l2Normalize struct {
}

func (l l2Normalize) Preprocess(data *core.Matrix) {
	rows, _ := data.Dims()
	for i := 0; i < rows; i++ {
		row := data.RawRow(i)
		norm := floats.Norm(row, 2)
		if norm == 0 {
			continue
		}
		floats.Scale(1/norm, row)
	}
}

// NormalizeEmbeddings 读取第一列为名称的嵌入向量csv，处理后按相同格式写出
func NormalizeEmbeddings(in io.Reader, out io.Writer, p Preprocessor) error {
	logger.Println("正在读取数据")
	table, err := classify.NewDataLoader(classify.CSV).Load(in, 0, nil)
	if err != nil {
		return errors.Wrap(err, "读取数据失败")
	}

	logger.Printf("读取完毕，共%d条，正在转换数据", len(table.Names))
	p.Preprocess(table.Data)

	logger.Println("转换完毕，正在写出数据")
	return classify.OutputResult(table.Data, table.Names, out, OutputPrecision)
}
