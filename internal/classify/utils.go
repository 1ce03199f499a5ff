package classify

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// OutputResult 每行输出一个向量。names不为空时第一列输出名称。
func OutputResult(data mat.Matrix, names []string, output io.Writer, precision int) error {
	rows, cols := data.Dims()
	if names != nil && len(names) != rows {
		return fmt.Errorf("名称数量%d与行数%d不符", len(names), rows)
	}

	writer := csv.NewWriter(output)
	for i := 0; i < rows; i++ {
		record := make([]string, 0, cols+1)
		if names != nil {
			record = append(record, names[i])
		}
		for j := 0; j < cols; j++ {
			record = append(record, strconv.FormatFloat(data.At(i, j), 'f', precision, 64))
		}
		err := writer.Write(record)
		if err != nil {
			return errors.Wrap(err, "写入数据错误")
		}
	}

	writer.Flush()
	return errors.Wrap(writer.Error(), "写入数据错误")
}

// OutputAssignment 每行输出名称、类别以及各类别的概率
func OutputAssignment(names []string, labels []int, q mat.Matrix, output io.Writer, precision int) error {
	rows, cols := q.Dims()
	if len(names) != rows || len(labels) != rows {
		return fmt.Errorf("名称数量%d、类别数量%d与行数%d不符", len(names), len(labels), rows)
	}

	writer := csv.NewWriter(output)
	for i := 0; i < rows; i++ {
		record := make([]string, 0, cols+2)
		record = append(record, names[i], strconv.Itoa(labels[i]))
		for j := 0; j < cols; j++ {
			record = append(record, strconv.FormatFloat(q.At(i, j), 'f', precision, 64))
		}
		err := writer.Write(record)
		if err != nil {
			return errors.Wrap(err, "写入数据错误")
		}
	}

	writer.Flush()
	return errors.Wrap(writer.Error(), "写入数据错误")
}
