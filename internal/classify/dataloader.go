package classify

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"strconv"

	"github.com/packagewjx/deepcluster/pkg/core"
	"github.com/pkg/errors"
)

// Table 带名称列的嵌入向量表
type Table struct {
	Names []string
	Data  *core.Matrix
}

type DataFileLoader interface {
	// Load nameColumn小于0时没有名称列，名称使用行号。removeColumn中的列会被忽略。
	Load(in io.Reader, nameColumn int, removeColumn []int) (*Table, error)
}

type DataFormat string

const (
	CSV = DataFormat("csv")
)

func NewDataLoader(format DataFormat) DataFileLoader {
	switch format {
	case CSV:
		return &csvLoader{}
	default:
		return nil
	}
}

// LoadFile 读取文件，第0列为名称
func LoadFile(fileName string, removeColumn []int) (*Table, error) {
	fin, err := os.Open(fileName)
	if err != nil {
		return nil, errors.Wrap(err, "打开csv文件出错")
	}
	defer func() {
		_ = fin.Close()
	}()
	return NewDataLoader(CSV).Load(fin, 0, removeColumn)
}

type csvLoader struct {
}

func (c *csvLoader) Load(in io.Reader, nameColumn int, removeColumn []int) (*Table, error) {
	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1

	removeSet := make(map[int]struct{})
	for _, rc := range removeColumn {
		removeSet[rc] = struct{}{}
	}

	names := make([]string, 0, 16)
	data := make([][]float64, 0, 16)
	cols := -1

	var record []string
	var err error
	recordRead := 0
	for record, err = reader.Read(); err == nil; record, err = reader.Read() {
		recordRead++

		datum := make([]float64, 0, len(record))
		name := strconv.Itoa(recordRead - 1)
		for i := 0; i < len(record); i++ {
			if i == nameColumn {
				name = record[i]
				continue
			}
			if _, ok := removeSet[i]; ok {
				continue
			}

			float, err := strconv.ParseFloat(record[i], 64)
			if err != nil || math.IsNaN(float) {
				log.Printf("第%d行第%d个数据有误，数据为[%v]", recordRead, i, record[i])
				float = 0
			}
			datum = append(datum, float)
		}

		if cols == -1 {
			cols = len(datum)
		} else if cols != len(datum) {
			return nil, fmt.Errorf("第%d行有%d个数据，与之前的%d个不一致", recordRead, len(datum), cols)
		}
		names = append(names, name)
		data = append(data, datum)
	}

	if err != io.EOF {
		return nil, errors.Wrap(err, "读取数据出错")
	}
	if cols == -1 {
		cols = 0
	}

	matrix, err := core.FromRows(cols, data)
	if err != nil {
		return nil, err
	}
	return &Table{
		Names: names,
		Data:  matrix,
	}, nil
}
