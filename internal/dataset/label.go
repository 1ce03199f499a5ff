package dataset

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Metric 文件名中编码的标签种类。文件名格式为 <前缀>_<density>_<mhi>_<ed>.<扩展名>
type Metric string

const (
	Density = Metric("density")
	MHI     = Metric("mhi")
	ED      = Metric("ed")
)

const labelSplitter = "_"

// 只有这些扩展名会被去掉，否则最后一个字段中的小数点会被当作扩展名
var imageExtensions = map[string]bool{
	".tif":  true,
	".tiff": true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

var ErrUnknownMetric = fmt.Errorf("不支持的标签种类")

func ParseMetric(name string) (Metric, error) {
	switch m := Metric(name); m {
	case Density, MHI, ED:
		return m, nil
	default:
		return "", fmt.Errorf("%w：%s，可选值：density、mhi、ed", ErrUnknownMetric, name)
	}
}

// ParseLabel 从文件名中解析标签。density为倒数第三个字段，mhi为倒数第二个字段且必须为整数，
// ed为最后一个字段（去掉图像扩展名）。
func ParseLabel(fileName string, metric Metric) (float64, error) {
	base := path.Base(fileName)
	if ext := path.Ext(base); imageExtensions[strings.ToLower(ext)] {
		base = strings.TrimSuffix(base, ext)
	}
	parts := strings.Split(base, labelSplitter)
	if len(parts) < 3 {
		return 0, fmt.Errorf("文件名%s中的字段不足3个", fileName)
	}

	switch metric {
	case Density:
		return parseFloat(fileName, parts[len(parts)-3])
	case MHI:
		v, err := strconv.ParseInt(parts[len(parts)-2], 10, 64)
		if err != nil {
			return 0, errors.Wrap(err, fmt.Sprintf("文件名%s中的mhi不是整数", fileName))
		}
		return float64(v), nil
	case ED:
		return parseFloat(fileName, parts[len(parts)-1])
	default:
		return 0, fmt.Errorf("%w：%s", ErrUnknownMetric, metric)
	}
}

func parseFloat(fileName, field string) (float64, error) {
	v, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return 0, errors.Wrap(err, fmt.Sprintf("文件名%s中的字段%s不是数字", fileName, field))
	}
	return v, nil
}
