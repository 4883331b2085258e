package parser

import (
	"fmt"
	"strings"

	"vandaq/internal/pkg"
)

type columnRole int

const (
	roleIgnore   columnRole = iota // x 列，丢弃
	roleParam                      // 普通参数列
	roleDate                       // inst_date
	roleTime                       // inst_time
	roleDateTime                   // inst_datetime
)

// column 是编译后的单列定义
type column struct {
	role    columnRole
	name    string // 参数名（roleParam 时有效）
	format  string // f|h|s（roleParam 时有效）
	layout  string // Go 时间布局（时间列有效）
	unit    string
	acqType string
}

// Schema 是编译后的仪器行结构，编译期完成所有校验与时间格式翻译
type Schema struct {
	columns   []column
	delimiter string
	numItems  int
}

// NumItems 返回行内列数
func (s *Schema) NumItems() int { return s.numItems }

// CompileSchema 将流配置编译为可执行的行结构
// 配置错误在这里整体失败，而不是在逐条解析时暴露
func CompileSchema(cfg pkg.StreamConfig) (*Schema, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	items := strings.Split(cfg.Items, ",")
	formats := strings.Split(cfg.Formats, ",")
	units := strings.Split(cfg.Units, ",")
	acqTypes := strings.Split(cfg.AcqTypes, ",")

	columns := make([]column, 0, len(items))
	for i, item := range items {
		c := column{name: item, unit: units[i], acqType: acqTypes[i]}
		switch item {
		case "x":
			c.role = roleIgnore
		case "inst_date":
			c.role = roleDate
		case "inst_time":
			c.role = roleTime
		case "inst_datetime":
			c.role = roleDateTime
		default:
			c.role = roleParam
			c.format = formats[i]
		}
		if c.role == roleDate || c.role == roleTime || c.role == roleDateTime {
			layout, err := translateTimeFormat(formats[i])
			if err != nil {
				return nil, fmt.Errorf("编译时间列 %s 失败: %w", item, err)
			}
			c.layout = layout
		}
		columns = append(columns, c)
	}
	return &Schema{columns: columns, delimiter: cfg.Delimiter, numItems: len(columns)}, nil
}

// strptime 风格的格式码到 Go 参考时间布局的映射
var strptimeToGo = map[byte]string{
	'Y': "2006",
	'y': "06",
	'm': "01",
	'd': "02",
	'H': "15",
	'I': "03",
	'M': "04",
	'S': "05",
	'p': "PM",
	'b': "Jan",
	'B': "January",
	'j': "002",
	'%': "%",
}

// translateTimeFormat 将 %H:%M:%S 之类的格式串翻译为 Go 布局串
func translateTimeFormat(format string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			b.WriteByte(format[i])
			continue
		}
		i++
		if i >= len(format) {
			return "", fmt.Errorf("时间格式 %q 以孤立的 %% 结尾", format)
		}
		ref, ok := strptimeToGo[format[i]]
		if !ok {
			return "", fmt.Errorf("时间格式 %q 中的 %%%c 不可识别", format, format[i])
		}
		b.WriteString(ref)
	}
	return b.String(), nil
}
