// Package alarm 实现基于规则的报警评估：对一批测量记录逐条套用
// 按参数名索引的规则集，命中的规则向记录追加 AlarmEvent。
// 评估是 (记录, 规则集) 的纯函数，不携带任何跨记录状态。
package alarm

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"gopkg.in/yaml.v3"

	"vandaq/internal/pkg"
)

// Condition 规则条件类型
type Condition string

const (
	CondValueLT       Condition = "value_lt"         // 数值小于界限
	CondValueGT       Condition = "value_gt"         // 数值大于界限
	CondValueEQ       Condition = "value_eq"         // 数值等于界限
	CondStringRangeEQ Condition = "string_range_eq"  // 文本定长区间等于期望串
	CondExpr          Condition = "expr"             // expr 表达式
)

// Rule 单条报警规则
// json 标签与管理面 API 的文档形态对齐，yaml 标签面向本地规则文件
type Rule struct {
	Parameter    string    `yaml:"parameter" json:"parameter"`
	Condition    Condition `yaml:"condition" json:"condition"`
	Bound        float64   `yaml:"bound" json:"bound"`             // 数值条件的界限
	RangeStart   int       `yaml:"range_start" json:"range_start"` // 文本条件的起始下标
	RangeEnd     int       `yaml:"range_end" json:"range_end"`     // 文本条件的结束下标（不含）
	Expect       string    `yaml:"expect" json:"expect"`           // 文本条件的期望串
	Expr         string    `yaml:"expr" json:"expr"`               // expr 条件的表达式
	Level        string    `yaml:"alarm_level" json:"alarm_level"`
	Type         string    `yaml:"alarm_type" json:"alarm_type"`
	Message      string    `yaml:"alarm_message" json:"alarm_message"`
	DataImpacted *bool     `yaml:"data_impacted" json:"data_impacted"` // 缺省为 true

	program *vm.Program // 编译后的 expr 程序
}

// compile 在加载期校验并编译规则，配置错误在这里整体失败
func (r *Rule) compile() error {
	if r.Parameter == "" {
		return fmt.Errorf("报警规则校验失败: parameter 不允许为空")
	}
	switch r.Condition {
	case CondValueLT, CondValueGT, CondValueEQ:
	case CondStringRangeEQ:
		if r.RangeStart < 0 || r.RangeEnd <= r.RangeStart {
			return fmt.Errorf("报警规则校验失败: 参数 %s 的文本区间 [%d,%d) 非法", r.Parameter, r.RangeStart, r.RangeEnd)
		}
	case CondExpr:
		program, err := expr.Compile(r.Expr, expr.AsBool(), expr.Env(exprEnv{}))
		if err != nil {
			return fmt.Errorf("报警规则校验失败: 参数 %s 的表达式编译失败: %w", r.Parameter, err)
		}
		r.program = program
	default:
		return fmt.Errorf("报警规则校验失败: 条件类型 %q 不可识别", r.Condition)
	}
	return nil
}

// exprEnv 是 expr 条件可见的求值环境
type exprEnv struct {
	Value     float64 `expr:"value"`
	HasValue  bool    `expr:"has_value"`
	String    string  `expr:"string"`
	Parameter string  `expr:"parameter"`
}

// RuleSet 按参数名索引的规则集
type RuleSet map[string][]Rule

// CompileRules 校验并编译规则列表，按参数名归组
func CompileRules(rules []Rule) (RuleSet, error) {
	set := make(RuleSet)
	for i := range rules {
		if err := rules[i].compile(); err != nil {
			return nil, err
		}
		set[rules[i].Parameter] = append(set[rules[i].Parameter], rules[i])
	}
	return set, nil
}

// rulesFile 规则文件的顶层结构
type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRulesFile 从 yaml 文件加载规则集
func LoadRulesFile(path string) (RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取规则文件失败 %s: %w", path, err)
	}
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("解析规则文件失败 %s: %w", path, err)
	}
	return CompileRules(f.Rules)
}

// LoadRulesHTTP 从管理面按名拉取规则集
func LoadRulesHTTP(baseURL, name string) (RuleSet, error) {
	url := strings.TrimRight(baseURL, "/") + "/api/v1/rulesets/" + name
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("拉取规则集 %s 失败: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("拉取规则集 %s 失败: HTTP %d", name, resp.StatusCode)
	}
	var doc struct {
		Rules []Rule `json:"rules"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("解码规则集 %s 失败: %w", name, err)
	}
	return CompileRules(doc.Rules)
}

// Evaluate 对一批记录套用规则集，返回同一批记录，命中规则的记录追加 AlarmEvent
// 每条规则独立评估，互不短路；无规则命中的记录原样通过
func Evaluate(records []pkg.MeasurementRecord, rules RuleSet) []pkg.MeasurementRecord {
	for i := range records {
		paramRules, ok := rules[records[i].Parameter]
		if !ok {
			continue
		}
		for j := range paramRules {
			if paramRules[j].matches(records[i]) {
				records[i].Alarms = append(records[i].Alarms, paramRules[j].event())
			}
		}
	}
	return records
}

// matches 判断单条规则是否命中
func (r *Rule) matches(rec pkg.MeasurementRecord) bool {
	switch r.Condition {
	case CondValueLT:
		v, ok := rec.Datum.Num()
		return ok && v < r.Bound
	case CondValueGT:
		v, ok := rec.Datum.Num()
		return ok && v > r.Bound
	case CondValueEQ:
		v, ok := rec.Datum.Num()
		return ok && v == r.Bound
	case CondStringRangeEQ:
		s, ok := rec.Datum.Str()
		if !ok || r.RangeEnd > len(s) {
			return false
		}
		return s[r.RangeStart:r.RangeEnd] == r.Expect
	case CondExpr:
		env := exprEnv{Parameter: rec.Parameter}
		if v, ok := rec.Datum.Num(); ok {
			env.Value = v
			env.HasValue = true
		}
		if s, ok := rec.Datum.Str(); ok {
			env.String = s
		}
		out, err := expr.Run(r.program, env)
		if err != nil {
			return false
		}
		hit, _ := out.(bool)
		return hit
	}
	return false
}

// event 由规则生成报警事件，data_impacted 缺省为 true
func (r *Rule) event() pkg.AlarmEvent {
	impacted := true
	if r.DataImpacted != nil {
		impacted = *r.DataImpacted
	}
	return pkg.AlarmEvent{
		Level:        r.Level,
		Type:         r.Type,
		Message:      r.Message,
		DataImpacted: impacted,
	}
}
