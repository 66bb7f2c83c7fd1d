package pipeline

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Dataset 数据集：一个命名的数值矩阵
type Dataset struct {
	Name string
	Rows [][]float64
}

// Rule 验证规则
type Rule interface {
	Check(ds *Dataset) error
	Name() string
}

// Stats 验证统计
type Stats struct {
	TotalChecked int64            `json:"total_checked"`
	Passed       int64            `json:"passed"`
	Rejected     int64            `json:"rejected"`
	Failures     map[string]int64 `json:"failures"`
	LastCheck    time.Time        `json:"last_check"`
}

// Validator 数据集验证器
type Validator struct {
	rules []Rule

	stats     Stats
	statsLock sync.RWMutex
}

// NewValidator 创建验证器；不传规则时使用默认规则
func NewValidator(rules ...Rule) *Validator {
	if len(rules) == 0 {
		rules = []Rule{
			&NaNRule{},
			&DuplicateRowRule{},
		}
	}
	return &Validator{
		rules: rules,
		stats: Stats{
			Failures: make(map[string]int64),
		},
	}
}

// Check 依次应用所有规则，返回第一个失败
func (v *Validator) Check(ds *Dataset) error {
	v.statsLock.Lock()
	defer v.statsLock.Unlock()

	v.stats.TotalChecked++
	v.stats.LastCheck = time.Now()

	for _, rule := range v.rules {
		if err := rule.Check(ds); err != nil {
			v.stats.Rejected++
			v.stats.Failures[rule.Name()]++
			return err
		}
	}

	v.stats.Passed++
	return nil
}

// GetStats 获取统计信息
func (v *Validator) GetStats() Stats {
	v.statsLock.RLock()
	defer v.statsLock.RUnlock()

	stats := v.stats
	stats.Failures = make(map[string]int64, len(v.stats.Failures))
	for name, count := range v.stats.Failures {
		stats.Failures[name] = count
	}
	return stats
}

// CheckPair 检查输入/输出数据集是否配对：行数必须一致
func CheckPair(inputs, outputs *Dataset) error {
	if len(inputs.Rows) != len(outputs.Rows) {
		return fmt.Errorf("%s has %d rows, %s has %d rows",
			inputs.Name, len(inputs.Rows), outputs.Name, len(outputs.Rows))
	}
	return nil
}

// ============ 规则实现 ============

// NaNRule NaN检测规则
type NaNRule struct{}

func (r *NaNRule) Name() string {
	return "nan_detection"
}

func (r *NaNRule) Check(ds *Dataset) error {
	for i, row := range ds.Rows {
		for j, value := range row {
			if math.IsNaN(value) {
				return fmt.Errorf("%s: NaN at row %d, column %d", ds.Name, i, j)
			}
		}
	}
	return nil
}

// DuplicateRowRule 重复行检测规则
type DuplicateRowRule struct{}

func (r *DuplicateRowRule) Name() string {
	return "duplicate_detection"
}

func (r *DuplicateRowRule) Check(ds *Dataset) error {
	seen := make(map[string]int, len(ds.Rows))
	for i, row := range ds.Rows {
		key := RowKey(row)
		if first, exists := seen[key]; exists {
			return fmt.Errorf("%s: row %d duplicates row %d", ds.Name, i, first)
		}
		seen[key] = i
	}
	return nil
}

// WidthRule 行宽一致性检测规则
type WidthRule struct{}

func (r *WidthRule) Name() string {
	return "width_check"
}

func (r *WidthRule) Check(ds *Dataset) error {
	if len(ds.Rows) == 0 {
		return fmt.Errorf("%s: dataset is empty", ds.Name)
	}
	width := len(ds.Rows[0])
	for i, row := range ds.Rows {
		if len(row) != width {
			return fmt.Errorf("%s: row %d has %d values, expected %d", ds.Name, i, len(row), width)
		}
	}
	return nil
}
