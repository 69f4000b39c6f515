package errors

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/anderskjeldsen/am-lang-compiler/internal/token"
)

// ============================================================================
// 诊断对象
// ============================================================================

// Diagnostic 单条诊断
type Diagnostic struct {
	Kind    Kind           // 机器可读的种类标签
	Level   Level          // 级别
	Pos     token.Position // 起始位置
	End     token.Position // 结束位置（可为零值）
	Message string         // 人类可读的消息
	Hints   []string       // 修复建议
}

// New 创建一条错误级诊断
func New(kind Kind, pos token.Position, format string, args ...interface{}) *Diagnostic {
	return &Diagnostic{
		Kind:    kind,
		Level:   LevelError,
		Pos:     pos,
		Message: fmt.Sprintf(format, args...),
	}
}

// WithEnd 设置结束位置
func (d *Diagnostic) WithEnd(end token.Position) *Diagnostic {
	d.End = end
	return d
}

// WithHint 追加一条修复建议
func (d *Diagnostic) WithHint(hint string) *Diagnostic {
	d.Hints = append(d.Hints, hint)
	return d
}

// Code 返回错误码
func (d *Diagnostic) Code() string {
	return d.Kind.Code()
}

func (d *Diagnostic) Error() string {
	return fmt.Sprintf("%s: %s[%s]: %s", d.Pos, d.Level, d.Code(), d.Message)
}

// ============================================================================
// 报告器
// ============================================================================

// Reporter 诊断收集器
//
// 并行绑定阶段的多个工作协程共享一个报告器，所有方法并发安全。
// 诊断的输出顺序与收集顺序无关：Sorted() 按文件、行、列排序，
// 保证同一输入产生确定的诊断序列。
type Reporter struct {
	mu          sync.Mutex
	diagnostics []*Diagnostic
	sourceCache map[string][]string
}

// NewReporter 创建诊断收集器
func NewReporter() *Reporter {
	return &Reporter{
		sourceCache: make(map[string][]string),
	}
}

// Add 收集一条诊断
func (r *Reporter) Add(d *Diagnostic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diagnostics = append(r.diagnostics, d)
}

// Addf 收集一条错误级诊断
func (r *Reporter) Addf(kind Kind, pos token.Position, format string, args ...interface{}) {
	r.Add(New(kind, pos, format, args...))
}

// HasErrors 是否存在错误级诊断
func (r *Reporter) HasErrors() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.diagnostics {
		if d.Level == LevelError {
			return true
		}
	}
	return false
}

// ErrorCount 错误级诊断数量
func (r *Reporter) ErrorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, d := range r.diagnostics {
		if d.Level == LevelError {
			count++
		}
	}
	return count
}

// All 返回全部诊断（收集顺序）
func (r *Reporter) All() []*Diagnostic {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]*Diagnostic, len(r.diagnostics))
	copy(result, r.diagnostics)
	return result
}

// Sorted 返回按位置排序的诊断序列
//
// 排序键：文件名、行、列、种类。并行阶段收集顺序不确定，
// 排序后同一输入的诊断输出是确定的。
func (r *Reporter) Sorted() []*Diagnostic {
	result := r.All()

	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.Pos.Filename != b.Pos.Filename {
			return a.Pos.Filename < b.Pos.Filename
		}
		if a.Pos.Line != b.Pos.Line {
			return a.Pos.Line < b.Pos.Line
		}
		if a.Pos.Column != b.Pos.Column {
			return a.Pos.Column < b.Pos.Column
		}
		return a.Kind < b.Kind
	})

	return result
}

// ============================================================================
// 源码缓存（用于诊断渲染）
// ============================================================================

// LoadSource 按需加载源文件到缓存
func (r *Reporter) LoadSource(filename string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sourceCache[filename]; ok {
		return nil
	}

	content, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	r.sourceCache[filename] = strings.Split(string(content), "\n")
	return nil
}

// SetSource 直接设置源码内容（内存中的源码或测试）
func (r *Reporter) SetSource(filename, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sourceCache[filename] = strings.Split(content, "\n")
}

// SourceLine 取某一行源码，越界返回空串
func (r *Reporter) SourceLine(filename string, line int) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if lines, ok := r.sourceCache[filename]; ok {
		if line > 0 && line <= len(lines) {
			return lines[line-1]
		}
	}
	return ""
}
