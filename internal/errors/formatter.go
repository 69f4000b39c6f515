package errors

import (
	"fmt"
	"strings"
)

// ============================================================================
// 诊断格式化
// ============================================================================
//
// 输出样式:
//
//	error[E0200]: cannot assign String to Int
//	  --> src/main.aml:12:9
//	   |
//	12 |     var x: Int = name;
//	   |                  ^^^^
//	   = hint: add an explicit cast with 'as'
//
// ============================================================================

// ANSI 颜色码
const (
	colorReset = "\033[0m"
	colorRed   = "\033[31;1m"
	colorBlue  = "\033[34;1m"
	colorBold  = "\033[1m"
)

// Formatter 诊断格式化器
type Formatter struct {
	useColor bool
}

// NewFormatter 创建格式化器（默认无颜色，适合日志与测试）
func NewFormatter() *Formatter {
	return &Formatter{}
}

// NewColorFormatter 创建带 ANSI 颜色的格式化器（终端输出）
func NewColorFormatter() *Formatter {
	return &Formatter{useColor: true}
}

// Format 渲染单条诊断
//
// reporter 提供源码行缓存；取不到源码行时退化为单行输出。
func (f *Formatter) Format(d *Diagnostic, reporter *Reporter) string {
	var sb strings.Builder

	// 标题行: error[E0200]: message
	sb.WriteString(f.paint(colorRed, fmt.Sprintf("%s[%s]", d.Level, d.Code())))
	sb.WriteString(": ")
	sb.WriteString(f.paint(colorBold, d.Message))
	sb.WriteByte('\n')

	// 位置行
	sb.WriteString("  ")
	sb.WriteString(f.paint(colorBlue, "-->"))
	sb.WriteString(" ")
	sb.WriteString(d.Pos.String())
	sb.WriteByte('\n')

	// 源码摘录与脱字符
	line := reporter.SourceLine(d.Pos.Filename, d.Pos.Line)
	if line != "" && d.Pos.Column > 0 {
		lineNum := fmt.Sprintf("%d", d.Pos.Line)
		gutter := strings.Repeat(" ", len(lineNum))

		sb.WriteString(f.paint(colorBlue, gutter+" |"))
		sb.WriteByte('\n')

		sb.WriteString(f.paint(colorBlue, lineNum+" |"))
		sb.WriteString(" ")
		sb.WriteString(line)
		sb.WriteByte('\n')

		sb.WriteString(f.paint(colorBlue, gutter+" |"))
		sb.WriteString(" ")
		sb.WriteString(strings.Repeat(" ", caretOffset(line, d.Pos.Column)))
		sb.WriteString(f.paint(colorRed, strings.Repeat("^", f.caretWidth(d))))
		sb.WriteByte('\n')
	}

	// 建议
	for _, hint := range d.Hints {
		sb.WriteString("  ")
		sb.WriteString(f.paint(colorBlue, "="))
		sb.WriteString(" hint: ")
		sb.WriteString(hint)
		sb.WriteByte('\n')
	}

	return sb.String()
}

// FormatAll 按排序后的顺序渲染全部诊断，末尾附计数摘要
func (f *Formatter) FormatAll(reporter *Reporter) string {
	var sb strings.Builder

	diags := reporter.Sorted()
	for _, d := range diags {
		sb.WriteString(f.Format(d, reporter))
		sb.WriteByte('\n')
	}

	if n := reporter.ErrorCount(); n > 0 {
		word := "errors"
		if n == 1 {
			word = "error"
		}
		sb.WriteString(f.paint(colorRed, fmt.Sprintf("compilation failed: %d %s", n, word)))
		sb.WriteByte('\n')
	}

	return sb.String()
}

// caretWidth 计算脱字符宽度
//
// 有结束位置且同行时覆盖整个范围，否则宽度为 1。
func (f *Formatter) caretWidth(d *Diagnostic) int {
	if d.End.IsValid() && d.End.Line == d.Pos.Line && d.End.Column > d.Pos.Column {
		return d.End.Column - d.Pos.Column
	}
	return 1
}

// caretOffset 计算脱字符前的空白宽度
//
// 源码行中的制表符按原样计入，保证脱字符与被指 token 对齐
// （渲染时假定制表符宽度为 1；列号从 1 开始）。
func caretOffset(line string, column int) int {
	offset := column - 1
	if offset < 0 {
		offset = 0
	}
	if offset > len(line) {
		offset = len(line)
	}
	return offset
}

// paint 按需包裹 ANSI 颜色
func (f *Formatter) paint(color, s string) string {
	if !f.useColor {
		return s
	}
	return color + s + colorReset
}
