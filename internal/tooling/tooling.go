// Package tooling 把编译诊断导出给外部工具
//
// 两种出口：机器可读的 JSON（--json，供 CI 与脚本消费）和
// LSP 的 protocol.Diagnostic（供编辑器集成消费）。两者都只读
// 诊断序列，不回写编译状态。
package tooling

import (
	"io"

	"github.com/segmentio/encoding/json"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"github.com/anderskjeldsen/am-lang-compiler/internal/errors"
)

// ============================================================================
// JSON 导出
// ============================================================================

// JSONDiagnostic 一条 JSON 诊断
//
// 字段名是对外契约，工具链依赖它们，不得改名。
type JSONDiagnostic struct {
	File    string   `json:"file"`
	Line    int      `json:"line"`
	Column  int      `json:"column"`
	EndLine int      `json:"endLine,omitempty"`
	EndCol  int      `json:"endColumn,omitempty"`
	Code    string   `json:"code"`
	Kind    string   `json:"kind"`
	Level   string   `json:"level"`
	Message string   `json:"message"`
	Hints   []string `json:"hints,omitempty"`
}

// JSONReport 一次编译的全部诊断
type JSONReport struct {
	Diagnostics []JSONDiagnostic `json:"diagnostics"`
	ErrorCount  int              `json:"errorCount"`
}

// WriteJSON 把诊断按位置序写成 JSON
func WriteJSON(w io.Writer, reporter *errors.Reporter) error {
	report := JSONReport{
		Diagnostics: make([]JSONDiagnostic, 0),
		ErrorCount:  reporter.ErrorCount(),
	}
	for _, d := range reporter.Sorted() {
		report.Diagnostics = append(report.Diagnostics, toJSON(d))
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func toJSON(d *errors.Diagnostic) JSONDiagnostic {
	jd := JSONDiagnostic{
		File:    d.Pos.Filename,
		Line:    d.Pos.Line,
		Column:  d.Pos.Column,
		Code:    d.Code(),
		Kind:    string(d.Kind),
		Level:   d.Level.String(),
		Message: d.Message,
		Hints:   d.Hints,
	}
	if d.End.Line > 0 {
		jd.EndLine = d.End.Line
		jd.EndCol = d.End.Column
	}
	return jd
}

// ============================================================================
// LSP 导出
// ============================================================================

// ToLSP 把一条诊断转成 LSP 诊断
//
// LSP 的行列号从 0 开始；结束位置缺失时按单字符范围估计。
func ToLSP(d *errors.Diagnostic) protocol.Diagnostic {
	start := protocol.Position{
		Line:      uint32(d.Pos.Line - 1),
		Character: uint32(d.Pos.Column - 1),
	}
	end := protocol.Position{
		Line:      start.Line,
		Character: start.Character + 1,
	}
	if d.End.Line > 0 {
		end = protocol.Position{
			Line:      uint32(d.End.Line - 1),
			Character: uint32(d.End.Column - 1),
		}
	}

	return protocol.Diagnostic{
		Range:    protocol.Range{Start: start, End: end},
		Severity: severityFor(d.Level),
		Code:     d.Code(),
		Source:   "amlc",
		Message:  d.Message,
	}
}

func severityFor(level errors.Level) protocol.DiagnosticSeverity {
	switch level {
	case errors.LevelWarning:
		return protocol.DiagnosticSeverityWarning
	case errors.LevelNote:
		return protocol.DiagnosticSeverityInformation
	default:
		return protocol.DiagnosticSeverityError
	}
}

// GroupByURI 按文件把诊断分组成 LSP 发布单元
//
// 键是 file:// URI，对应 textDocument/publishDiagnostics 的分发粒度。
func GroupByURI(reporter *errors.Reporter) map[uri.URI][]protocol.Diagnostic {
	groups := make(map[uri.URI][]protocol.Diagnostic)
	for _, d := range reporter.Sorted() {
		u := uri.File(d.Pos.Filename)
		groups[u] = append(groups[u], ToLSP(d))
	}
	return groups
}
