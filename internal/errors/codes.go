// Package errors 提供编译器的诊断系统
package errors

// ============================================================================
// 诊断级别
// ============================================================================

// Level 诊断级别
type Level int

const (
	LevelError   Level = iota // 错误
	LevelWarning              // 警告
	LevelNote                 // 提示
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelWarning:
		return "warning"
	case LevelNote:
		return "note"
	default:
		return "unknown"
	}
}

// ============================================================================
// 诊断种类
// ============================================================================
//
// Kind 是稳定的机器可读标签，工具链（JSON 导出、编辑器集成、测试断言）
// 依赖它而不是错误消息文本。新增种类向后兼容，已有种类不得改名。
//
// ============================================================================

// Kind 诊断种类标签
type Kind string

const (
	// 词法/语法阶段
	InvalidToken Kind = "InvalidToken" // 无法识别的字符或损坏的字面量
	SyntaxError  Kind = "SyntaxError"  // 语法结构错误

	// 符号阶段
	UnresolvedSymbol Kind = "UnresolvedSymbol" // 名称无法解析
	DuplicateSymbol  Kind = "DuplicateSymbol"  // 同一全限定名重复声明

	// 类型与绑定阶段
	TypeMismatch         Kind = "TypeMismatch"         // 类型不兼容
	NullSafetyViolation  Kind = "NullSafetyViolation"  // 可空值未收窄即解引用
	AmbiguousOverload    Kind = "AmbiguousOverload"    // 重载决议出现并列最优
	MissingOverride      Kind = "MissingOverride"      // 接口方法未实现
	InvalidTestLocation  Kind = "InvalidTestLocation"  // test 声明位于非测试文件
	InvalidSwitchOrdering Kind = "InvalidSwitchOrdering" // default 分支不在末尾
	DuplicateCaseValue   Kind = "DuplicateCaseValue"   // case 常量值重复

	// 内部
	InternalError Kind = "InternalError" // 编译器自身缺陷
)

// ============================================================================
// 错误码
// ============================================================================

// kindCodes 诊断种类到 E 错误码的映射
var kindCodes = map[Kind]string{
	InvalidToken: "E0001",
	SyntaxError:  "E0002",

	UnresolvedSymbol: "E0100",
	DuplicateSymbol:  "E0101",

	TypeMismatch:          "E0200",
	NullSafetyViolation:   "E0201",
	AmbiguousOverload:     "E0300",
	MissingOverride:       "E0301",
	InvalidTestLocation:   "E0400",
	InvalidSwitchOrdering: "E0500",
	DuplicateCaseValue:    "E0501",

	InternalError: "E0900",
}

// Code 返回诊断种类对应的错误码
func (k Kind) Code() string {
	if code, ok := kindCodes[k]; ok {
		return code
	}
	return "E0000"
}
