// Package build 实现编译流水线驱动
//
// 流水线分四个阶段：并行词法+语法分析、单线程符号表构建（硬屏障）、
// 针对不可变符号表的并行绑定、全程序无错误时的代码生成。
// 阶段之间用屏障同步，阶段内部无共享可变状态。
package build

import (
	"os"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/anderskjeldsen/am-lang-compiler/internal/ast"
	"github.com/anderskjeldsen/am-lang-compiler/internal/binder"
	"github.com/anderskjeldsen/am-lang-compiler/internal/cgen"
	"github.com/anderskjeldsen/am-lang-compiler/internal/errors"
	"github.com/anderskjeldsen/am-lang-compiler/internal/lexer"
	"github.com/anderskjeldsen/am-lang-compiler/internal/parser"
	"github.com/anderskjeldsen/am-lang-compiler/internal/project"
	"github.com/anderskjeldsen/am-lang-compiler/internal/symbols"
)

// DefaultWorkers 默认并行工作协程数
const DefaultWorkers = 4

// ============================================================================
// 输入与结果
// ============================================================================

// Input 一个待编译的源码单元
type Input struct {
	Path   string // 文件名（诊断定位用）
	Source string // 源码内容
	IsTest bool   // 是否位于测试根目录下
}

// LoadInputs 读取发现到的源文件内容
//
// 单个文件读取失败不中断其余文件，全部失败聚合后返回。
func LoadInputs(sources []project.SourceFile) ([]Input, error) {
	var errs error
	inputs := make([]Input, 0, len(sources))
	for _, s := range sources {
		content, err := os.ReadFile(s.Path)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		inputs = append(inputs, Input{
			Path:   s.Path,
			Source: string(content),
			IsTest: s.IsTest,
		})
	}
	return inputs, errs
}

// Result 一次编译的产物
type Result struct {
	Files    []*ast.File      // 语法树（输入顺序）
	Table    *symbols.Table   // 符号表
	Bindings *binder.Bindings // 合并后的绑定结果
	Output   *cgen.Output     // 生成的 C 代码；存在诊断错误时为 nil
	Reporter *errors.Reporter // 全部诊断
	Stats    Stats
}

// Stats 流水线统计
type Stats struct {
	FilesParsed int64 // 完成语法分析的文件数
	FilesFailed int64 // 带语法错误的文件数
	FilesBound  int64 // 完成绑定的文件数
}

// ============================================================================
// 流水线
// ============================================================================

// Options 流水线配置
type Options struct {
	Workers  int              // 并行工作协程数，0 表示默认值
	Features binder.FeatureSet // 编译单元启用的特性集合
	Logger   *zap.Logger      // 为 nil 时不输出日志
}

// Pipeline 编译流水线
type Pipeline struct {
	opts Options
	log  *zap.Logger

	parsed atomic.Int64
	failed atomic.Int64
	bound  atomic.Int64
}

// New 创建流水线
func New(opts Options) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{opts: opts, log: log}
}

// Run 执行完整编译
//
// 返回的 error 只反映流水线自身的故障（内部不变量被破坏）；
// 用户源码的问题通过 Result.Reporter 报告，此时 Output 为 nil。
func (p *Pipeline) Run(inputs []Input) (*Result, error) {
	reporter := errors.NewReporter()

	files := p.parseAll(inputs, reporter)

	// 硬屏障：符号表构建要求所有文件完成语法分析
	builder := symbols.NewBuilder(reporter)
	for _, f := range files {
		builder.AddFile(f)
	}
	table := builder.Finish()
	p.log.Debug("symbol table built",
		zap.Int("classes", len(table.Classes())),
		zap.Int("functions", len(table.AllFunctions())))

	bindings := p.bindAll(files, table, reporter)

	result := &Result{
		Files:    files,
		Table:    table,
		Bindings: bindings,
		Reporter: reporter,
		Stats: Stats{
			FilesParsed: p.parsed.Load(),
			FilesFailed: p.failed.Load(),
			FilesBound:  p.bound.Load(),
		},
	}

	// 任何文件存在诊断错误都跳过代码生成：跨文件类型信息可能已被污染
	if reporter.HasErrors() {
		p.log.Info("skipping code generation",
			zap.Int("errors", reporter.ErrorCount()))
		return result, nil
	}

	output, err := cgen.New(table, bindings).Generate(files)
	if err != nil {
		return result, err
	}
	result.Output = output
	p.log.Info("code generation complete",
		zap.Int("units", len(output.Units)))
	return result, nil
}

// parseAll 并行词法+语法分析
//
// 工作协程之间无共享可变状态，语法树按输入序落位。
// 单个文件的错误不影响兄弟文件的分析。
func (p *Pipeline) parseAll(inputs []Input, reporter *errors.Reporter) []*ast.File {
	files := make([]*ast.File, len(inputs))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < p.opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				files[i] = p.parseOne(inputs[i], reporter)
			}
		}()
	}
	for i := range inputs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	p.log.Debug("parse phase complete",
		zap.Int64("parsed", p.parsed.Load()),
		zap.Int64("failed", p.failed.Load()))
	return files
}

func (p *Pipeline) parseOne(in Input, reporter *errors.Reporter) *ast.File {
	reporter.SetSource(in.Path, in.Source)

	l := lexer.New(in.Source, in.Path)
	tokens := l.ScanTokens()
	for _, le := range l.Errors() {
		reporter.Addf(errors.InvalidToken, le.Pos, "%s", le.Message)
	}

	ps := parser.New(tokens, in.Path)
	file := ps.ParseFile()
	file.IsTest = in.IsTest

	perrs := ps.Errors()
	for _, pe := range perrs {
		reporter.Addf(errors.SyntaxError, pe.Pos, "%s", pe.Message)
	}

	p.parsed.Inc()
	if l.HasErrors() || len(perrs) > 0 {
		p.failed.Inc()
		p.log.Debug("parse failed", zap.String("file", in.Path),
			zap.Int("errors", len(l.Errors())+len(perrs)))
	}
	return file
}

// bindAll 并行绑定
//
// 符号表此刻已不可变。每个文件用独立的绑定器处理：文件内的
// mock 与特性覆盖状态是自上而下建立的，必须单线程走完一个文件。
// 绑定结果在互斥锁下合并。
func (p *Pipeline) bindAll(files []*ast.File, table *symbols.Table, reporter *errors.Reporter) *binder.Bindings {
	merged := binder.NewBindings()
	var mu sync.Mutex

	jobs := make(chan *ast.File)
	var wg sync.WaitGroup
	for w := 0; w < p.opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for f := range jobs {
				b := binder.New(table, reporter, p.opts.Features)
				bs := b.BindFile(f)
				mu.Lock()
				merged.Merge(bs)
				mu.Unlock()
				p.bound.Inc()
			}
		}()
	}
	for _, f := range files {
		jobs <- f
	}
	close(jobs)
	wg.Wait()

	p.log.Debug("bind phase complete", zap.Int64("files", p.bound.Load()))
	return merged
}

// MakeFeatureSet 目标特性映射转为绑定器特性集合
func MakeFeatureSet(features map[string]bool) binder.FeatureSet {
	set := binder.FeatureSet{}
	for name, on := range features {
		if on {
			set[name] = true
		}
	}
	return set
}
