package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/anderskjeldsen/am-lang-compiler/internal/build"
	"github.com/anderskjeldsen/am-lang-compiler/internal/errors"
	"github.com/anderskjeldsen/am-lang-compiler/internal/project"
	"github.com/anderskjeldsen/am-lang-compiler/internal/tooling"
)

const (
	Version = "0.1.0"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "build":
		cmdBuild(args)
	case "check":
		cmdCheck(args)
	case "version", "-v", "--version":
		cmdVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf("am-lang compiler v%s\n\n", Version)
	fmt.Println("Usage:")
	fmt.Println("  amlc <command> [options] [path]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  build           compile the project to C")
	fmt.Println("  check           run diagnostics without emitting C")
	fmt.Println("  version         print version information")
	fmt.Println("  help            print this message")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -target <name>  build target from am.toml (selects the feature set)")
	fmt.Println("  -o <dir>        output directory for generated C (default: out)")
	fmt.Println("  -workers <n>    parallel workers (default: from am.toml)")
	fmt.Println("  -json           emit diagnostics as JSON on stdout")
	fmt.Println("  -verbose        enable development logging")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  amlc build")
	fmt.Println("  amlc build -target amiga -o build/c")
	fmt.Println("  amlc check -json")
}

// buildFlags build 与 check 共用的选项
type buildFlags struct {
	target  string
	output  string
	workers int
	asJSON  bool
	verbose bool
	path    string
}

func parseBuildFlags(name string, args []string) *buildFlags {
	bf := &buildFlags{}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.StringVar(&bf.target, "target", "", "build target from am.toml")
	fs.StringVar(&bf.output, "o", "out", "output directory for generated C")
	fs.IntVar(&bf.workers, "workers", 0, "parallel workers")
	fs.BoolVar(&bf.asJSON, "json", false, "emit diagnostics as JSON")
	fs.BoolVar(&bf.verbose, "verbose", false, "enable development logging")

	fs.Usage = func() {
		fmt.Printf("Usage: amlc %s [options] [path]\n\n", name)
		fmt.Println("Options:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	bf.path = "."
	if fs.NArg() > 0 {
		bf.path = fs.Arg(0)
	}
	return bf
}

func newLogger(verbose bool) *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	log, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// compile 定位项目并跑完整条流水线
func compile(bf *buildFlags) *build.Result {
	log := newLogger(bf.verbose)
	defer log.Sync()

	proj, err := project.Open(bf.path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "amlc: %v\n", err)
		os.Exit(1)
	}
	log.Debug("project located",
		zap.String("root", proj.Root),
		zap.String("package", proj.Manifest.Package.Name))

	sources, err := proj.Sources()
	if err != nil {
		fmt.Fprintf(os.Stderr, "amlc: %v\n", err)
		os.Exit(1)
	}
	if len(sources) == 0 {
		fmt.Fprintln(os.Stderr, "amlc: no source files found")
		os.Exit(1)
	}

	inputs, err := build.LoadInputs(sources)
	if err != nil {
		fmt.Fprintf(os.Stderr, "amlc: %v\n", err)
		os.Exit(1)
	}

	workers := bf.workers
	if workers <= 0 {
		workers = proj.Manifest.Build.Workers
	}

	result, err := build.New(build.Options{
		Workers:  workers,
		Features: build.MakeFeatureSet(proj.Manifest.Features(bf.target)),
		Logger:   log,
	}).Run(inputs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "amlc: internal error: %v\n", err)
		os.Exit(1)
	}
	return result
}

// report 输出诊断；存在错误时结束进程
func report(result *build.Result, asJSON bool) {
	if asJSON {
		if err := tooling.WriteJSON(os.Stdout, result.Reporter); err != nil {
			fmt.Fprintf(os.Stderr, "amlc: %v\n", err)
			os.Exit(1)
		}
	} else if len(result.Reporter.All()) > 0 {
		f := errors.NewColorFormatter()
		fmt.Fprint(os.Stderr, f.FormatAll(result.Reporter))
	}
	if result.Reporter.HasErrors() {
		os.Exit(1)
	}
}

// cmdBuild 编译项目并写出生成的 C
func cmdBuild(args []string) {
	bf := parseBuildFlags("build", args)
	result := compile(bf)
	report(result, bf.asJSON)

	out := result.Output
	if err := os.MkdirAll(bf.output, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "amlc: %v\n", err)
		os.Exit(1)
	}

	write := func(name, content string) {
		path := filepath.Join(bf.output, name)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "amlc: %v\n", err)
			os.Exit(1)
		}
	}

	write("amrt.h", out.RuntimeHeader)
	write("aml_program.h", out.ProgramHeader)
	for file, unit := range out.Units {
		write(unitFileName(file), unit)
	}

	fmt.Printf("wrote %d translation units to %s\n", len(out.Units), bf.output)
}

// unitFileName 源文件名映射为 .c 文件名
func unitFileName(source string) string {
	base := filepath.Base(source)
	ext := filepath.Ext(base)
	if ext != "" {
		base = base[:len(base)-len(ext)]
	}
	return base + ".c"
}

// cmdCheck 只诊断，不写产物
func cmdCheck(args []string) {
	bf := parseBuildFlags("check", args)
	result := compile(bf)
	report(result, bf.asJSON)
	if !bf.asJSON {
		fmt.Printf("checked %d files, no errors\n", result.Stats.FilesParsed)
	}
}

func cmdVersion() {
	fmt.Printf("am-lang compiler v%s\n", Version)
	fmt.Println("compiles am-lang source to portable C")
}
