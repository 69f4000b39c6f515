// Package project 实现 am.toml 项目清单的加载与源文件发现
package project

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// 常量定义
const (
	ManifestFileName    = "am.toml" // 项目清单文件名
	SourceFileExtension = ".aml"    // 源码文件后缀
	DefaultWorkers      = 4         // 默认并行工作协程数
)

// Manifest 项目清单
type Manifest struct {
	Package PackageInfo       `toml:"package"`
	Build   BuildInfo         `toml:"build"`
	Targets map[string]Target `toml:"targets"` // 目标名 -> 目标配置
}

// PackageInfo 包信息
type PackageInfo struct {
	// Name 包名（建议使用域名反转格式，如 com.example.myapp）
	Name string `toml:"name"`

	// Version 版本号（遵循语义化版本，如 1.0.0）
	Version string `toml:"version"`

	// Namespace 根命名空间（如 my.app）
	Namespace string `toml:"namespace"`
}

// BuildInfo 构建配置
type BuildInfo struct {
	// Workers 并行工作协程数，0 表示使用默认值
	Workers int `toml:"workers"`

	// SourceDirs 源码目录列表，空表示 ["src"]
	SourceDirs []string `toml:"source_dirs"`

	// TestDirs 测试根目录列表，空表示 ["tests"]
	// 其下的源文件允许 test 声明。
	TestDirs []string `toml:"test_dirs"`
}

// Target 构建目标
type Target struct {
	// Features 该目标启用的特性名集合（#require / #requireNot 判定依据）
	Features []string `toml:"features"`
}

// Load 从文件加载项目清单
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return Parse(data)
}

// Parse 解析清单内容
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	m.applyDefaults()
	return &m, nil
}

// applyDefaults 填充缺省字段
func (m *Manifest) applyDefaults() {
	if m.Build.Workers <= 0 {
		m.Build.Workers = DefaultWorkers
	}
	if len(m.Build.SourceDirs) == 0 {
		m.Build.SourceDirs = []string{"src"}
	}
	if len(m.Build.TestDirs) == 0 {
		m.Build.TestDirs = []string{"tests"}
	}
}

// Features 返回某目标启用的特性集合
//
// 目标不存在时返回空集合：清单未声明目标的项目按无特性编译，
// 与未写 [targets] 段的最简清单行为一致。
func (m *Manifest) Features(target string) map[string]bool {
	set := make(map[string]bool)
	if t, ok := m.Targets[target]; ok {
		for _, f := range t.Features {
			set[f] = true
		}
	}
	return set
}

// Find 从指定路径向上查找项目清单
// 返回清单文件的完整路径，找不到则返回空字符串
func Find(startPath string) string {
	info, err := os.Stat(startPath)
	if err != nil {
		return ""
	}

	var dir string
	if info.IsDir() {
		dir = startPath
	} else {
		dir = filepath.Dir(startPath)
	}

	dir, err = filepath.Abs(dir)
	if err != nil {
		return ""
	}

	for {
		manifest := filepath.Join(dir, ManifestFileName)
		if _, err := os.Stat(manifest); err == nil {
			return manifest
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// 已到达根目录
			return ""
		}
		dir = parent
	}
}

// Open 定位并加载项目：向上查找 am.toml，解析后连同根目录返回
func Open(startPath string) (*Project, error) {
	manifestPath := Find(startPath)
	if manifestPath == "" {
		return nil, fmt.Errorf("%s not found from %s", ManifestFileName, startPath)
	}
	m, err := Load(manifestPath)
	if err != nil {
		return nil, err
	}
	return &Project{
		Root:     filepath.Dir(manifestPath),
		Manifest: m,
	}, nil
}

// Project 已定位的项目
type Project struct {
	Root     string // 清单所在目录
	Manifest *Manifest
}
