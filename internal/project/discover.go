package project

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ============================================================================
// 源文件发现
// ============================================================================

// SourceFile 发现到的源文件
type SourceFile struct {
	Path   string // 绝对路径
	IsTest bool   // 是否位于测试根目录下
}

// Sources 枚举项目内全部源文件
//
// 依次遍历 source_dirs 与 test_dirs，后者的文件打上测试标记。
// 不存在的目录跳过。结果按路径排序，保证同一项目的编译顺序确定。
func (p *Project) Sources() ([]SourceFile, error) {
	seen := make(map[string]bool)
	var result []SourceFile

	collect := func(dirs []string, isTest bool) error {
		for _, dir := range dirs {
			root := filepath.Join(p.Root, dir)
			if _, err := os.Stat(root); err != nil {
				continue
			}
			err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if d.IsDir() || !strings.HasSuffix(path, SourceFileExtension) {
					return nil
				}
				abs, err := filepath.Abs(path)
				if err != nil {
					return err
				}
				if seen[abs] {
					return nil
				}
				seen[abs] = true
				result = append(result, SourceFile{Path: abs, IsTest: isTest})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}

	if err := collect(p.Manifest.Build.SourceDirs, false); err != nil {
		return nil, err
	}
	if err := collect(p.Manifest.Build.TestDirs, true); err != nil {
		return nil, err
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Path < result[j].Path })
	return result, nil
}
