package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolveFolder 将文档目录转换为绝对路径并解析符号链接。
// 目录不存在或不是目录时返回 error。
func ResolveFolder(folder string) (string, error) {
	if folder == "" {
		folder = "."
	}
	absPath, err := filepath.Abs(expandHome(folder))
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		absPath = resolved
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", absPath)
	}
	return absPath, nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
}

// sanitizeName 将名称中的危险字符替换为下划线，用于生成文件名。
func sanitizeName(name string) string {
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "briefly"
	}
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') ||
			r == '.' || r == '_' || r == '-' {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	if b.Len() == 0 {
		return "briefly"
	}
	return b.String()
}
