package internal

import (
	"github.com/DreamCats/briefly/internal/config"
)

// LoadConfig 从指定路径读取 YAML 配置；路径为空时使用默认位置。
// 默认文件不存在时返回内置默认配置。
func LoadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromFile(expandHome(configPath))
	}
	return config.Load()
}

// ConfigPath 返回 init 应写入的配置路径。
func ConfigPath(configPath string) (string, error) {
	if configPath != "" {
		return expandHome(configPath), nil
	}
	return config.DefaultPath()
}
