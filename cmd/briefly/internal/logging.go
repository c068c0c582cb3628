package internal

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/DreamCats/briefly/internal/logger"
)

// SetupLogging 为子命令创建日志：同时写入 stderr 与 ~/.briefly/logs 下的文件。
// 返回 logger 与关闭日志文件的函数。日志目录不可用时只写 stderr。
func SetupLogging(subcommand, target, level string, jsonOutput bool) (logger.Logger, func()) {
	cfg := logger.DefaultConfig()
	cfg.Level = logger.LogLevel(level)
	cfg.JSON = jsonOutput

	closeFn := func() {}
	logPath, err := logFilePath(subcommand, target)
	if err == nil {
		var logFile *os.File
		logFile, err = os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			cfg.Output = io.MultiWriter(os.Stderr, logFile)
			closeFn = func() { _ = logFile.Close() }
		}
	}

	log := logger.New(cfg)
	if err != nil {
		log.Warn("log file disabled", "error", err)
	} else {
		log.Debug("log file", "path", logPath)
	}
	return log, closeFn
}

func logFilePath(subcommand, target string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	logDir := filepath.Join(homeDir, ".briefly", "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return "", err
	}

	name := sanitizeName(filepath.Base(target))
	hash := sha1.Sum([]byte(target))
	suffix := hex.EncodeToString(hash[:])[:8]
	timestamp := time.Now().Format("20060102-150405")
	filename := fmt.Sprintf("briefly-%s-%s-%s-%s.log", subcommand, name, timestamp, suffix)
	return filepath.Join(logDir, filename), nil
}
