package models

import (
	"errors"
	"fmt"
)

var (
	// ErrSelectorMiss 选择器在当前作用域内未匹配任何元素
	ErrSelectorMiss = errors.New("选择器未匹配任何元素")

	// ErrUnsupported 当前页面驱动不支持该操作(如静态模式下执行脚本)
	ErrUnsupported = errors.New("当前页面驱动不支持该操作")
)

// ConfigError 站点配置错误
// 在抓取开始前或入口点展开时发现,属于致命错误
type ConfigError struct {
	// Scope 出错位置,如 "entryPoints[0].to" 或配置文件路径
	Scope string

	// Reason 错误原因
	Reason string

	// Cause 底层错误 (可选)
	Cause error
}

// Error 实现error接口
func (e *ConfigError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("配置错误 [%s]: %s: %v", e.Scope, e.Reason, e.Cause)
	}
	return fmt.Sprintf("配置错误 [%s]: %s", e.Scope, e.Reason)
}

// Unwrap 支持errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// ContractViolation 扩展点约定被破坏
// 例如 custom:<name> 引用了未注册的提取器
type ContractViolation struct {
	Callback string
	Selector string
	Reason   string
}

// Error 实现error接口
func (e *ContractViolation) Error() string {
	return fmt.Sprintf("扩展约定错误 [%s @ %s]: %s", e.Callback, e.Selector, e.Reason)
}

// IsFatal 判断错误是否需要终止整个抓取
// 导航失败、DOM查询失败等仅影响当前URL
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return true
	}
	var cv *ContractViolation
	return errors.As(err, &cv)
}
