package webserver

import (
	"context"

	"github.com/gorilla/mux"
)

// RouteSetup 路由设置接口
// 所有需要注册HTTP路由的组件都应该实现此接口
type RouteSetup interface {
	// SetupRoutes 设置组件的HTTP路由
	SetupRoutes(router *mux.Router) error
}

// ComponentManager 组件管理器接口
// 定义了组件的完整生命周期管理和路由集成能力
type ComponentManager interface {
	RouteSetup

	// Start 启动组件
	Start(ctx context.Context) error

	// Stop 停止组件
	Stop(ctx context.Context) error

	// IsEnabled 检查组件是否启用
	IsEnabled() bool

	// IsRunning 检查组件是否正在运行
	IsRunning() bool

	// GetStats 获取组件的统计信息
	GetStats() map[string]interface{}

	// GetContext 获取组件的上下文，未启动时可能为nil
	GetContext() context.Context
}

// ComponentRegistry 组件注册表接口
type ComponentRegistry interface {
	// RegisterComponent 注册一个组件，名称冲突时返回错误
	RegisterComponent(name string, component ComponentManager) error

	// UnregisterComponent 注销一个组件
	UnregisterComponent(name string) error

	// GetComponent 获取已注册的组件
	GetComponent(name string) (ComponentManager, bool)

	// ListComponents 列出所有已注册的组件名称
	ListComponents() []string
}

// HealthChecker 健康检查接口
// 组件可以实现此接口来参与 /health 的结果
type HealthChecker interface {
	HealthCheck() (map[string]interface{}, error)
}
