package metrics

import "errors"

var (
	// ErrServerAlreadyRunning 服务器已运行错误
	ErrServerAlreadyRunning = errors.New("metrics: server already running")

	// ErrMetricAlreadyRegistered 指标已注册错误
	ErrMetricAlreadyRegistered = errors.New("metrics: metric already registered")
)
