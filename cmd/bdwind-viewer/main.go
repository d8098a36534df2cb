package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/open-beagle/bdwind-viewer/internal/config"
	"github.com/open-beagle/bdwind-viewer/internal/webserver"
)

const AppName = "BDWind-Viewer"

// 构建时通过 -ldflags 注入
var (
	AppVersion = "1.0.0"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

// cliOptions 命令行参数，非空值覆盖配置文件
type cliOptions struct {
	configFile   string
	streams      string
	signalingURL string
	port         int
	host         string
	metrics      bool
	metricsPort  int
	logLevel     string
	logOutput    string
	logFile      string
	version      bool
}

func parseFlags(fs *flag.FlagSet, args []string) (*cliOptions, error) {
	opts := &cliOptions{}
	fs.StringVar(&opts.configFile, "config", "", "Configuration file path (.yaml, .yml or .toml)")
	fs.StringVar(&opts.streams, "streams", "", "Comma separated stream identifiers to keep connected")
	fs.StringVar(&opts.signalingURL, "signaling-url", "", "Signaling server base URL")
	fs.IntVar(&opts.port, "port", 0, "Status API port")
	fs.StringVar(&opts.host, "host", "", "Status API host")
	fs.BoolVar(&opts.metrics, "metrics", false, "Enable external Prometheus metrics server")
	fs.IntVar(&opts.metricsPort, "metrics-port", 0, "External metrics port")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level (TRACE, DEBUG, INFO, WARN, ERROR)")
	fs.StringVar(&opts.logOutput, "log-output", "", "Log output (stdout, stderr, file)")
	fs.StringVar(&opts.logFile, "log-file", "", "Log file path (when log-output is file)")
	fs.BoolVar(&opts.version, "version", false, "Show version information")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return opts, nil
}

// loadConfig 配置优先级：命令行 > 环境变量 > 配置文件 > 默认值
func loadConfig(opts *cliOptions) (*config.Config, error) {
	var cfg *config.Config
	if opts.configFile != "" {
		loaded, err := config.LoadConfigFromFile(opts.configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded
	} else {
		cfg = config.DefaultConfig()
	}

	cfg.ApplyEnv()

	if opts.streams != "" {
		cfg.Viewer.Streams = config.ParseStreamList(opts.streams)
	}
	if opts.signalingURL != "" {
		cfg.Signaling.BaseURL = opts.signalingURL
	}
	if opts.port != 0 {
		cfg.WebServer.Port = opts.port
	}
	if opts.host != "" {
		cfg.WebServer.Host = opts.host
	}
	if opts.metrics {
		cfg.Metrics.External.Enabled = true
	}
	if opts.metricsPort != 0 {
		cfg.Metrics.External.Port = opts.metricsPort
	}

	if opts.logLevel != "" {
		level, err := config.ParseLogLevel(opts.logLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.logLevel, err)
		}
		cfg.Logging.Level = level
	}
	if opts.logOutput != "" {
		cfg.Logging.Output = opts.logOutput
	}
	if opts.logFile != "" {
		cfg.Logging.File = opts.logFile
		if opts.logOutput == "" {
			cfg.Logging.Output = "file"
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func main() {
	opts, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	if opts.version {
		fmt.Printf("%s v%s (%s, %s)\n", AppName, AppVersion, GitCommit, BuildTime)
		fmt.Println("Headless WebRTC stream viewer")
		return
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if err := config.SetupLogger(cfg.Logging); err != nil {
		log.Fatalf("Failed to setup logger: %v", err)
	}
	logger := config.GetLoggerWithPrefix("main")

	app, err := NewViewerApp(cfg, webserver.VersionInfo{
		Version:   AppVersion,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	})
	if err != nil {
		logger.Fatalf("Failed to create application: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := app.Start(); err != nil {
		logger.Fatalf("Application failed to start: %v", err)
	}

	logger.Infof("%s v%s started, status API on %s, streams: %v",
		AppName, AppVersion, app.GetWebServerManager().GetAddress(), cfg.Viewer.Streams)
	if cfg.Metrics.External.Enabled {
		logger.Infof("Metrics: %s", cfg.Metrics.GetExternalEndpoint())
	}

	sig := <-sigChan
	logger.Infof("Received signal: %v, initiating graceful shutdown", sig)

	timeout := cfg.Lifecycle.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := app.Stop(ctx); err != nil {
		logger.Errorf("Application shutdown error: %v", err)
	} else {
		logger.Info("Application stopped gracefully")
	}
}
