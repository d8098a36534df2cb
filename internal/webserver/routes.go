package webserver

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
)

func (ws *WebServer) setupRoutes() {
	ws.router = mux.NewRouter()

	if ws.config.EnableCORS {
		ws.router.Use(ws.corsMiddleware)
	}
	ws.router.Use(ws.loggingMiddleware)

	ws.setupBasicRoutes()

	if err := ws.setupComponentRoutes(); err != nil {
		// 组件路由失败不阻止服务器启动
		ws.logger.Errorf("Component routes setup failed: %v", err)
		ws.router.HandleFunc("/api/component-routes-error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, fmt.Sprintf("Component routes setup failed: %v", err), http.StatusInternalServerError)
		}).Methods("GET")
	}

	ws.router.NotFoundHandler = http.HandlerFunc(ws.handleNotFound)
}

func (ws *WebServer) setupBasicRoutes() {
	ws.router.HandleFunc("/api/status", ws.handleStatus).Methods("GET")
	ws.router.HandleFunc("/api/version", ws.handleVersion).Methods("GET")
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	ws.router.HandleFunc("/api/components", ws.handleComponentList).Methods("GET")
	ws.router.HandleFunc("/api/components/{name}/stats", ws.handleComponentStats).Methods("GET")
}
