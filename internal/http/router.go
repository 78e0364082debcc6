package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux（避免引入第三方路由依赖）
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterLedgerRoutes 注册事件账本路由
func (r *Router) RegisterLedgerRoutes(h *LedgerHandler) {
	r.Handle("/health", func(w http.ResponseWriter, req *http.Request) {
		if !allowMethod(w, req, http.MethodGet) {
			return
		}
		h.Health(w, req)
	})

	// 状态重建
	r.Handle("/ledger/api/v1/state", func(w http.ResponseWriter, req *http.Request) {
		if !allowMethod(w, req, http.MethodGet) {
			return
		}
		h.GetState(w, req)
	})

	if h.snapshots != nil {
		r.Handle("/ledger/api/v1/state/snapshot", func(w http.ResponseWriter, req *http.Request) {
			if !allowMethod(w, req, http.MethodGet) {
				return
			}
			h.GetStateSnapshot(w, req)
		})
	}

	// 回放
	r.Handle("/ledger/api/v1/replay", func(w http.ResponseWriter, req *http.Request) {
		if !allowMethod(w, req, http.MethodGet) {
			return
		}
		h.GetReplay(w, req)
	})
	r.Handle("/ledger/api/v1/replay/export", func(w http.ResponseWriter, req *http.Request) {
		if !allowMethod(w, req, http.MethodGet) {
			return
		}
		h.ExportReplay(w, req)
	})

	// 任务准入
	r.Handle("/ledger/api/v1/tasks", func(w http.ResponseWriter, req *http.Request) {
		if !allowMethod(w, req, http.MethodPost) {
			return
		}
		h.AdmitTask(w, req)
	})

	// 测试数据（仅在启用时注册）
	if h.seed != nil {
		r.Handle("/ledger/api/v1/test/seed", func(w http.ResponseWriter, req *http.Request) {
			if !allowMethod(w, req, http.MethodPost) {
				return
			}
			h.Seed(w, req)
		})
	}
}
