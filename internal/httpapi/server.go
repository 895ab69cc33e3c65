package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/yuqie6/WrestleQuest/internal/bootstrap"
	"github.com/yuqie6/WrestleQuest/internal/dto"
)

// RequestTimeout 普通 JSON 接口的处理超时（SSE 不受限）
const RequestTimeout = 30 * time.Second

// PingInterval SSE 保活间隔
const PingInterval = 15 * time.Second

type LocalServer struct {
	rt      *bootstrap.Runtime
	ln      net.Listener
	srv     *http.Server
	baseURL string
}

type Options struct {
	ListenAddr string // e.g. "127.0.0.1:0"
}

// Start 监听并在后台提供 HTTP 服务；ctx 结束时自动关闭
func Start(ctx context.Context, rt *bootstrap.Runtime, opts Options) (*LocalServer, error) {
	if rt == nil {
		return nil, fmt.Errorf("rt 不能为空")
	}
	if strings.TrimSpace(opts.ListenAddr) == "" {
		opts.ListenAddr = "127.0.0.1:0"
	}

	ln, err := net.Listen("tcp", opts.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("监听 %s 失败: %w", opts.ListenAddr, err)
	}
	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		_ = ln.Close()
		return nil, err
	}
	baseURL := "http://127.0.0.1:" + portStr

	srv := &http.Server{
		Handler:           NewRouter(rt.Core, rt.Watching),
		ReadHeaderTimeout: 5 * time.Second,
	}
	ls := &LocalServer{rt: rt, ln: ln, srv: srv, baseURL: baseURL}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = ls.Shutdown(shutdownCtx)
	}()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server 异常退出", "error", err)
		}
	}()

	writeBaseURLFile(rt.DB.Path, baseURL)
	slog.Info("本地 HTTP 已启动", "base_url", baseURL)
	return ls, nil
}

func (s *LocalServer) BaseURL() string {
	if s == nil {
		return ""
	}
	return s.baseURL
}

func (s *LocalServer) Shutdown(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// writeBaseURLFile 在数据库旁写下实际监听地址，供 CLI 发现
func writeBaseURLFile(dbPath, baseURL string) {
	if dbPath == "" {
		return
	}
	_ = os.WriteFile(filepath.Join(filepath.Dir(dbPath), "http_base_url.txt"), []byte(baseURL), 0o644)
}

// NewRouter 组装路由
func NewRouter(core *bootstrap.Core, watching bool) http.Handler {
	a := newAPI(core, watching)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware)

	r.Get("/health", a.handleHealth)
	r.Method(http.MethodGet, "/metrics", core.Metrics.Handler())
	r.Get("/api/users/{userID}/events", a.handleEvents)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(RequestTimeout))

		r.Get("/api/status", a.handleStatus)
		r.Route("/api/catalog", func(r chi.Router) {
			r.Get("/", a.handleCatalog)
			r.Get("/{skill}", a.handleCatalogSkill)
		})
		r.Get("/api/users", a.handleUsers)
		r.Route("/api/users/{userID}", func(r chi.Router) {
			r.Get("/progress", a.handleProgress)
			r.Post("/skills/{skill}/log", a.handleLog)
			r.Post("/skills/{skill}/undo", a.handleUndo)
			r.Put("/profile", a.handleProfile)
			r.Get("/history", a.handleHistory)
			r.Get("/totals", a.handleTotals)
		})
	})
	return r
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug("http", "method", r.Method, "path", r.URL.Path, "status", ww.Status(),
			"cost", time.Since(start), "request_id", middleware.GetReqID(r.Context()))
	})
}

// handleEvents 以 SSE 推送用户进度：先推当前状态，之后每次变化推一次（只保留最新）
func (a *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "STREAM_UNSUPPORTED", "stream not supported")
		return
	}
	ctx := r.Context()
	ch, err := a.core.Services.Progress.Watch(ctx, chi.URLParam(r, "userID"))
	if err != nil {
		a.writeServiceError(w, err, nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = io.WriteString(w, "event: ping\ndata: {}\n\n")
			flusher.Flush()
		case st, ok := <-ch:
			if !ok {
				return
			}
			b, _ := json.Marshal(dto.NewProgressDTO(st))
			_, _ = io.WriteString(w, "event: progress\ndata: ")
			_, _ = w.Write(b)
			_, _ = io.WriteString(w, "\n\n")
			flusher.Flush()
		}
	}
}
