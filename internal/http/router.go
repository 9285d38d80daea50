package httpapi

import (
	"net/http"
	"strings"

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

// HandleHandler 支持 http.Handler 接口（用于 pprof 等）
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func requireMethod(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != method {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h(w, req)
	}
}

// RegisterSampleRoutes 注册上报与样本查询路由
func (r *Router) RegisterSampleRoutes(h *SampleHandler) {
	r.Handle("/locations/bulk", requireMethod(http.MethodPost, h.BulkUpload))

	r.Handle("/samples", requireMethod(http.MethodGet, h.ListSamples))
	r.Handle("/samples/count", requireMethod(http.MethodGet, h.CountSamples))

	// /samples/device/{device_id} and /samples/{client_id}
	r.Handle("/samples/", requireMethod(http.MethodGet, func(w http.ResponseWriter, req *http.Request) {
		rest := strings.TrimPrefix(req.URL.Path, "/samples/")
		if deviceID := strings.TrimPrefix(rest, "device/"); deviceID != rest {
			if deviceID == "" || strings.Contains(deviceID, "/") {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			h.SamplesByDevice(w, req, deviceID)
			return
		}
		if rest == "" || strings.Contains(rest, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.SampleByClientID(w, req, rest)
	}))
}

// RegisterReportRoutes 注册报表路由
func (r *Router) RegisterReportRoutes(h *ReportHandler) {
	r.Handle("/report/csv", requireMethod(http.MethodGet, h.CSVReport))
	r.Handle("/report/summary", requireMethod(http.MethodGet, h.Summary))
	r.Handle("/api/generate-station-report", requireMethod(http.MethodPost, h.GenerateStationReport))
	r.Handle("/api/download-station-report", requireMethod(http.MethodPost, h.DownloadStationReport))
}

// RegisterTrajectoryRoutes 注册轨迹路由
func (r *Router) RegisterTrajectoryRoutes(h *TrajectoryHandler) {
	r.Handle("/api/trajectories", requireMethod(http.MethodGet, h.Trajectories))
	r.Handle("/api/trajectories/date-range", requireMethod(http.MethodGet, h.TrajectoriesRange))
}

// RegisterCatalogRoutes 注册筛选项目录路由
func (r *Router) RegisterCatalogRoutes(h *CatalogHandler) {
	r.Handle("/api/stations", requireMethod(http.MethodGet, h.Stations))
	r.Handle("/api/devices", requireMethod(http.MethodGet, h.Devices))
	r.Handle("/api/available-dates", requireMethod(http.MethodGet, h.AvailableDates))
}

// RegisterHealthRoutes 根路径与健康检查
func (r *Router) RegisterHealthRoutes(serviceName, version string) {
	r.Handle("/", func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"message": serviceName + " is running",
			"version": version,
		})
	})
	r.Handle("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "healthy",
			"timestamp": unixNow(),
		})
	})
}
