package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"radiotest-data/internal/repository"
	"radiotest-data/internal/store"

	"go.uber.org/zap"
)

const (
	cacheKeyStations = "catalog:stations"
	cacheKeyDevices  = "catalog:devices"
	cacheKeyDates    = "catalog:dates"

	catalogCacheTTL = 5 * time.Minute
)

// catalogCacheKeys is everything an ingest invalidates.
var catalogCacheKeys = []string{cacheKeyStations, cacheKeyDevices, cacheKeyDates}

// CatalogHandler 筛选项目录（站点 / 设备 / 日期）
type CatalogHandler struct {
	repo   repository.SamplesRepository
	cache  store.KV // nil when Redis is disabled
	logger *zap.Logger
}

// NewCatalogHandler 创建 CatalogHandler 实例
func NewCatalogHandler(repo repository.SamplesRepository, cache store.KV, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{repo: repo, cache: cache, logger: logger}
}

// cachedList serves the list from Redis when present, otherwise loads it
// from the repository and writes it back with a TTL. Cache failures fall
// through to the repository rather than failing the request.
func (h *CatalogHandler) cachedList(ctx context.Context, key string, load func(context.Context) ([]string, error)) ([]string, error) {
	if h.cache != nil {
		if raw, err := h.cache.Get(ctx, key); err == nil {
			var values []string
			if json.Unmarshal([]byte(raw), &values) == nil {
				return values, nil
			}
		} else if err != store.ErrMiss {
			h.logger.Warn("catalog cache read failed", zap.String("key", key), zap.Error(err))
		}
	}

	values, err := load(ctx)
	if err != nil {
		return nil, err
	}

	if h.cache != nil {
		raw, _ := json.Marshal(values)
		if err := h.cache.Set(ctx, key, string(raw), catalogCacheTTL); err != nil {
			h.logger.Warn("catalog cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return values, nil
}

// Stations GET /api/stations
func (h *CatalogHandler) Stations(w http.ResponseWriter, r *http.Request) {
	stations, err := h.cachedList(r.Context(), cacheKeyStations, h.repo.DistinctStations)
	if err != nil {
		h.logger.Error("list stations failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to query stations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stations": stations})
}

// Devices GET /api/devices
func (h *CatalogHandler) Devices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.cachedList(r.Context(), cacheKeyDevices, h.repo.DistinctDevices)
	if err != nil {
		h.logger.Error("list devices failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to query devices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

// AvailableDates GET /api/available-dates
func (h *CatalogHandler) AvailableDates(w http.ResponseWriter, r *http.Request) {
	dates, err := h.cachedList(r.Context(), cacheKeyDates, h.repo.DistinctDates)
	if err != nil {
		h.logger.Error("list dates failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to query dates")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dates": dates})
}
