package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"radiotest-data/internal/domain"
	"radiotest-data/internal/repository"
	"radiotest-data/internal/service"
	"radiotest-data/internal/store"

	"go.uber.org/zap"
)

const maxBulkBodyBytes = 8 << 20

// SampleHandler 批量上报与样本查询
type SampleHandler struct {
	ingest service.IngestService
	repo   repository.SamplesRepository
	cache  store.KV // nil when Redis is disabled
	logger *zap.Logger
}

// NewSampleHandler 创建 SampleHandler 实例
func NewSampleHandler(ingest service.IngestService, repo repository.SamplesRepository, cache store.KV, logger *zap.Logger) *SampleHandler {
	return &SampleHandler{ingest: ingest, repo: repo, cache: cache, logger: logger}
}

type bulkUploadRequest struct {
	DeviceID string               `json:"deviceId"`
	Samples  []domain.SampleInput `json:"samples"`
}

type bulkUploadResponse struct {
	Status        string                   `json:"status"`
	Message       string                   `json:"message"`
	SyncedIDs     []string                 `json:"synced_ids"`
	FailedSamples []service.RejectedSample `json:"failed_samples,omitempty"`
	Timestamp     float64                  `json:"timestamp"`
}

// BulkUpload POST /locations/bulk
func (h *SampleHandler) BulkUpload(w http.ResponseWriter, r *http.Request) {
	var req bulkUploadRequest
	if err := readBodyJSON(r, maxBulkBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, "deviceId is required")
		return
	}

	result, err := h.ingest.Ingest(r.Context(), req.DeviceID, req.Samples)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrBatchTooLarge):
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("batch exceeds %d samples", service.MaxBatchSize))
		default:
			h.logger.Error("bulk upload failed",
				zap.String("device_id", req.DeviceID),
				zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to store samples")
		}
		return
	}

	if h.cache != nil && len(result.AcceptedIDs) > 0 {
		if err := h.cache.Del(r.Context(), catalogCacheKeys...); err != nil {
			h.logger.Warn("catalog cache invalidation failed", zap.Error(err))
		}
	}

	writeJSON(w, http.StatusCreated, bulkUploadResponse{
		Status: "success",
		Message: fmt.Sprintf("Processed %d samples successfully, %d failed",
			len(result.AcceptedIDs), len(result.Rejected)),
		SyncedIDs:     result.AcceptedIDs,
		FailedSamples: result.Rejected,
		Timestamp:     unixNow(),
	})
}

func filtersFromQuery(r *http.Request) repository.SampleFilters {
	q := r.URL.Query()
	return repository.SampleFilters{
		DeviceID:  q.Get("device_id"),
		Station:   q.Get("station"),
		StartDate: q.Get("start_date"),
		EndDate:   q.Get("end_date"),
	}
}

// ListSamples GET /samples
func (h *SampleHandler) ListSamples(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	skip := parseInt(q.Get("skip"), 0)
	limit := parseInt(q.Get("limit"), 100)

	samples, err := h.repo.List(r.Context(), filtersFromQuery(r), skip, limit)
	if err != nil {
		h.logger.Error("list samples failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to query samples")
		return
	}

	out := make([]map[string]any, 0, len(samples))
	for _, s := range samples {
		out = append(out, s.ToJSON())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":   len(out),
		"skip":    skip,
		"limit":   limit,
		"samples": out,
	})
}

// CountSamples GET /samples/count
func (h *SampleHandler) CountSamples(w http.ResponseWriter, r *http.Request) {
	total, err := h.repo.Count(r.Context(), filtersFromQuery(r))
	if err != nil {
		h.logger.Error("count samples failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to count samples")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"total_samples": total})
}

// SamplesByDevice GET /samples/device/{device_id}
func (h *SampleHandler) SamplesByDevice(w http.ResponseWriter, r *http.Request, deviceID string) {
	q := r.URL.Query()
	skip := parseInt(q.Get("skip"), 0)
	limit := parseInt(q.Get("limit"), 100)

	filters := repository.SampleFilters{DeviceID: deviceID}
	samples, err := h.repo.List(r.Context(), filters, skip, limit)
	if err != nil {
		h.logger.Error("list device samples failed",
			zap.String("device_id", deviceID),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to query samples")
		return
	}

	out := make([]map[string]any, 0, len(samples))
	for _, s := range samples {
		out = append(out, s.ToJSON())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id":   deviceID,
		"total_found": len(out),
		"skip":        skip,
		"limit":       limit,
		"samples":     out,
	})
}

// SampleByClientID GET /samples/{client_id}
func (h *SampleHandler) SampleByClientID(w http.ResponseWriter, r *http.Request, clientID string) {
	sample, err := h.repo.FindByClientID(r.Context(), clientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Sample not found")
			return
		}
		h.logger.Error("find sample failed",
			zap.String("client_id", clientID),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to query sample")
		return
	}
	writeJSON(w, http.StatusOK, sample.ToJSON())
}
