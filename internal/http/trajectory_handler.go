package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"radiotest-data/internal/service"

	"go.uber.org/zap"
)

// TrajectoryHandler 轨迹查询
type TrajectoryHandler struct {
	trajectories service.TrajectoryService
	logger       *zap.Logger
}

// NewTrajectoryHandler 创建 TrajectoryHandler 实例
func NewTrajectoryHandler(trajectories service.TrajectoryService, logger *zap.Logger) *TrajectoryHandler {
	return &TrajectoryHandler{trajectories: trajectories, logger: logger}
}

// Trajectories GET /api/trajectories
func (h *TrajectoryHandler) Trajectories(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := service.TrajectoryRequest{
		Date:     q.Get("date"),
		Station:  q.Get("station"),
		DeviceID: q.Get("device_id"),
	}

	result, err := h.trajectories.Trajectories(r.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidDate) {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		h.logger.Error("trajectory query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to query trajectories")
		return
	}

	dateQueried := req.Date
	if dateQueried == "" {
		dateQueried = time.Now().Format("2006-01-02")
	}

	body := map[string]any{
		"date_queried":       dateQueried,
		"total_trajectories": len(result.Trajectories),
		"total_coordinates":  result.TotalCoordinates,
		"data":               result.Trajectories,
	}
	if len(result.Trajectories) == 0 {
		body["message"] = fmt.Sprintf("No trajectory data found for date %s", dateQueried)
	}
	writeJSON(w, http.StatusOK, body)
}

// TrajectoriesRange GET /api/trajectories/date-range
func (h *TrajectoryHandler) TrajectoriesRange(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := service.TrajectoryRequest{
		StartDate: q.Get("start_date"),
		EndDate:   q.Get("end_date"),
		Station:   q.Get("station"),
		DeviceID:  q.Get("device_id"),
	}
	if req.StartDate == "" || req.EndDate == "" {
		writeError(w, http.StatusBadRequest, "start_date and end_date are required")
		return
	}

	result, err := h.trajectories.TrajectoriesRange(r.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidDate) {
			writeError(w, http.StatusBadRequest, "dates must be YYYY-MM-DD")
			return
		}
		h.logger.Error("trajectory range query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to query trajectories")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"start_date":         req.StartDate,
		"end_date":           req.EndDate,
		"total_trajectories": len(result.Trajectories),
		"total_coordinates":  result.TotalCoordinates,
		"data":               result.Trajectories,
	})
}
