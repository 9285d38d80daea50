package httpapi

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"radiotest-data/internal/repository"
	"radiotest-data/internal/service"

	"go.uber.org/zap"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ReportHandler 报表导出与站点配对报告
type ReportHandler struct {
	reports service.ReportService
	repo    repository.SamplesRepository
	logger  *zap.Logger
}

// NewReportHandler 创建 ReportHandler 实例
func NewReportHandler(reports service.ReportService, repo repository.SamplesRepository, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{reports: reports, repo: repo, logger: logger}
}

var csvHeader = []string{
	"Date", "Time", "Frequency", "RF Power Output", "Comm Result",
	"Latitude", "Longitude",
}

// CSVReport GET /report/csv
func (h *ReportHandler) CSVReport(w http.ResponseWriter, r *http.Request) {
	samples, err := h.repo.ListChronological(r.Context(), filtersFromQuery(r))
	if err != nil {
		h.logger.Error("csv report query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to query samples")
		return
	}

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	_ = cw.Write(csvHeader)
	for _, s := range samples {
		_ = cw.Write([]string{
			s.SampleDate, s.SampleTime, s.Freq, s.RfPwr, s.CommState,
			strconv.FormatFloat(s.Lat, 'f', -1, 64),
			strconv.FormatFloat(s.Lon, 'f', -1, 64),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		h.logger.Error("csv encoding failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to build csv")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "success",
		"total_samples": len(samples),
		"csv_data":      buf.String(),
		"generated_at":  unixNow(),
	})
}

// Summary GET /report/summary
func (h *ReportHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.repo.Summary(r.Context(), r.URL.Query().Get("device_id"))
	if err != nil {
		h.logger.Error("summary query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to build summary")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_samples": summary.TotalSamples,
		"date_range": map[string]string{
			"start": summary.StartDate,
			"end":   summary.EndDate,
		},
		"unique_frequencies": summary.Frequencies,
		"unique_devices":     summary.DeviceCount,
	})
}

// generateReport parses the request body and runs the matcher, mapping
// domain errors onto HTTP statuses. The bool reports whether a response
// was already written.
func (h *ReportHandler) generateReport(w http.ResponseWriter, r *http.Request) (*service.StationReport, bool) {
	var req service.StationReportRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return nil, true
	}
	if req.Station1 == "" || req.Station2 == "" {
		writeError(w, http.StatusBadRequest, "station1 and station2 are required")
		return nil, true
	}

	report, err := h.reports.GenerateStationReport(r.Context(), req)
	if err != nil {
		var noMatch *service.NoMatchError
		switch {
		case errors.Is(err, service.ErrInvalidDate):
			writeError(w, http.StatusBadRequest, "dates must be YYYY-MM-DD")
		case errors.As(err, &noMatch):
			writeJSON(w, http.StatusNotFound, map[string]any{
				"status":         "error",
				"message":        noMatch.Error(),
				"station1_times": noMatch.Station1Times,
				"station2_times": noMatch.Station2Times,
				"timestamp":      unixNow(),
			})
		case errors.Is(err, service.ErrNoData):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			h.logger.Error("station report failed",
				zap.String("station1", req.Station1),
				zap.String("station2", req.Station2),
				zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to generate report")
		}
		return nil, true
	}
	return report, false
}

// GenerateStationReport POST /api/generate-station-report
func (h *ReportHandler) GenerateStationReport(w http.ResponseWriter, r *http.Request) {
	report, done := h.generateReport(w, r)
	if done {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":                    "success",
		"message":                   fmt.Sprintf("Report generated with %d matched pairs", len(report.Pairs)),
		"filename":                  report.Filename,
		"total_pairs":               len(report.Pairs),
		"successful_communications": report.SuccessCount,
		"success_rate":              report.SuccessRate(),
		"matched_pairs":             report.Pairs,
	})
}

// DownloadStationReport POST /api/download-station-report
func (h *ReportHandler) DownloadStationReport(w http.ResponseWriter, r *http.Request) {
	report, done := h.generateReport(w, r)
	if done {
		return
	}

	workbook, err := BuildStationReportWorkbook(report)
	if err != nil {
		h.logger.Error("workbook rendering failed",
			zap.String("filename", report.Filename),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to render report")
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(workbook)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(workbook)
}
