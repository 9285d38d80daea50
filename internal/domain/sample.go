package domain

import (
	"database/sql"
	"fmt"
	"regexp"
	"time"
)

// LocationSample 单条外场无线电测试测量（对应 location_samples 表）
// Samples are create-once, read-many: there is no update path.
type LocationSample struct {
	// Server-side primary key
	ServerID string `db:"server_id"`

	// Client-generated ID, globally unique, doubles as the idempotency key
	ClientID string `db:"client_id"`

	// Location
	Lat float64 `db:"lat"`
	Lon float64 `db:"lon"`
	Acc float64 `db:"acc"`

	// Timestamps
	SampleDate    string `db:"sample_date"` // YYYY-MM-DD
	SampleTime    string `db:"sample_time"` // HH:MM:SS
	CapturedAtUTC int64  `db:"captured_at_utc"`

	// Radio metadata
	Provider  string `db:"provider"` // GPS_CHIP | NETWORK | FUSED
	Freq      string `db:"freq"`
	RfPwr     string `db:"rf_pwr"`
	CommState string `db:"comm_state"`
	User      string `db:"user"`
	Station   string `db:"station"`

	// Device linkage, stamped at the ingest boundary
	DeviceID string `db:"device_id"`

	// Client-side sync bookkeeping, stored but never interpreted here
	Sync         bool           `db:"sync"`
	AttemptCount int            `db:"attempt_count"`
	LastError    sql.NullString `db:"last_error"`
	SyncedAtUTC  sql.NullInt64  `db:"synced_at_utc"`

	// Server metadata
	ReceivedAt time.Time `db:"received_at"`
	Processed  bool      `db:"processed"`
}

// ToJSON 转换为JSON格式（用于HTTP响应）
func (s *LocationSample) ToJSON() map[string]any {
	m := map[string]any{
		"server_id":       s.ServerID,
		"client_id":       s.ClientID,
		"device_id":       s.DeviceID,
		"lat":             s.Lat,
		"lon":             s.Lon,
		"acc":             s.Acc,
		"sample_date":     s.SampleDate,
		"sample_time":     s.SampleTime,
		"provider":        s.Provider,
		"freq":            s.Freq,
		"rf_pwr":          s.RfPwr,
		"comm_state":      s.CommState,
		"user":            s.User,
		"station":         s.Station,
		"captured_at_utc": s.CapturedAtUTC,
		"received_at":     s.ReceivedAt.UTC().Format(time.RFC3339),
		"processed":       s.Processed,
	}
	if s.SyncedAtUTC.Valid {
		m["synced_at_utc"] = s.SyncedAtUTC.Int64
	} else {
		m["synced_at_utc"] = nil
	}
	return m
}

var (
	dateFormatRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timeFormatRe = regexp.MustCompile(`^\d{2}:\d{2}:\d{2}$`)
)

// ValidDate reports whether s is a YYYY-MM-DD date string.
func ValidDate(s string) bool { return dateFormatRe.MatchString(s) }

// ValidTime reports whether s is a HH:MM:SS time string.
func ValidTime(s string) bool { return timeFormatRe.MatchString(s) }

// SampleInput 客户端上传的单条测量（bulk upload payload）
type SampleInput struct {
	ID            string  `json:"id"` // client-generated UUID
	Lat           float64 `json:"lat"`
	Lon           float64 `json:"lon"`
	Acc           float64 `json:"acc"`
	SampleDate    string  `json:"sample_date"`
	SampleTime    string  `json:"sample_time"`
	Provider      string  `json:"provider"`
	Freq          string  `json:"freq"`
	RfPwr         string  `json:"rf_pwr"`
	CommState     string  `json:"comm_state"`
	User          string  `json:"user"`
	Station       string  `json:"station"`
	CapturedAtUTC int64   `json:"captured_at_utc"`
	Sync          bool    `json:"sync"`
	AttemptCount  int     `json:"attempt_count"`
	LastError     *string `json:"last_error"`
	SyncedAtUTC   *int64  `json:"synced_at_utc"`
}

// Validate enforces the ingest-boundary field contract. Range checks live
// here, not in the store.
func (in *SampleInput) Validate() error {
	if in.ID == "" {
		return fmt.Errorf("id is required")
	}
	if in.Lat < -90 || in.Lat > 90 {
		return fmt.Errorf("lat must be between -90 and 90, got %v", in.Lat)
	}
	if in.Lon < -180 || in.Lon > 180 {
		return fmt.Errorf("lon must be between -180 and 180, got %v", in.Lon)
	}
	if in.Acc < 0 {
		return fmt.Errorf("acc must be >= 0, got %v", in.Acc)
	}
	if !ValidDate(in.SampleDate) {
		return fmt.Errorf("sample_date must be in YYYY-MM-DD format, got %q", in.SampleDate)
	}
	if !ValidTime(in.SampleTime) {
		return fmt.Errorf("sample_time must be in HH:MM:SS format, got %q", in.SampleTime)
	}
	if in.CapturedAtUTC < 0 {
		return fmt.Errorf("captured_at_utc must be >= 0, got %d", in.CapturedAtUTC)
	}
	if in.Freq == "" {
		return fmt.Errorf("freq is required")
	}
	if in.RfPwr == "" {
		return fmt.Errorf("rf_pwr is required")
	}
	if in.CommState == "" {
		return fmt.Errorf("comm_state is required")
	}
	if in.User == "" {
		return fmt.Errorf("user is required")
	}
	if in.Station == "" {
		return fmt.Errorf("station is required")
	}
	return nil
}

// ToSample builds the persistent record: device_id comes from the transport
// caller and received_at from the server clock, never from the client.
func (in *SampleInput) ToSample(serverID, deviceID string, receivedAt time.Time) *LocationSample {
	provider := in.Provider
	if provider == "" {
		provider = "FUSED"
	}
	s := &LocationSample{
		ServerID:      serverID,
		ClientID:      in.ID,
		Lat:           in.Lat,
		Lon:           in.Lon,
		Acc:           in.Acc,
		SampleDate:    in.SampleDate,
		SampleTime:    in.SampleTime,
		CapturedAtUTC: in.CapturedAtUTC,
		Provider:      provider,
		Freq:          in.Freq,
		RfPwr:         in.RfPwr,
		CommState:     in.CommState,
		User:          in.User,
		Station:       in.Station,
		DeviceID:      deviceID,
		Sync:          in.Sync,
		AttemptCount:  in.AttemptCount,
		ReceivedAt:    receivedAt,
		Processed:     false,
	}
	if in.LastError != nil {
		s.LastError = sql.NullString{String: *in.LastError, Valid: true}
	}
	if in.SyncedAtUTC != nil {
		s.SyncedAtUTC = sql.NullInt64{Int64: *in.SyncedAtUTC, Valid: true}
	}
	return s
}
