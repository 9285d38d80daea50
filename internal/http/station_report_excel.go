package httpapi

import (
	"fmt"
	"math"

	"radiotest-data/internal/service"

	"github.com/xuri/excelize/v2"
)

const reportSheetName = "Radio Test Report"

// commStateColors maps a comm score to fill and font colors so the state
// column reads at a glance. Unknown states render dark red.
func commStateColors(score int) (fill, font string) {
	switch score {
	case 3:
		return "006400", "FFFFFF"
	case 2:
		return "90EE90", "000000"
	case 1:
		return "FFA500", "000000"
	default:
		return "8B0000", "FFFFFF"
	}
}

func round6(v float64) float64 { return math.Round(v*1e6) / 1e6 }
func round2(v float64) float64 { return math.Round(v*1e2) / 1e2 }

func thinBorder() []excelize.Border {
	return []excelize.Border{
		{Type: "left", Style: 1},
		{Type: "right", Style: 1},
		{Type: "top", Style: 1},
		{Type: "bottom", Style: 1},
	}
}

// BuildStationReportWorkbook 渲染站点配对报告为 xlsx 字节流
func BuildStationReportWorkbook(report *service.StationReport) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", reportSheetName)

	titleStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build title style: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 12},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    thinBorder(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build header style: %w", err)
	}
	cellStyle, err := f.NewStyle(&excelize.Style{Border: thinBorder()})
	if err != nil {
		return nil, fmt.Errorf("failed to build cell style: %w", err)
	}
	summaryStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build summary style: %w", err)
	}

	if err := f.MergeCell(reportSheetName, "A1", "K1"); err != nil {
		return nil, fmt.Errorf("failed to merge title row: %w", err)
	}
	_ = f.SetCellValue(reportSheetName, "A1",
		"Radio Set Field Test and Trial/ Field Functional Test Report - Auto Generated")
	_ = f.SetCellStyle(reportSheetName, "A1", "K1", titleStyle)

	dateValue := report.StartDate
	if report.StartDate != report.EndDate {
		dateValue = fmt.Sprintf("%s to %s", report.StartDate, report.EndDate)
	}
	_ = f.SetCellValue(reportSheetName, "A3", "Date:")
	_ = f.SetCellValue(reportSheetName, "C3", dateValue)

	// matcher guarantees at least one pair here
	minTime, maxTime := report.Pairs[0].Time, report.Pairs[0].Time
	for _, pair := range report.Pairs[1:] {
		if pair.Time < minTime {
			minTime = pair.Time
		}
		if pair.Time > maxTime {
			maxTime = pair.Time
		}
	}
	_ = f.SetCellValue(reportSheetName, "A4", "Period Covering:")
	_ = f.SetCellValue(reportSheetName, "C4",
		fmt.Sprintf("%s (initial time), %s (last time)", minTime, maxTime))

	_ = f.SetCellValue(reportSheetName, "A5", "Stations:")
	_ = f.SetCellValue(reportSheetName, "C5", report.Station1+", "+report.Station2)

	// operators fill the terrain in by hand after download
	_ = f.SetCellValue(reportSheetName, "A6", "Terrain Type:")
	_ = f.SetCellValue(reportSheetName, "C6", "----------Blank----------")

	headers := []string{
		"Serial", "Date", "Time", "Frequency", "RF Power",
		fmt.Sprintf("Lat (%s)", report.Station1), fmt.Sprintf("Lon (%s)", report.Station1),
		fmt.Sprintf("Lat (%s)", report.Station2), fmt.Sprintf("Lon (%s)", report.Station2),
		"Distance (m)", "Comm State",
	}
	const headerRow = 8
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, headerRow)
		_ = f.SetCellValue(reportSheetName, cell, header)
		_ = f.SetCellStyle(reportSheetName, cell, cell, headerStyle)
	}

	for i, pair := range report.Pairs {
		row := headerRow + 1 + i
		values := []any{
			pair.Serial, pair.Date, pair.Time + " (mean)", pair.Frequency, pair.RfPower,
			round6(pair.LatStation1), round6(pair.LonStation1),
			round6(pair.LatStation2), round6(pair.LonStation2),
			round2(pair.Distance), pair.CommState,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(reportSheetName, cell, v)
			_ = f.SetCellStyle(reportSheetName, cell, cell, cellStyle)
		}

		fill, font := commStateColors(pair.CommScore)
		stateStyle, err := f.NewStyle(&excelize.Style{
			Font:   &excelize.Font{Color: font},
			Fill:   excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{fill}},
			Border: thinBorder(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build comm state style: %w", err)
		}
		stateCell, _ := excelize.CoordinatesToCellName(len(values), row)
		_ = f.SetCellStyle(reportSheetName, stateCell, stateCell, stateStyle)
	}

	summaryRow := headerRow + len(report.Pairs) + 2
	startCell, _ := excelize.CoordinatesToCellName(1, summaryRow)
	endCell, _ := excelize.CoordinatesToCellName(5, summaryRow)
	if err := f.MergeCell(reportSheetName, startCell, endCell); err != nil {
		return nil, fmt.Errorf("failed to merge summary row: %w", err)
	}
	_ = f.SetCellValue(reportSheetName, startCell,
		fmt.Sprintf("Success Rate: %d/%d (%.1f%%)",
			report.SuccessCount, len(report.Pairs), report.SuccessRate()))
	_ = f.SetCellStyle(reportSheetName, startCell, startCell, summaryStyle)

	if err := f.SetColWidth(reportSheetName, "A", "K", 15); err != nil {
		return nil, fmt.Errorf("failed to set column widths: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}
