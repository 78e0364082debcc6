package httpapi

import (
	"fmt"
	"time"

	"wisefido-ledger/internal/domain"
	"wisefido-ledger/internal/service"

	"github.com/xuri/excelize/v2"
)

const replaySheetName = "Replay"

// ReplayExportHeader 回放导出表头（每行一个事件，明细按类型填列）
var ReplayExportHeader = []string{
	"Occurred At",
	"Event ID",
	"Type",
	"Actor",
	"Metric",
	"Value",
	"Unit",
	"Task Code",
	"Result",
	"Rule Code",
	"Severity",
	"Text",
	"Latitude",
	"Longitude",
	"Accuracy",
}

var replayColumnWidths = []float64{22, 38, 16, 24, 14, 10, 8, 20, 12, 28, 10, 50, 12, 12, 10}

// GenerateReplayExport 生成回放 Excel，事件顺序与回放结果一致（occurredAt 升序）
func GenerateReplayExport(res *service.ReplayResult, loc *time.Location) ([]byte, error) {
	if loc == nil {
		loc = time.Local
	}

	f := excelize.NewFile()
	defer f.Close()

	if _, err := f.NewSheet(replaySheetName); err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to delete default sheet: %w", err)
	}
	// 删除默认 Sheet1 后索引会变化，重新获取
	index, err := f.GetSheetIndex(replaySheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to locate sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range ReplayExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(replaySheetName, cell, header); err != nil {
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(replaySheetName, cell, cell, headerStyle); err != nil {
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(replaySheetName, name, name, replayColumnWidths[col]); err != nil {
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for i, e := range res.Events {
		row := i + 2 // 第1行是表头
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		values := replayRow(e, loc)
		if err := f.SetSheetRow(replaySheetName, cell, &values); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", row, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write excel: %w", err)
	}
	return buf.Bytes(), nil
}

// replayRow 与 ReplayExportHeader 列顺序一致；缺失明细的列留空
func replayRow(e *domain.Event, loc *time.Location) []interface{} {
	row := make([]interface{}, len(ReplayExportHeader))
	row[0] = e.OccurredAt.In(loc).Format("2006-01-02 15:04:05")
	row[1] = e.ID
	row[2] = string(e.Type)
	row[3] = e.ActorID

	switch d := e.Detail.(type) {
	case domain.Observation:
		row[4], row[5], row[6] = d.Metric, d.Value, d.Unit
	case domain.TaskExecution:
		row[7], row[8] = d.TaskCode, d.Result
	case domain.Alert:
		row[9], row[10] = d.RuleCode, d.Severity
	case domain.Note:
		row[11] = d.Text
	case domain.Message:
		row[11] = d.Text
	case domain.Presence:
		row[12], row[13], row[14] = d.Latitude, d.Longitude, d.Accuracy
	}
	return row
}
