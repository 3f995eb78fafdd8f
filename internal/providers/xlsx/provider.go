package xlsx

import (
	"context"
	"errors"

	"github.com/xuri/excelize/v2"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.xlsx", fx.Provide(New))

const sheetName = "Timesheet"

var ErrNoEntries = errors.New("timesheet has no entries")

// Provider renders timesheets to XLSX workbooks.
type Provider interface {
	GenerateTimesheet(ctx context.Context, data TimesheetData) ([]byte, error)
}

// TimesheetData is the printable view of one timesheet.
type TimesheetData struct {
	PracticeName string
	ClientName   string
	ProviderID   string
	Period       string
	Program      string
	Status       string
	Entries      []TimesheetEntry
	TotalMinutes int
}

type TimesheetEntry struct {
	Date       string
	StartTime  string
	EndTime    string
	Minutes    int
	ServiceTag string
	Billed     bool
}

type ExcelProvider struct{}

func New() Provider {
	return &ExcelProvider{}
}

func (p *ExcelProvider) GenerateTimesheet(ctx context.Context, data TimesheetData) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(data.Entries) == 0 {
		return nil, ErrNoEntries
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}

	header := [][]interface{}{
		{data.PracticeName},
		{"Client", data.ClientName},
		{"Provider", data.ProviderID},
		{"Period", data.Period},
		{"Program", data.Program},
		{"Status", data.Status},
		{},
		{"Date", "Start", "End", "Minutes", "Service", "Billed"},
	}
	row := 1
	for _, values := range header {
		if err := setRow(f, row, values); err != nil {
			return nil, err
		}
		row++
	}
	if err := f.SetCellStyle(sheetName, "A1", "A6", bold); err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(sheetName, "A8", "F8", bold); err != nil {
		return nil, err
	}

	for _, entry := range data.Entries {
		billed := "no"
		if entry.Billed {
			billed = "yes"
		}
		values := []interface{}{entry.Date, entry.StartTime, entry.EndTime, entry.Minutes, entry.ServiceTag, billed}
		if err := setRow(f, row, values); err != nil {
			return nil, err
		}
		row++
	}

	if err := setRow(f, row, []interface{}{"Total minutes", nil, nil, data.TotalMinutes}); err != nil {
		return nil, err
	}
	totalCell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(sheetName, totalCell, totalCell, bold); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(sheetName, "A", "F", 16); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func setRow(f *excelize.File, row int, values []interface{}) error {
	if len(values) == 0 {
		return nil
	}
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheetName, cell, &values)
}
