package export

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/crane-billing/internal/application/port"
	"github.com/garyjia/crane-billing/internal/domain/entity"
)

const (
	sheetName    = "Medições"
	headerRow    = 4
	firstDataRow = headerRow + 1
	moneyFormat  = "#,##0.00"
)

var columns = []struct {
	title string
	width float64
}{
	{"Período", 16},
	{"Número", 24},
	{"Status", 12},
	{"Aprovação", 12},
	{"Data da medição", 16},
	{"Valor mensal bruto", 18},
	{"Aditivos", 14},
	{"Custos extras", 14},
	{"Descontos", 14},
	{"Total geral", 16},
	{"Acumulado faturado", 20},
}

var statusLabels = map[string]string{
	"pending":   "Pendente",
	"finalized": "Finalizada",
	"cancelled": "Cancelada",
	"sent":      "Enviada",
}

// XLSXReportRenderer writes budget reports as Excel workbooks
type XLSXReportRenderer struct {
	logger *zap.Logger
}

// NewXLSXReportRenderer creates a new XLSX report renderer
func NewXLSXReportRenderer(logger *zap.Logger) port.ReportRenderer {
	return &XLSXReportRenderer{logger: logger}
}

// RenderBudgetReport writes one row per measurement followed by a totals row
func (r *XLSXReportRenderer) RenderBudgetReport(w io.Writer, report *port.BudgetReport) error {
	if report == nil || report.Budget == nil {
		return fmt.Errorf("report has no budget")
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	styles, err := newStyles(f)
	if err != nil {
		return err
	}

	b := report.Budget
	title := fmt.Sprintf("Medições do orçamento %s", b.Label())
	if b.ClientName != "" {
		title += " - " + b.ClientName
	}
	r.setCell(f, "A1", title)
	r.setCell(f, "A2", "Gerado em "+report.GeneratedAt.Format("02/01/2006 15:04"))
	_ = f.SetCellStyle(sheetName, "A1", "A1", styles.title)

	for i, col := range columns {
		cell := cellName(i, headerRow)
		r.setCell(f, cell, col.title)
		name, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetColWidth(sheetName, name, name, col.width)
	}
	_ = f.SetCellStyle(sheetName, cellName(0, headerRow), cellName(len(columns)-1, headerRow), styles.header)

	row := firstDataRow
	for _, line := range report.Rows {
		m := line.Measurement
		values := []interface{}{
			m.Period.Label(),
			m.Number,
			statusLabel(m.Status.String()),
			m.ApprovalStatus,
			m.MeasurementDate.Format("02/01/2006"),
			amount(m.Totals.GrossMonthlyValue),
			amount(m.Totals.AmendmentsValue),
			amount(m.Totals.ExtraCostsValue),
			amount(m.Totals.DiscountsValue),
			amount(m.Totals.GrandTotal),
			amount(line.AccumulatedFinalized),
		}
		if err := f.SetSheetRow(sheetName, cellName(0, row), &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", row, err)
		}
		row++
	}

	if row > firstDataRow {
		_ = f.SetCellStyle(sheetName, cellName(5, firstDataRow), cellName(len(columns)-1, row-1), styles.money)
	}

	r.setCell(f, cellName(0, row+1), "Total faturado")
	if err := f.SetCellValue(sheetName, cellName(len(columns)-1, row+1), amount(b.AccumulatedInvoicedTotal)); err != nil {
		return fmt.Errorf("failed to write total: %w", err)
	}
	_ = f.SetCellStyle(sheetName, cellName(0, row+1), cellName(len(columns)-1, row+1), styles.total)

	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      headerRow,
		TopLeftCell: cellName(0, firstDataRow),
		ActivePane:  "bottomLeft",
	}); err != nil {
		r.logger.Warn("Failed to freeze header row", zap.Error(err))
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	r.logger.Info("Budget report written",
		zap.String("budget_id", b.ID),
		zap.Int("rows", len(report.Rows)))
	return nil
}

func (r *XLSXReportRenderer) setCell(f *excelize.File, cell string, value interface{}) {
	if err := f.SetCellValue(sheetName, cell, value); err != nil {
		r.logger.Warn("Failed to set cell value",
			zap.String("cell", cell),
			zap.Error(err))
	}
}

type reportStyles struct {
	title, header, money, total int
}

func newStyles(f *excelize.File) (reportStyles, error) {
	var s reportStyles
	var err error
	numFmt := moneyFormat

	if s.title, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}}); err != nil {
		return s, fmt.Errorf("failed to create title style: %w", err)
	}
	if s.header, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"305496"}},
		Alignment: &excelize.Alignment{Horizontal: "center", WrapText: true},
	}); err != nil {
		return s, fmt.Errorf("failed to create header style: %w", err)
	}
	if s.money, err = f.NewStyle(&excelize.Style{CustomNumFmt: &numFmt}); err != nil {
		return s, fmt.Errorf("failed to create money style: %w", err)
	}
	if s.total, err = f.NewStyle(&excelize.Style{
		Font:         &excelize.Font{Bold: true},
		CustomNumFmt: &numFmt,
		Border:       []excelize.Border{{Type: "top", Color: "000000", Style: 1}},
	}); err != nil {
		return s, fmt.Errorf("failed to create total style: %w", err)
	}
	return s, nil
}

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col+1, row)
	return name
}

// amount converts a two-place money value to a spreadsheet number
func amount(d decimal.Decimal) float64 {
	return entity.RoundMoney(d).InexactFloat64()
}

func statusLabel(s string) string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return s
}
