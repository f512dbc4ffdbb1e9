package adminapi

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/labstack/echo/v4"
	"github.com/montanaflynn/stats"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/talkincode/packflow/internal/domain"
	"github.com/talkincode/packflow/internal/webserver"
	"github.com/talkincode/packflow/internal/workflow"
)

// dispatchLine is one row of the dispatch report
type dispatchLine struct {
	ShortID        string `csv:"Order"`
	PONumber       string `csv:"PO Number"`
	CustomerName   string `csv:"Customer"`
	ProductName    string `csv:"Product"`
	Size           string `csv:"Size"`
	Quantity       int    `csv:"Quantity"`
	DispatchStatus string `csv:"Dispatch Status"`
	Total          string `csv:"Total"`
	DispatchedAt   string `csv:"Dispatched At"`
}

var dispatchHeaders = []string{
	"Order", "PO Number", "Customer", "Product", "Size", "Quantity", "Dispatch Status", "Total", "Dispatched At",
}

var titleCase = cases.Title(language.English)

func registerReportRoutes() {
	webserver.ApiGET("/reports/dispatch.xlsx", dispatchReportXLSX)
	webserver.ApiGET("/reports/dispatch.csv", dispatchReportCSV)
	webserver.ApiGET("/reports/summary", summaryReport)
}

// dispatchLines loads orders in the dispatch stages within the date filter
func dispatchLines(c echo.Context) ([]dispatchLine, decimal.Decimal, error) {
	db, err := dashboardQuery(c)
	if err != nil {
		return nil, decimal.Zero, err
	}
	var orders []domain.Order
	err = db.Where("stage IN ?", []string{string(workflow.StageDispatch), string(workflow.StageDispatched)}).
		Order("created_at ASC").Find(&orders).Error
	if err != nil {
		return nil, decimal.Zero, err
	}
	total := decimal.Zero
	lines := make([]dispatchLine, len(orders))
	for i, o := range orders {
		t := o.Total()
		total = total.Add(t)
		lines[i] = dispatchLine{
			ShortID:        o.ShortID,
			PONumber:       o.PONumber,
			CustomerName:   o.CustomerName,
			ProductName:    o.ProductName,
			Size:           o.Size,
			Quantity:       o.Quantity,
			DispatchStatus: titleCase.String(o.DispatchStatus),
			Total:          t.StringFixed(2),
		}
		if o.DispatchedAt != nil {
			lines[i].DispatchedAt = o.DispatchedAt.Format("2006-01-02 15:04")
		}
	}
	return lines, total, nil
}

func reportFilename(ext string) string {
	return fmt.Sprintf("dispatch-%s.%s", time.Now().Format("20060102"), ext)
}

func dispatchReportCSV(c echo.Context) error {
	lines, _, err := dispatchLines(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "REPORT_ERROR", "Failed to build report", err.Error())
	}
	var buf bytes.Buffer
	if err := gocsv.Marshal(&lines, &buf); err != nil {
		return fail(c, http.StatusInternalServerError, "REPORT_ERROR", "Failed to encode report", err.Error())
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", reportFilename("csv")))
	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func dispatchReportXLSX(c echo.Context) error {
	lines, total, err := dispatchLines(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "REPORT_ERROR", "Failed to build report", err.Error())
	}

	const sheet = "Dispatch"
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			zap.L().Warn("close xlsx", zap.Error(err))
		}
	}()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fail(c, http.StatusInternalServerError, "REPORT_ERROR", "Failed to build report", err.Error())
	}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, h := range dispatchHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
		_ = f.SetCellStyle(sheet, cell, cell, headerStyle)
	}
	for r, l := range lines {
		values := []interface{}{
			l.ShortID, l.PONumber, l.CustomerName, l.ProductName, l.Size,
			l.Quantity, l.DispatchStatus, l.Total, l.DispatchedAt,
		}
		for i, v := range values {
			cell, _ := excelize.CoordinatesToCellName(i+1, r+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	summaryRow := len(lines) + 3
	_ = f.SetCellValue(sheet, fmt.Sprintf("G%d", summaryRow), "TOTAL")
	_ = f.SetCellValue(sheet, fmt.Sprintf("H%d", summaryRow), total.StringFixed(2))
	_ = f.AutoFilter(sheet, "A1:I1", []excelize.AutoFilterOptions{})
	_ = f.SetPanes(sheet, &excelize.Panes{Freeze: true, Split: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	buf, err := f.WriteToBuffer()
	if err != nil {
		return fail(c, http.StatusInternalServerError, "REPORT_ERROR", "Failed to encode report", err.Error())
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", reportFilename("xlsx")))
	return c.Blob(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

type quantityStats struct {
	Count  int     `json:"count"`
	Sum    float64 `json:"sum"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	P90    float64 `json:"p90"`
	Max    float64 `json:"max"`
}

func describe(data stats.Float64Data) quantityStats {
	q := quantityStats{Count: data.Len()}
	if q.Count == 0 {
		return q
	}
	q.Sum, _ = data.Sum()
	q.Mean, _ = data.Mean()
	q.Median, _ = data.Median()
	q.P90, _ = data.Percentile(90)
	q.Max, _ = data.Max()
	return q
}

// summaryReport aggregates stage counts, status breakdowns and order value
func summaryReport(c echo.Context) error {
	from, to, err := parseDateRange(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_DATE", "Unable to parse date filter", err.Error())
	}
	scoped := func(db *gorm.DB) *gorm.DB {
		db = db.Model(&domain.Order{})
		if !from.IsZero() {
			db = db.Where("created_at >= ?", from)
		}
		if !to.IsZero() {
			db = db.Where("created_at <= ?", to)
		}
		return db
	}

	stages := []workflow.Stage{
		workflow.StageCreated, workflow.StageProduction, workflow.StagePackaging,
		workflow.StageDispatch, workflow.StageDispatched,
	}
	counts := make([]int64, len(stages))
	g, ctx := errgroup.WithContext(c.Request().Context())
	db := GetAppContext(c).DB()
	for i, st := range stages {
		i, st := i, st
		g.Go(func() error {
			return scoped(db.WithContext(ctx)).Where("stage = ?", string(st)).Count(&counts[i]).Error
		})
	}

	var orders []domain.Order
	g.Go(func() error {
		return scoped(db.WithContext(ctx)).Find(&orders).Error
	})
	if err := g.Wait(); err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to build summary", err.Error())
	}

	byStage := make(map[string]int64, len(stages))
	for i, st := range stages {
		byStage[string(st)] = counts[i]
	}

	statusLabels := map[string]map[string]int{
		"production": {},
		"packaging":  {},
		"dispatch":   {},
	}
	quantities := make(stats.Float64Data, 0, len(orders))
	value := decimal.Zero
	for _, o := range orders {
		quantities = append(quantities, float64(o.Quantity))
		value = value.Add(o.Total())
		if o.Status != "" {
			statusLabels["production"][titleCase.String(o.Status)]++
		}
		if o.PackagingStatus != "" {
			statusLabels["packaging"][titleCase.String(o.PackagingStatus)]++
		}
		if o.DispatchStatus != "" {
			statusLabels["dispatch"][titleCase.String(o.DispatchStatus)]++
		}
	}

	return ok(c, map[string]interface{}{
		"orders":     len(orders),
		"stages":     byStage,
		"statuses":   statusLabels,
		"quantity":   describe(quantities),
		"totalValue": value.StringFixed(2),
	})
}
