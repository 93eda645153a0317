package service

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Mickdownunder/kitchen-online-sub001/internal/procurement/workflow"
)

var bucketExportHeaders = []string{
	"Warteschlange",
	"Kunde",
	"Auftragsnr.",
	"Lieferant",
	"Bereitstellung",
	"Tage bis Bereitstellung",
	"Positionen",
	"Offen zu bestellen",
	"Offene Lieferung",
	"AB-Status",
	"Bestellnr.",
	"Bestellstatus",
	"Nächster Schritt",
}

// ExportBuckets renders the workflow board as an xlsx workbook. With a
// queue filter only matching buckets are exported.
func (s *BucketService) ExportBuckets(ctx context.Context, actor Actor, queue *workflow.Queue) (*excelize.File, string, error) {
	buckets, err := s.ListBuckets(ctx, actor)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	sheet := "Bestellworkflow"
	f.SetSheetName("Sheet1", sheet)

	boldStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})

	for i, h := range bucketExportHeaders {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := col + "1"
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, boldStyle)
	}

	row := 2
	for _, b := range buckets {
		if queue != nil && b.Queue != *queue {
			continue
		}

		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), b.QueueLabel)
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), b.CustomerName)
		f.SetCellValue(sheet, fmt.Sprintf("C%d", row), b.ProjectOrderNumber)
		f.SetCellValue(sheet, fmt.Sprintf("D%d", row), b.SupplierName)
		if b.ReadinessDate != nil {
			f.SetCellValue(sheet, fmt.Sprintf("E%d", row), b.ReadinessDate.Format("02.01.2006"))
		}
		if b.DaysUntilReadiness != nil {
			f.SetCellValue(sheet, fmt.Sprintf("F%d", row), *b.DaysUntilReadiness)
		}
		f.SetCellValue(sheet, fmt.Sprintf("G%d", row), b.TotalItems)
		f.SetCellValue(sheet, fmt.Sprintf("H%d", row), b.OpenOrderItems)
		f.SetCellValue(sheet, fmt.Sprintf("I%d", row), b.OpenDeliveryItems)
		f.SetCellValue(sheet, fmt.Sprintf("J%d", row), string(b.AbTiming))
		if b.Order != nil {
			f.SetCellValue(sheet, fmt.Sprintf("K%d", row), b.Order.OrderNo)
			f.SetCellValue(sheet, fmt.Sprintf("L%d", row), b.Order.Status)
		}
		f.SetCellValue(sheet, fmt.Sprintf("M%d", row), b.NextAction)
		row++
	}

	for i := range bucketExportHeaders {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheet, col, col, 22)
	}

	fileName := fmt.Sprintf("bestellworkflow_%s.xlsx", time.Now().Format("2006-01-02"))
	return f, fileName, nil
}
