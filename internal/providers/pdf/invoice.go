package pdf

import (
	"context"
	"errors"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

var ErrNoInvoiceLines = errors.New("invoice has no lines")

// InvoiceData is the printable view of one weekly client invoice. Amounts are preformatted.
type InvoiceData struct {
	PracticeName  string
	InvoiceNumber string
	IssueDate     string
	ServicePeriod string
	Status        string

	BillToName  string
	BillToEmail string
	PayerName   string

	Items []InvoiceItem

	TotalUnits  string
	Total       string
	Paid        string
	Adjustments string
	AmountDue   string
}

type InvoiceItem struct {
	ServiceDate string
	Description string
	Minutes     int
	Units       string
	Rate        string
	Amount      string
	Suppressed  bool
}

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) GenerateInvoice(ctx context.Context, invoice InvoiceData) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(invoice.Items) == 0 {
		return nil, ErrNoInvoiceLines
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(8, invoice.PracticeName, props.Text{
			Size:  16,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, "Invoice", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Right,
		}),
	)

	m.AddRow(22,
		col.New(6).Add(
			text.New("Invoice number: "+invoice.InvoiceNumber, props.Text{Top: 0}),
			text.New("Date of issue: "+invoice.IssueDate, props.Text{Top: 4}),
			text.New("Service week: "+invoice.ServicePeriod, props.Text{Top: 8}),
			text.New("Status: "+invoice.Status, props.Text{Top: 12}),
		),
		col.New(6).Add(
			text.New("Bill to", props.Text{Style: fontstyle.Bold, Align: align.Right}),
			text.New(invoice.BillToName, props.Text{Top: 5, Align: align.Right}),
			text.New(invoice.BillToEmail, props.Text{Top: 9, Align: align.Right}),
			text.New(invoice.PayerName, props.Text{Top: 13, Align: align.Right}),
		),
	)

	m.AddRow(14,
		text.NewCol(12, invoice.AmountDue+" due", props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   4,
		}),
	)

	m.AddRow(10,
		text.NewCol(2, "Date", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(4, "Service", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(1, "Min", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(1, "Units", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Rate", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(2, line.NewCol(12))

	for _, item := range invoice.Items {
		description := item.Description
		if item.Suppressed {
			description += " (not billable)"
		}
		m.AddRow(8,
			text.NewCol(2, item.ServiceDate, props.Text{Size: 9}),
			text.NewCol(4, description, props.Text{Size: 9}),
			text.NewCol(1, itoa(item.Minutes), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(1, item.Units, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, item.Rate, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, item.Amount, props.Text{Size: 9, Align: align.Right}),
		)
	}
	m.AddRow(2, line.NewCol(12))

	totals := []struct {
		label string
		value string
		bold  bool
	}{
		{"Total units", invoice.TotalUnits, false},
		{"Total", invoice.Total, false},
		{"Paid", invoice.Paid, false},
		{"Adjustments", invoice.Adjustments, false},
		{"Amount due", invoice.AmountDue, true},
	}
	for _, row := range totals {
		style := fontstyle.Normal
		if row.bold {
			style = fontstyle.Bold
		}
		m.AddRow(8,
			col.New(8),
			text.NewCol(2, row.label, props.Text{Size: 9, Style: style}),
			text.NewCol(2, row.value, props.Text{Size: 9, Style: style, Align: align.Right}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}
