// Package document renders the invoice and timesheet attachments sent by the delivery queue.
package document

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	clientdomain "github.com/smallbiznis/carebill/internal/client/domain"
	"github.com/smallbiznis/carebill/internal/config"
	deliverydomain "github.com/smallbiznis/carebill/internal/delivery/domain"
	invoicedomain "github.com/smallbiznis/carebill/internal/invoice/domain"
	"github.com/smallbiznis/carebill/internal/providers/pdf"
	"github.com/smallbiznis/carebill/internal/providers/xlsx"
	timesheetdomain "github.com/smallbiznis/carebill/internal/timesheet/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

const (
	ContentTypePDF  = "application/pdf"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	dateLayout = "2006-01-02"
)

var (
	ErrSourceNotFound    = errors.New("document_source_not_found")
	ErrUnsupportedEntity = errors.New("unsupported_entity_type")
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Config        config.Config
	InvoiceRepo   invoicedomain.Repository
	TimesheetRepo timesheetdomain.Repository
	ClientRepo    clientdomain.Repository
	PDF           pdf.Provider
	XLSX          xlsx.Provider
}

type Renderer struct {
	db            *gorm.DB
	practiceName  string
	invoiceRepo   invoicedomain.Repository
	timesheetRepo timesheetdomain.Repository
	clientRepo    clientdomain.Repository
	pdf           pdf.Provider
	xlsx          xlsx.Provider
}

func New(p Params) deliverydomain.Renderer {
	return &Renderer{
		db:            p.DB,
		practiceName:  p.Config.Dispatch.PracticeName,
		invoiceRepo:   p.InvoiceRepo,
		timesheetRepo: p.TimesheetRepo,
		clientRepo:    p.ClientRepo,
		pdf:           p.PDF,
		xlsx:          p.XLSX,
	}
}

// Render produces the attachment for one queue item. Every failure is a *RenderError.
func (r *Renderer) Render(ctx context.Context, item deliverydomain.QueueItem) (deliverydomain.Document, error) {
	var (
		doc deliverydomain.Document
		err error
	)
	switch item.EntityType {
	case deliverydomain.EntityInvoice:
		doc, err = r.renderInvoice(ctx, item)
	case deliverydomain.EntityTimesheet:
		doc, err = r.renderTimesheet(ctx, item)
	default:
		err = ErrUnsupportedEntity
	}
	if err == nil && len(doc.Content) == 0 {
		err = errors.New("renderer returned no content")
	}
	if err != nil {
		return deliverydomain.Document{}, &deliverydomain.RenderError{
			EntityType: item.EntityType,
			EntityID:   item.EntityID,
			Err:        err,
		}
	}
	doc.EntityType = item.EntityType
	doc.EntityID = item.EntityID
	return doc, nil
}

func (r *Renderer) renderInvoice(ctx context.Context, item deliverydomain.QueueItem) (deliverydomain.Document, error) {
	invoice, err := r.invoiceRepo.FindByID(ctx, r.db, item.EntityID)
	if err != nil {
		return deliverydomain.Document{}, err
	}
	if invoice == nil {
		return deliverydomain.Document{}, ErrSourceNotFound
	}
	client, err := r.clientRepo.FindClient(ctx, r.db, invoice.ClientID)
	if err != nil {
		return deliverydomain.Document{}, err
	}
	if client == nil {
		return deliverydomain.Document{}, fmt.Errorf("client %s: %w", invoice.ClientID, ErrSourceNotFound)
	}
	payer, err := r.clientRepo.FindPayerForClient(ctx, r.db, client.ID)
	if err != nil {
		return deliverydomain.Document{}, err
	}
	lines, err := r.invoiceRepo.ListLines(ctx, r.db, invoice.ID)
	if err != nil {
		return deliverydomain.Document{}, err
	}

	period := invoice.WeekStart.Format(dateLayout) + " to " + invoice.WeekEnd.Format(dateLayout)
	data := pdf.InvoiceData{
		PracticeName:  r.practiceName,
		InvoiceNumber: invoice.InvoiceNumber,
		IssueDate:     invoice.CreatedAt.UTC().Format(dateLayout),
		ServicePeriod: period,
		Status:        string(invoice.Status),
		BillToName:    client.Name,
		BillToEmail:   client.BillingEmail,
		Items:         make([]pdf.InvoiceItem, 0, len(lines)),
		TotalUnits:    invoice.TotalUnits.String(),
		Total:         money(invoice.TotalAmount),
		Paid:          money(invoice.PaidAmount),
		Adjustments:   money(invoice.Adjustments),
		AmountDue:     money(invoice.OutstandingBalance),
	}
	if payer != nil {
		data.PayerName = payer.Name
	}
	for _, line := range lines {
		data.Items = append(data.Items, pdf.InvoiceItem{
			ServiceDate: line.ServiceDate.Format(dateLayout),
			Description: serviceLabel(line.ServiceTag),
			Minutes:     line.Minutes,
			Units:       line.Units.String(),
			Rate:        money(line.Rate),
			Amount:      money(line.Amount),
			Suppressed:  line.Suppressed,
		})
	}

	content, err := r.pdf.GenerateInvoice(ctx, data)
	if err != nil {
		return deliverydomain.Document{}, err
	}
	return deliverydomain.Document{
		Title:       "Invoice " + invoice.InvoiceNumber,
		Summary:     fmt.Sprintf("%s, week of %s, %s", client.Name, invoice.WeekStart.Format(dateLayout), money(invoice.TotalAmount)),
		FileName:    "invoice-" + invoice.InvoiceNumber + ".pdf",
		ContentType: ContentTypePDF,
		Content:     content,
	}, nil
}

func (r *Renderer) renderTimesheet(ctx context.Context, item deliverydomain.QueueItem) (deliverydomain.Document, error) {
	ts, err := r.timesheetRepo.FindByID(ctx, r.db, item.EntityID)
	if err != nil {
		return deliverydomain.Document{}, err
	}
	if ts == nil {
		return deliverydomain.Document{}, ErrSourceNotFound
	}
	client, err := r.clientRepo.FindClient(ctx, r.db, ts.ClientID)
	if err != nil {
		return deliverydomain.Document{}, err
	}
	if client == nil {
		return deliverydomain.Document{}, fmt.Errorf("client %s: %w", ts.ClientID, ErrSourceNotFound)
	}
	entries, err := r.timesheetRepo.ListEntries(ctx, r.db, ts.ID)
	if err != nil {
		return deliverydomain.Document{}, err
	}

	program := "standard"
	if ts.IsSupervisory {
		program = "supervisory"
	}
	period := ts.StartDate.Format(dateLayout) + " to " + ts.EndDate.Format(dateLayout)
	data := xlsx.TimesheetData{
		PracticeName: r.practiceName,
		ClientName:   client.Name,
		ProviderID:   ts.ProviderID.String(),
		Period:       period,
		Program:      program,
		Status:       string(ts.Status),
		Entries:      make([]xlsx.TimesheetEntry, 0, len(entries)),
	}
	for _, entry := range entries {
		data.Entries = append(data.Entries, xlsx.TimesheetEntry{
			Date:       entry.EntryDate.Format(dateLayout),
			StartTime:  entry.StartTime,
			EndTime:    entry.EndTime,
			Minutes:    entry.DurationMinutes,
			ServiceTag: entry.ServiceTag,
			Billed:     entry.Billed,
		})
		data.TotalMinutes += entry.DurationMinutes
	}

	content, err := r.xlsx.GenerateTimesheet(ctx, data)
	if err != nil {
		return deliverydomain.Document{}, err
	}
	return deliverydomain.Document{
		Title:       "Timesheet " + period,
		Summary:     fmt.Sprintf("%s, %s program, %d minutes", client.Name, program, data.TotalMinutes),
		FileName:    "timesheet-" + client.Name + "-" + ts.StartDate.Format(dateLayout) + ".xlsx",
		ContentType: ContentTypeXLSX,
		Content:     content,
	}, nil
}

func money(d decimal.Decimal) string {
	if d.IsNegative() {
		return "-$" + d.Neg().StringFixed(2)
	}
	return "$" + d.StringFixed(2)
}

func serviceLabel(tag string) string {
	if tag == "" {
		return "Service"
	}
	return tag
}
