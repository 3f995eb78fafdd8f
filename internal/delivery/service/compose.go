package service

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"path"
	"strconv"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/gosimple/slug"
	"github.com/smallbiznis/carebill/internal/delivery/domain"
	"github.com/smallbiznis/carebill/internal/providers/email"
)

const batchHTMLTemplate = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>{{.Subject}}</title>
  <style>
    body { margin: 0; padding: 32px; font-family: -apple-system, "Segoe UI", Roboto, Helvetica, Arial, sans-serif; color: #1a1f36; background: #f7f9fc; }
    .card { background: #ffffff; max-width: 640px; margin: 0 auto; padding: 40px; border-radius: 4px; }
    h1 { margin: 0 0 8px; font-size: 20px; }
    .muted { color: #697386; font-size: 13px; }
    table { width: 100%; border-collapse: collapse; margin-top: 24px; }
    th { text-align: left; font-size: 11px; text-transform: uppercase; color: #8792a2; border-bottom: 1px solid #e3e8ee; padding: 8px 0; }
    td { padding: 12px 0; border-bottom: 1px solid #e3e8ee; font-size: 14px; vertical-align: top; }
    .sub { font-size: 12px; color: #697386; }
  </style>
</head>
<body>
  <div class="card">
    <h1>{{.PracticeName}}</h1>
    <div class="muted">{{.Count}} document{{if ne .Count 1}}s{{end}} attached, prepared {{.PreparedAt}}</div>
    <table>
      <thead>
        <tr><th>Document</th><th>Attachment</th></tr>
      </thead>
      <tbody>
        {{range .Documents}}
        <tr>
          <td>
            <div>{{.Title}}</div>
            {{if .Summary}}<div class="sub">{{.Summary}}</div>{{end}}
          </td>
          <td>{{.FileName}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>
  </div>
</body>
</html>
`

const batchTextTemplate = `{{.PracticeName}}

{{.Count}} document{{if ne .Count 1}}s{{end}} attached, prepared {{.PreparedAt}}.
{{range .Documents}}
- {{.Title}}{{if .Summary}} ({{.Summary}}){{end}}: {{.FileName}}{{end}}
`

var (
	batchHTML = htmltemplate.Must(htmltemplate.New("batch_html").Parse(batchHTMLTemplate))
	batchText = texttemplate.Must(texttemplate.New("batch_text").Parse(batchTextTemplate))
)

type batchView struct {
	Subject      string
	PracticeName string
	PreparedAt   string
	Count        int
	Documents    []documentView
}

type documentView struct {
	Title    string
	Summary  string
	FileName string
}

// compose builds one message carrying every rendered document as an attachment.
func (s *Service) compose(docs []domain.Document, recipients []string, preparedAt time.Time) (email.Message, error) {
	subject := strings.TrimSpace(s.cfg.Subject)
	if subject == "" {
		subject = "Billing documents"
	}
	subject = fmt.Sprintf("%s (%d)", subject, len(docs))

	view := batchView{
		Subject:      subject,
		PracticeName: s.cfg.PracticeName,
		PreparedAt:   preparedAt.UTC().Format("2006-01-02 15:04 MST"),
		Count:        len(docs),
		Documents:    make([]documentView, 0, len(docs)),
	}
	attachments := make([]email.Attachment, 0, len(docs))
	used := make(map[string]int, len(docs))
	for _, doc := range docs {
		name := attachmentName(doc, used)
		view.Documents = append(view.Documents, documentView{
			Title:    doc.Title,
			Summary:  doc.Summary,
			FileName: name,
		})
		attachments = append(attachments, email.Attachment{
			FileName:    name,
			ContentType: doc.ContentType,
			Content:     doc.Content,
		})
	}

	var html, text bytes.Buffer
	if err := batchHTML.Execute(&html, view); err != nil {
		return email.Message{}, err
	}
	if err := batchText.Execute(&text, view); err != nil {
		return email.Message{}, err
	}

	return email.Message{
		To:          recipients,
		Subject:     subject,
		HTML:        html.String(),
		Text:        text.String(),
		Attachments: attachments,
	}, nil
}

// attachmentName slugs the rendered file name and keeps names unique within a batch.
func attachmentName(doc domain.Document, used map[string]int) string {
	ext := strings.ToLower(path.Ext(doc.FileName))
	base := slug.Make(strings.TrimSuffix(doc.FileName, path.Ext(doc.FileName)))
	if base == "" {
		base = slug.Make(string(doc.EntityType) + "-" + doc.EntityID.String())
	}

	name := base + ext
	if n := used[name]; n > 0 {
		name = base + "-" + strconv.Itoa(n+1) + ext
	}
	used[base+ext]++
	return name
}

// mergeRecipients unions the request and item recipients, falling back to the
// configured defaults when neither names anyone.
func mergeRecipients(requested []string, items []domain.QueueItem, defaults []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(requested))
	add := func(values []string) {
		for _, value := range values {
			value = strings.TrimSpace(value)
			if value == "" {
				continue
			}
			key := strings.ToLower(value)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, value)
		}
	}

	add(requested)
	for _, item := range items {
		add(item.Recipients)
	}
	if len(out) == 0 {
		add(defaults)
	}
	return out
}
