package service

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/Mickdownunder/kitchen-online-sub001/internal/procurement/entity"
)

// TemplateVersion is stamped into every dispatch log so a stored send
// can be traced back to the exact rendering rules.
const TemplateVersion = "supplier-order-v1"

// OrderTemplate is the rendered order email.
type OrderTemplate struct {
	Version string
	Subject string
	HTML    string
	Text    string
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "offen"
	}
	return t.Format("02.01.2006")
}

func formatQuantity(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return strings.ReplaceAll(fmt.Sprintf("%.2f", v), ".", ",")
}

// BuildOrderTemplate renders the German order email for a supplier
// order. Caller guarantees the order has positions.
func BuildOrderTemplate(order *entity.SupplierOrder, project *entity.Project, supplierName, companyName string) OrderTemplate {
	projectNo := order.ProjectID
	customer := "Unbekannt"
	var installDate *time.Time
	if project != nil {
		if project.OrderNumber != "" {
			projectNo = project.OrderNumber
		}
		if project.CustomerName != "" {
			customer = project.CustomerName
		}
		installDate = project.InstallationDate
	}

	subject := fmt.Sprintf("Bestellung %s (%s)", order.OrderNo, projectNo)

	var rows strings.Builder
	var textRows strings.Builder
	for i := range order.Items {
		it := &order.Items[i]
		details := strings.TrimSpace(strings.Join(nonEmpty(it.ModelNumber, it.Manufacturer), " · "))
		fmt.Fprintf(&rows, `<tr>
  <td style="padding:8px;border-bottom:1px solid #e2e8f0;">%d</td>
  <td style="padding:8px;border-bottom:1px solid #e2e8f0;">%s%s</td>
  <td style="padding:8px;border-bottom:1px solid #e2e8f0;text-align:right;">%s</td>
  <td style="padding:8px;border-bottom:1px solid #e2e8f0;">%s</td>
</tr>`,
			i+1,
			html.EscapeString(it.Description),
			detailDiv(details),
			formatQuantity(it.Quantity),
			html.EscapeString(it.Unit),
		)
		fmt.Fprintf(&textRows, "%d. %s  %s %s\n", i+1, it.Description, formatQuantity(it.Quantity), it.Unit)
	}

	htmlBody := fmt.Sprintf(`<!doctype html>
<html>
  <body style="font-family:Arial,sans-serif;line-height:1.45;color:#0f172a;background:#f8fafc;padding:24px;">
    <div style="max-width:760px;margin:0 auto;background:#fff;border:1px solid #e2e8f0;border-radius:12px;overflow:hidden;">
      <div style="background:#0f172a;color:#fff;padding:18px 24px;">
        <div style="font-size:12px;letter-spacing:0.08em;text-transform:uppercase;opacity:0.8;">Bestellung</div>
        <h1 style="margin:6px 0 0 0;font-size:22px;">%s</h1>
      </div>
      <div style="padding:20px 24px;">
        <p>Guten Tag %s,</p>
        <p>bitte liefern Sie die folgenden Positionen zu Auftrag <strong>%s</strong> (%s).</p>
        <table style="width:100%%;border-collapse:collapse;margin-top:16px;font-size:14px;">
          <thead>
            <tr style="text-align:left;background:#f1f5f9;">
              <th style="padding:8px;">Pos.</th>
              <th style="padding:8px;">Artikel</th>
              <th style="padding:8px;text-align:right;">Menge</th>
              <th style="padding:8px;">Einheit</th>
            </tr>
          </thead>
          <tbody>%s</tbody>
        </table>
        <div style="margin-top:18px;padding:12px 14px;background:#f8fafc;border:1px solid #e2e8f0;border-radius:8px;font-size:13px;">
          <div><strong>Referenztermin:</strong> %s</div>
        </div>
        <p style="margin-top:18px;">Bitte senden Sie uns die Auftragsbestätigung mit bestätigtem Liefertermin zurück.</p>
        <p>Mit freundlichen Grüßen<br/>%s</p>
      </div>
    </div>
  </body>
</html>`,
		html.EscapeString(order.OrderNo),
		html.EscapeString(supplierName),
		html.EscapeString(projectNo),
		html.EscapeString(customer),
		rows.String(),
		html.EscapeString(formatDate(installDate)),
		html.EscapeString(companyName),
	)

	text := fmt.Sprintf("Bestellung %s\nAuftrag: %s (%s)\n\nPositionen:\n%s\nReferenztermin: %s\n\nBitte Auftragsbestätigung mit bestätigtem Liefertermin zurücksenden.\n\n%s\n",
		order.OrderNo, projectNo, customer, textRows.String(), formatDate(installDate), companyName)

	return OrderTemplate{
		Version: TemplateVersion,
		Subject: subject,
		HTML:    htmlBody,
		Text:    text,
	}
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func detailDiv(details string) string {
	if details == "" {
		return ""
	}
	return fmt.Sprintf(`<div style="color:#64748b;font-size:12px;margin-top:2px;">%s</div>`, html.EscapeString(details))
}
