package service

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Mickdownunder/kitchen-online-sub001/internal/procurement/entity"
)

func TestBuildOrderTemplate(t *testing.T) {
	install := time.Date(2025, 4, 15, 0, 0, 0, 0, time.Local)
	order := &entity.SupplierOrder{
		OrderNo:   "KO-1001-LSUPA",
		ProjectID: "proj-1",
		Items: []entity.SupplierOrderItem{
			{Description: "Arbeitsplatte Eiche", ModelNumber: "AP-200", Quantity: 2.5, Unit: "m"},
			{Description: "Sockelblende", Quantity: 3, Unit: "Stk"},
		},
	}
	project := &entity.Project{
		OrderNumber:      "KO-1001",
		CustomerName:     "Familie Huber",
		InstallationDate: &install,
	}

	tpl := BuildOrderTemplate(order, project, "Naber GmbH", "Küchen Online")

	assert.Equal(t, TemplateVersion, tpl.Version)
	assert.Equal(t, "Bestellung KO-1001-LSUPA (KO-1001)", tpl.Subject)

	assert.Contains(t, tpl.HTML, "Naber GmbH")
	assert.Contains(t, tpl.HTML, "Arbeitsplatte Eiche")
	assert.Contains(t, tpl.HTML, "2,5", "decimal quantities use a comma")
	assert.Contains(t, tpl.HTML, "15.04.2025")
	assert.Contains(t, tpl.HTML, "Küchen Online")

	assert.Contains(t, tpl.Text, "Bestellung KO-1001-LSUPA")
	assert.Contains(t, tpl.Text, "Sockelblende")
	assert.Contains(t, tpl.Text, "15.04.2025")
}

func TestBuildOrderTemplateEscapesHTML(t *testing.T) {
	order := &entity.SupplierOrder{
		OrderNo: "KO-1",
		Items: []entity.SupplierOrderItem{
			{Description: `Griff <script>alert("x")</script>`, Quantity: 1, Unit: "Stk"},
		},
	}

	tpl := BuildOrderTemplate(order, nil, "A & B", "C & D")

	assert.NotContains(t, tpl.HTML, "<script>")
	assert.Contains(t, tpl.HTML, "&lt;script&gt;")
	assert.Contains(t, tpl.HTML, "A &amp; B")
}

func TestBuildOrderTemplateWithoutProject(t *testing.T) {
	order := &entity.SupplierOrder{
		OrderNo:   "KO-2",
		ProjectID: "proj-9",
		Items:     []entity.SupplierOrderItem{{Description: "Spüle", Quantity: 1, Unit: "Stk"}},
	}

	tpl := BuildOrderTemplate(order, nil, "Lieferant", "Firma")

	assert.Contains(t, tpl.Subject, "proj-9", "falls back to the project id")
	assert.Contains(t, tpl.Text, "offen", "missing installation date stays open")
}

func TestFormatQuantity(t *testing.T) {
	assert.Equal(t, "3", formatQuantity(3))
	assert.Equal(t, "2,50", formatQuantity(2.5))
	assert.Equal(t, "0,25", formatQuantity(0.25))
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "offen", formatDate(nil))
	d := time.Date(2025, 1, 2, 10, 0, 0, 0, time.Local)
	assert.Equal(t, "02.01.2025", formatDate(&d))
}

func TestTemplateTextHasNoMarkup(t *testing.T) {
	order := &entity.SupplierOrder{
		OrderNo: "KO-3",
		Items:   []entity.SupplierOrderItem{{Description: "Herd", Quantity: 1, Unit: "Stk"}},
	}
	tpl := BuildOrderTemplate(order, nil, "L", "F")
	assert.False(t, strings.Contains(tpl.Text, "<"), "text variant stays plain")
}
