package dispatch

import (
	"bytes"
	"fmt"
	"image/png"

	"ms-fulfillment/internal/models"

	"github.com/signintech/gopdf"
)

// TicketPDFGenerator renders the printable ticket artifact attached to
// the confirmation email.
type TicketPDFGenerator struct {
	FontPath string
}

func NewTicketPDFGenerator(fontPath string) *TicketPDFGenerator {
	if fontPath == "" {
		fontPath = "./fonts/DejaVuSans.ttf"
	}
	return &TicketPDFGenerator{FontPath: fontPath}
}

func (g *TicketPDFGenerator) Generate(order *models.Order, qrCode []byte) ([]byte, error) {
	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	err := pdf.AddTTFFont("dejavu", g.FontPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load font: %w", err)
	}

	err = pdf.SetFont("dejavu", "", 14)
	if err != nil {
		return nil, fmt.Errorf("failed to set font: %w", err)
	}

	addHeader(pdf, order)

	pdf.SetY(70)
	addOrderInfo(pdf, order)

	if len(qrCode) > 0 {
		pdf.SetY(pdf.GetY() + 20)
		addQRCode(pdf, qrCode)
	}

	pdf.SetY(760)
	addFooter(pdf)

	var buf bytes.Buffer
	err = pdf.Write(&buf)
	if err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}

	return buf.Bytes(), nil
}

func addHeader(pdf *gopdf.GoPdf, order *models.Order) {
	pdf.SetX(40)
	pdf.SetY(30)
	pdf.Cell(nil, order.Title)
}

func addOrderInfo(pdf *gopdf.GoPdf, order *models.Order) {
	symbol := models.CurrencySymbol(order.Currency)

	info := []struct {
		Label string
		Value string
	}{
		{"Order Reference", order.Reference},
		{"Name", order.Contact.Name},
		{"Date", order.StartDate.Format("Monday, 2 January 2006")},
		{"Time", order.StartTime},
		{"Location", order.Location},
		{"Total Paid", fmt.Sprintf("%s%.2f", symbol, order.Price)},
	}

	pdf.SetX(40)
	for _, item := range info {
		pdf.Cell(nil, item.Label+": "+item.Value)
		pdf.Br(22)
		pdf.SetX(40)
	}

	pdf.Br(10)
	pdf.SetX(40)
	pdf.Cell(nil, "Tickets:")
	pdf.Br(22)
	for _, line := range order.Tickets {
		pdf.SetX(55)
		pdf.Cell(nil, fmt.Sprintf("%d x %s", line.Quantity, line.Name))
		pdf.Br(20)
	}
}

func addQRCode(pdf *gopdf.GoPdf, qrCode []byte) {
	img, err := png.Decode(bytes.NewReader(qrCode))
	if err != nil {
		pdf.Cell(nil, "Failed to load QR code")
		return
	}

	rect := &gopdf.Rect{W: 120, H: 120}
	err = pdf.ImageFrom(img, 40, pdf.GetY(), rect)
	if err != nil {
		pdf.Cell(nil, "Failed to draw QR code")
	}
}

func addFooter(pdf *gopdf.GoPdf) {
	pdf.SetX(40)
	pdf.Cell(nil, "Present this ticket at the entrance. Each ticket admits once.")
}
