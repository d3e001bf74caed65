package dispatch

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net/smtp"
	"net/textproto"

	"ms-fulfillment/internal/config"
	"ms-fulfillment/internal/models"
)

// Mailer sends the confirmation email with the ticket PDF attached.
type Mailer struct {
	cfg config.EmailConfig
}

func NewMailer(cfg config.EmailConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

func (m *Mailer) Enabled() bool {
	return m.cfg.SMTPUsername != "" && m.cfg.SMTPPassword != ""
}

func (m *Mailer) Notify(order *models.Order, artifact []byte) error {
	if !m.Enabled() {
		return fmt.Errorf("smtp credentials not configured")
	}

	message, err := m.buildMessage(order, artifact)
	if err != nil {
		return err
	}

	addr := m.cfg.SMTPHost + ":" + m.cfg.SMTPPort
	auth := smtp.PlainAuth("", m.cfg.SMTPUsername, m.cfg.SMTPPassword, m.cfg.SMTPHost)
	return smtp.SendMail(addr, auth, m.cfg.SMTPUsername, []string{order.Contact.Email}, message)
}

func (m *Mailer) buildMessage(order *models.Order, artifact []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s <%s>\r\n", m.cfg.FromName, m.cfg.SMTPUsername)
	fmt.Fprintf(&buf, "To: %s\r\n", order.Contact.Email)
	fmt.Fprintf(&buf, "Subject: Your tickets for %s\r\n", order.Title)
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", writer.Boundary())

	body, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/html; charset=utf-8"},
	})
	if err != nil {
		return nil, err
	}

	symbol := models.CurrencySymbol(order.Currency)
	fmt.Fprintf(body, "<p>Hi %s,</p>", order.Contact.Name)
	fmt.Fprintf(body, "<p>Your order <strong>%s</strong> for <strong>%s</strong> is confirmed.</p>", order.Reference, order.Title)
	fmt.Fprintf(body, "<p>Total paid: %s%.2f</p>", symbol, order.Price)
	fmt.Fprintf(body, "<ul>")
	for _, line := range order.Tickets {
		fmt.Fprintf(body, "<li>%d x %s</li>", line.Quantity, line.Name)
	}
	fmt.Fprintf(body, "</ul>")
	fmt.Fprintf(body, "<p>Your ticket is attached. Present it at the entrance.</p>")

	if len(artifact) > 0 {
		attachment, err := writer.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {"application/pdf"},
			"Content-Transfer-Encoding": {"base64"},
			"Content-Disposition":       {fmt.Sprintf(`attachment; filename="ticket-%s.pdf"`, order.Reference)},
		})
		if err != nil {
			return nil, err
		}
		encoded := base64.StdEncoding.EncodeToString(artifact)
		// 76-char lines per RFC 2045
		for len(encoded) > 76 {
			fmt.Fprintf(attachment, "%s\r\n", encoded[:76])
			encoded = encoded[76:]
		}
		fmt.Fprintf(attachment, "%s\r\n", encoded)
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
