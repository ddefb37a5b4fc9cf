package worker

import (
	"bytes"
	"fmt"
	"html/template"

	"gopkg.in/gomail.v2"

	"github.com/jamm-events/backend/config"
	"github.com/jamm-events/backend/internal/models"
	"github.com/jamm-events/backend/pkg/queue"
)

var ticketTemplate = template.Must(template.New("ticket").Parse(`
<html>
<body style="font-family: Arial, sans-serif; color: #1a1a1a;">
  <h2>{{.Heading}}</h2>
  <p>Hola{{if .Name}} {{.Name}}{{end}},</p>
  <p>{{.Intro}} <strong>{{.EventName}}</strong>.</p>
  <p><strong>{{.EventDate}}</strong>{{if .Location}} &middot; {{.Location}}{{end}}</p>
  {{range .Tickets}}
  <div style="border: 1px solid #ddd; border-radius: 8px; padding: 16px; margin: 12px 0;">
    <p style="margin: 0 0 8px 0;"><strong>{{.Quantity}}x</strong> entrada{{if gt .Quantity 1}}s{{end}}</p>
    <img src="https://api.qrserver.com/v1/create-qr-code/?size=220x220&data={{.QRCode}}" alt="QR" width="220" height="220"/>
    <p style="font-size: 12px; color: #666; word-break: break-all;">{{.QRCode}}</p>
  </div>
  {{end}}
  <p>Presenta el código QR en la entrada. Cada código se valida una sola vez.</p>
</body>
</html>
`))

type ticketEmailData struct {
	Heading   string
	Intro     string
	Name      string
	EventName string
	EventDate string
	Location  string
	Tickets   []ticketEmailItem
}

type ticketEmailItem struct {
	Quantity int
	QRCode   string
}

// Mailer sends ticket emails over SMTP.
type Mailer struct {
	dialer *gomail.Dialer
	from   string
}

// NewMailer creates an SMTP mailer. Returns nil when SMTP is not
// configured; the worker then logs instead of sending.
func NewMailer(cfg config.EmailConfig) *Mailer {
	if cfg.SMTPHost == "" {
		return nil
	}
	return &Mailer{
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass),
		from:   fmt.Sprintf("%s <%s>", cfg.FromName, cfg.FromAddress),
	}
}

// Subject returns the mail subject for an email type.
func Subject(emailType, eventName string) string {
	switch emailType {
	case queue.EmailTypeCourtesyGrant:
		return fmt.Sprintf("Tu cortesía para %s", eventName)
	default:
		return fmt.Sprintf("Tus entradas para %s", eventName)
	}
}

// SendTickets renders and sends the ticket email for a set of confirmed
// purchases.
func (m *Mailer) SendTickets(recipient, emailType string, event *models.Event, purchases []*models.PurchasedTicket) error {
	data := ticketEmailData{
		Heading:   "¡Entradas confirmadas!",
		Intro:     "Tu compra fue confirmada para",
		EventName: event.Name,
		EventDate: event.StartsAt.Format("02/01/2006 15:04"),
		Location:  event.Location,
	}
	if emailType == queue.EmailTypeCourtesyGrant {
		data.Heading = "¡Tenés una cortesía!"
		data.Intro = "Recibiste entradas de cortesía para"
	}
	for _, p := range purchases {
		data.Tickets = append(data.Tickets, ticketEmailItem{Quantity: p.Quantity, QRCode: p.QRCode})
	}

	var body bytes.Buffer
	if err := ticketTemplate.Execute(&body, data); err != nil {
		return fmt.Errorf("render email: %w", err)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", recipient)
	msg.SetHeader("Subject", Subject(emailType, event.Name))
	msg.SetBody("text/html", body.String())

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}
