package email

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
)

type Mailer struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

func (m *Mailer) Enabled() bool {
	return m.Host != ""
}

// SendPurchaseReceipt mails the buyer their gallery access link after a
// purchase reconciles to paid. Best-effort: delivery is never load-bearing.
func (m *Mailer) SendPurchaseReceipt(to, eventName, galleryURL string, totalCents int64, currency string) error {
	subject := fmt.Sprintf("Your photos from %s", eventName)
	amount := fmt.Sprintf("%.2f %s", float64(totalCents)/100, strings.ToUpper(currency))

	textBody := fmt.Sprintf(`Thank you for your purchase!

Event: %s
Amount: %s

Your full-resolution downloads are ready:

%s

Download links expire periodically; revisit the page above to get fresh ones.
`, eventName, amount, galleryURL)

	htmlBody := fmt.Sprintf(`<html><body>
<p>Thank you for your purchase!</p>
<p>Event: <strong>%s</strong><br>Amount: <strong>%s</strong></p>
<p><a href="%s" style="display:inline-block;padding:10px 24px;background:#4361ee;color:#fff;text-decoration:none;border-radius:4px;">Get Your Photos</a></p>
<p style="color:#666;font-size:12px;">Download links expire periodically; revisit the page above to get fresh ones.</p>
</body></html>`, eventName, amount, galleryURL)

	return m.sendMultipart(to, subject, textBody, htmlBody)
}

func (m *Mailer) sendMultipart(to, subject, textBody, htmlBody string) error {
	if !m.Enabled() {
		return nil
	}

	boundary := "----=_Part_fotomatch_boundary"

	headers := []string{
		fmt.Sprintf("From: %s", m.From),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		fmt.Sprintf(`Content-Type: multipart/alternative; boundary="%s"`, boundary),
	}

	body := strings.Join(headers, "\r\n") + "\r\n\r\n"
	body += "--" + boundary + "\r\n"
	body += "Content-Type: text/plain; charset=utf-8\r\n\r\n"
	body += textBody + "\r\n"
	body += "--" + boundary + "\r\n"
	body += "Content-Type: text/html; charset=utf-8\r\n\r\n"
	body += htmlBody + "\r\n"
	body += "--" + boundary + "--\r\n"

	addr := fmt.Sprintf("%s:%d", m.Host, m.Port)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}

	client, err := smtp.NewClient(conn, m.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp client: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		tlsConfig := &tls.Config{ServerName: m.Host}
		if err := client.StartTLS(tlsConfig); err != nil {
			slog.Warn("smtp starttls failed, continuing without", "error", err)
		}
	}

	if m.User != "" {
		auth := smtp.PlainAuth("", m.User, m.Pass, m.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(m.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write([]byte(body)); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close: %w", err)
	}

	return client.Quit()
}
