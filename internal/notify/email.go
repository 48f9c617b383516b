package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Email — одно исходящее письмо.
type Email struct {
	To      []string
	Subject string
	HTML    string
}

// EmailSender — канал доставки писем.
type EmailSender interface {
	Send(ctx context.Context, msg Email) error
}

// SMTPChannel шлет HTML-письма через корпоративный релей. Один повтор
// только на ошибке соединения: ретраями выше транспорта диспетчер
// не занимается.
type SMTPChannel struct {
	addr     string // host:port
	host     string
	username string
	password string
	from     string
	timeout  time.Duration
	logger   *zap.Logger
}

func NewSMTPChannel(addr, username, password, from string, timeout time.Duration, logger *zap.Logger) *SMTPChannel {
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SMTPChannel{
		addr:     addr,
		host:     host,
		username: username,
		password: password,
		from:     from,
		timeout:  timeout,
		logger:   logger.Named("smtp"),
	}
}

func (c *SMTPChannel) Send(ctx context.Context, msg Email) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("smtp: empty recipient list")
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := c.send(msg)
		if err == nil {
			return nil
		}
		lastErr = err

		// Повторяем один раз и только сбой соединения
		if attempt == 0 && errors.Is(err, errDial) {
			c.logger.Warn("smtp dial failed, retrying once", zap.Error(err))
			continue
		}
		break
	}
	return lastErr
}

var errDial = errors.New("smtp dial failed")

// send выполняет полный SMTP-диалог с таймаутом на соединение.
// net/smtp не умеет контексты, поэтому предел задается на дайле.
func (c *SMTPChannel) send(msg Email) error {
	conn, err := net.DialTimeout("tcp", c.addr, c.timeout)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", errDial, c.addr, err)
	}

	client, err := smtp.NewClient(conn, c.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if c.username != "" {
		auth := smtp.PlainAuth("", c.username, c.password, c.host)
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(auth); err != nil {
				return fmt.Errorf("smtp auth: %w", err)
			}
		}
	}

	if err := client.Mail(c.from); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	for _, rcpt := range msg.To {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(c.mime(msg)); err != nil {
		return fmt.Errorf("smtp write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close body: %w", err)
	}
	return client.Quit()
}

func (c *SMTPChannel) mime(msg Email) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", c.from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)
	return []byte(b.String())
}
