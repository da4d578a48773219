package google

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"strings"

	"github.com/motorworks/invoicegen/internal/apperr"
	"github.com/motorworks/invoicegen/internal/models"
	"go.uber.org/zap"
	"google.golang.org/api/gmail/v1"
)

// Attachment is a file sent along with a Mail.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Mail is a plain text message with one optional attachment.
type Mail struct {
	From       string
	To         string
	Subject    string
	Body       string
	Attachment *Attachment
}

// BuildMIME encodes m as an RFC 2822 message.
func BuildMIME(m Mail) ([]byte, error) {
	if strings.TrimSpace(m.To) == "" {
		return nil, fmt.Errorf("mail: missing recipient")
	}
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	from := m.From
	if from == "" {
		from = "me"
	}
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", m.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", m.Subject))
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", w.Boundary())

	text, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/plain; charset=utf-8"},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return nil, err
	}
	if err := writeQuotedPrintable(text, m.Body); err != nil {
		return nil, err
	}

	if a := m.Attachment; a != nil {
		ct := a.ContentType
		if ct == "" {
			ct = pdfMime
		}
		part, err := w.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {mime.FormatMediaType(ct, map[string]string{"name": a.Filename})},
			"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": a.Filename})},
			"Content-Transfer-Encoding": {"base64"},
		})
		if err != nil {
			return nil, err
		}
		if err := writeBase64Lines(part, a.Content); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SendMail delivers m from the linked account and returns the Gmail message id.
func (c *Client) SendMail(ctx context.Context, acct *models.GoogleAccount, m Mail) (string, error) {
	const op = "google.SendMail"
	s, err := c.session(ctx, op, acct)
	if err != nil {
		return "", err
	}
	defer s.writeBack()

	if m.From == "" {
		m.From = acct.Email
	}
	raw, err := BuildMIME(m)
	if err != nil {
		return "", apperr.Invalid(op, "Client does not have an email address on file.", map[string]string{"email": "required"})
	}
	svc, err := gmail.NewService(ctx, s.options()...)
	if err != nil {
		return "", apperr.TransportErr(op, err)
	}
	msg, err := svc.Users.Messages.Send("me", &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(raw),
	}).Context(ctx).Do()
	if err != nil {
		c.logger.Warn("gmail send failed", zap.String("to", m.To), zap.Error(err))
		return "", apperr.TransportErr(op, err)
	}
	c.logger.Info("gmail sent", zap.String("message_id", msg.Id), zap.String("to", m.To))
	return msg.Id, nil
}

func writeQuotedPrintable(w io.Writer, body string) error {
	qp := quotedprintable.NewWriter(w)
	if _, err := qp.Write([]byte(body)); err != nil {
		return err
	}
	return qp.Close()
}

// writeBase64Lines wraps the encoding at 76 columns.
func writeBase64Lines(w io.Writer, data []byte) error {
	enc := base64.StdEncoding.EncodeToString(data)
	for len(enc) > 76 {
		if _, err := io.WriteString(w, enc[:76]+"\r\n"); err != nil {
			return err
		}
		enc = enc[76:]
	}
	_, err := io.WriteString(w, enc+"\r\n")
	return err
}
