package smtpclient

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"time"

	"github.com/postlane/mailengine/internal/models"
)

// BuildRawMessage renders a Message into an RFC 5322 byte stream addressed
// to its single recipient, using smtpMessageID as the Message-ID header
// value (spec.md §4.3: "synthetic message-id <{message_id}@{system_domain}>").
// The header set matches the minimal canonical set DKIM signs over: From,
// To, Subject, Date, Message-ID, and the MIME headers.
func BuildRawMessage(msg *models.Message, smtpMessageID string) ([]byte, error) {
	headers := map[string]string{
		"From":         msg.FromAddress,
		"To":           msg.ToAddress,
		"Subject":      msg.Subject,
		"Date":         time.Now().UTC().Format(time.RFC1123Z),
		"Message-ID":   fmt.Sprintf("<%s>", smtpMessageID),
		"MIME-Version": "1.0",
	}

	buffer := bytes.NewBuffer(nil)

	hasText := msg.BodyText != ""
	hasHTML := msg.BodyHTML != ""

	switch {
	case hasText && hasHTML:
		if err := writeMultipart(headers, msg, buffer); err != nil {
			return nil, err
		}
	case hasHTML:
		headers["Content-Type"] = "text/html; charset=UTF-8"
		writeHeaders(headers, buffer)
		buffer.WriteString(msg.BodyHTML)
	default:
		headers["Content-Type"] = "text/plain; charset=UTF-8"
		writeHeaders(headers, buffer)
		buffer.WriteString(msg.BodyText)
	}

	return buffer.Bytes(), nil
}

func writeMultipart(headers map[string]string, msg *models.Message, buffer *bytes.Buffer) error {
	writer := multipart.NewWriter(buffer)
	headers["Content-Type"] = "multipart/alternative; boundary=" + writer.Boundary()
	writeHeaders(headers, buffer)

	textPart, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/plain; charset=UTF-8"},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return fmt.Errorf("failed to create text part: %w", err)
	}
	if _, err := textPart.Write([]byte(msg.BodyText)); err != nil {
		return fmt.Errorf("failed to write text part: %w", err)
	}

	htmlPart, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/html; charset=UTF-8"},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return fmt.Errorf("failed to create html part: %w", err)
	}
	if _, err := htmlPart.Write([]byte(msg.BodyHTML)); err != nil {
		return fmt.Errorf("failed to write html part: %w", err)
	}

	return writer.Close()
}

func writeHeaders(headers map[string]string, buffer *bytes.Buffer) {
	for k, v := range headers {
		if v == "" {
			continue
		}
		buffer.WriteString(fmt.Sprintf("%s: %s\r\n", k, v))
	}
	buffer.WriteString("\r\n")
}
