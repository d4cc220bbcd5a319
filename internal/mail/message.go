// Package mail assembles MIME messages and sends them through the
// Gmail API.
package mail

import (
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sendoff/sendoff/internal/template"
)

// BuildParams describes one outgoing message.
type BuildParams struct {
	From    string
	To      string
	Subject string
	Text    string
	HTML    string
	CC      string
	BCC     string
	ReplyTo string
	// Attachments are file paths; paths that no longer exist on disk
	// are omitted without error.
	Attachments []string
	// Date stamps the message; zero means now.
	Date time.Time
}

// Build produces the base64url transport envelope the Gmail API
// expects: a multipart/mixed message whose first part is a
// multipart/alternative holding the plain-text body and, when present,
// the HTML body (text first so clients prefer the richer part), with
// attachments as sibling parts.
func Build(p BuildParams) (string, error) {
	text := p.Text
	if text == "" && p.HTML != "" {
		text = template.StripHTML(p.HTML)
	}
	if text == "" && p.HTML == "" {
		text = "(no content)"
	}

	date := p.Date
	if date.IsZero() {
		date = time.Now()
	}

	var buf strings.Builder
	mixed := multipart.NewWriter(&buf)

	headers := []string{
		"From: " + p.From,
		"To: " + p.To,
		"Subject: " + p.Subject,
		"Date: " + date.Format(time.RFC1123Z),
		"Message-ID: " + messageID(p.From),
	}
	if p.CC != "" {
		headers = append(headers, "Cc: "+p.CC)
	}
	if p.BCC != "" {
		headers = append(headers, "Bcc: "+p.BCC)
	}
	if p.ReplyTo != "" {
		headers = append(headers, "Reply-To: "+p.ReplyTo)
	}
	headers = append(headers,
		"MIME-Version: 1.0",
		`Content-Type: multipart/mixed; boundary="`+mixed.Boundary()+`"`,
	)
	buf.WriteString(strings.Join(headers, "\r\n") + "\r\n\r\n")

	if err := writeAlternative(mixed, text, p.HTML); err != nil {
		return "", err
	}
	for _, path := range p.Attachments {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := writeAttachment(mixed, path); err != nil {
			return "", err
		}
	}
	if err := mixed.Close(); err != nil {
		return "", fmt.Errorf("mail: close message: %w", err)
	}

	return base64.URLEncoding.EncodeToString([]byte(buf.String())), nil
}

func writeAlternative(mixed *multipart.Writer, text, html string) error {
	var alt strings.Builder
	altWriter := multipart.NewWriter(&alt)

	textPart, err := altWriter.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/plain; charset=UTF-8"},
	})
	if err != nil {
		return fmt.Errorf("mail: text part: %w", err)
	}
	if _, err := textPart.Write([]byte(text)); err != nil {
		return err
	}

	if html != "" {
		htmlPart, err := altWriter.CreatePart(textproto.MIMEHeader{
			"Content-Type": {"text/html; charset=UTF-8"},
		})
		if err != nil {
			return fmt.Errorf("mail: html part: %w", err)
		}
		if _, err := htmlPart.Write([]byte(html)); err != nil {
			return err
		}
	}
	if err := altWriter.Close(); err != nil {
		return err
	}

	part, err := mixed.CreatePart(textproto.MIMEHeader{
		"Content-Type": {`multipart/alternative; boundary="` + altWriter.Boundary() + `"`},
	})
	if err != nil {
		return fmt.Errorf("mail: alternative part: %w", err)
	}
	_, err = part.Write([]byte(alt.String()))
	return err
}

func writeAttachment(mixed *multipart.Writer, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("mail: read attachment %s: %w", path, err)
	}
	name := filepath.Base(path)
	ctype := mime.TypeByExtension(filepath.Ext(path))
	if ctype == "" {
		ctype = "application/octet-stream"
	}

	part, err := mixed.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {fmt.Sprintf("%s; name=%q", ctype, name)},
		"Content-Transfer-Encoding": {"base64"},
		"Content-Disposition":       {fmt.Sprintf("attachment; filename=%q", name)},
	})
	if err != nil {
		return fmt.Errorf("mail: attachment part: %w", err)
	}

	enc := base64.StdEncoding.EncodeToString(data)
	// Fold the base64 payload at 76 characters per RFC 2045.
	for len(enc) > 0 {
		n := 76
		if n > len(enc) {
			n = len(enc)
		}
		if _, err := part.Write([]byte(enc[:n] + "\r\n")); err != nil {
			return err
		}
		enc = enc[n:]
	}
	return nil
}

// messageID generates a unique Message-ID, using the sender's domain
// when it can be extracted.
func messageID(from string) string {
	domain := "sendoff.local"
	if at := strings.LastIndex(from, "@"); at >= 0 {
		d := strings.Trim(from[at+1:], "> ")
		if d != "" {
			domain = d
		}
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}
