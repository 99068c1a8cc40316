package message

import (
	"bytes"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"
)

const (
	// UnknownSender groups messages whose From header is missing or
	// unparseable when saving by sender.
	UnknownSender = "unknown_sender"
	// NoSubject stands in for an absent Subject header in progress output.
	NoSubject = "no_subject"
)

// Parsed is one fetched message after MIME parsing.
type Parsed struct {
	env *enmime.Envelope
}

// Parse reads a raw RFC 822 message. Header decoding and transfer decoding
// happen eagerly; per-part problems are recorded on the parts rather than
// failing the whole message.
func Parse(raw []byte) (*Parsed, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	return &Parsed{env: env}, nil
}

// Multipart reports whether the message has a multipart structure. Only
// multipart messages can carry image attachments worth extracting.
func (p *Parsed) Multipart() bool {
	if p.env.Root == nil {
		return false
	}
	return strings.HasPrefix(strings.ToLower(p.env.Root.ContentType), "multipart/")
}

// Parts returns every leaf part in depth-first order, the same order the
// parts appear in the raw message. Container parts are excluded.
func (p *Parsed) Parts() []*enmime.Part {
	if p.env.Root == nil {
		return nil
	}
	return p.env.Root.DepthMatchAll(func(part *enmime.Part) bool {
		return !strings.HasPrefix(strings.ToLower(part.ContentType), "multipart/")
	})
}

// From returns the decoded From header, or the empty string.
func (p *Parsed) From() string {
	return p.env.GetHeader("From")
}

// Sender returns the bare address from the From header, falling back to
// UnknownSender when the header is absent or malformed.
func (p *Parsed) Sender() string {
	from := p.From()
	if from == "" {
		return UnknownSender
	}
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return UnknownSender
	}
	return addr.Address
}

// Subject returns the decoded Subject header, or NoSubject.
func (p *Parsed) Subject() string {
	subject := p.env.GetHeader("Subject")
	if subject == "" {
		return NoSubject
	}
	return subject
}

// Date returns the parsed Date header. The zero time signals an absent or
// unparseable header; callers substitute their own fallback.
func (p *Parsed) Date() time.Time {
	raw := p.env.GetHeader("Date")
	if raw == "" {
		return time.Time{}
	}
	date, err := mail.ParseDate(raw)
	if err != nil {
		return time.Time{}
	}
	return date
}
