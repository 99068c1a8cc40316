package imap

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

var (
	// ErrAuth marks a rejected login. Retrying with the same credentials
	// is pointless, so the run aborts.
	ErrAuth = errors.New("imap authentication failed")
	// ErrSearch marks a server-side search failure.
	ErrSearch = errors.New("imap search failed")
)

type Options struct {
	Host               string
	Port               int
	Username           string
	Password           string
	InsecureSkipVerify bool
	// Folder overrides mailbox selection. Empty means the server's
	// all-mail folder, falling back to INBOX.
	Folder string
}

// Session wraps one authenticated IMAP connection with a selected mailbox.
// Sequence numbers and UIDVALIDITY are only meaningful within the session
// that produced them, so each pipeline stage dials its own.
type Session struct {
	client      *imapclient.Client
	logger      *slog.Logger
	mailbox     string
	uidValidity uint32
}

// Dial connects, authenticates and selects the mailbox read-only.
func Dial(opts Options, logger *slog.Logger) (*Session, error) {
	address := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))

	client, err := imapclient.DialTLS(address, &imapclient.Options{
		TLSConfig: &tls.Config{
			ServerName:         opts.Host,
			InsecureSkipVerify: opts.InsecureSkipVerify,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("dial imap %s: %w", address, err)
	}

	if err := client.Login(opts.Username, opts.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrAuth, opts.Username, err)
	}

	session := &Session{client: client, logger: logger}
	if err := session.selectMailbox(opts.Folder); err != nil {
		_ = client.Close()
		return nil, err
	}

	if logger != nil {
		logger.Debug("imap session established",
			"address", address,
			"user", opts.Username,
			"mailbox", session.mailbox,
			"uidValidity", session.uidValidity)
	}

	return session, nil
}

// Mailbox returns the name of the selected mailbox.
func (s *Session) Mailbox() string {
	return s.mailbox
}

// Search runs the given criteria against the selected mailbox and returns
// the matching sequence numbers.
func (s *Session) Search(criteria *imapv2.SearchCriteria) ([]uint32, error) {
	data, err := s.client.Search(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("%w: mailbox %s: %v", ErrSearch, s.mailbox, err)
	}
	return data.AllSeqNums(), nil
}

// MessageID resolves a sequence number to its UID and the durable message
// identifier <uidvalidity>:<uid>, which stays stable across sessions for as
// long as the mailbox keeps its UIDVALIDITY.
func (s *Session) MessageID(seqNum uint32) (uint32, string, error) {
	msgs, err := s.client.Fetch(imapv2.SeqSetNum(seqNum), &imapv2.FetchOptions{UID: true}).Collect()
	if err != nil {
		return 0, "", fmt.Errorf("fetch uid for message %d: %w", seqNum, err)
	}
	if len(msgs) == 0 {
		return 0, "", fmt.Errorf("fetch uid for message %d: no data returned", seqNum)
	}
	uid := uint32(msgs[0].UID)
	return uid, FormatMessageID(s.uidValidity, uid), nil
}

// FetchFull retrieves the complete raw RFC 822 message for a UID without
// setting the \Seen flag.
func (s *Session) FetchFull(uid uint32) ([]byte, error) {
	section := &imapv2.FetchItemBodySection{Peek: true}
	msgs, err := s.client.Fetch(imapv2.UIDSetNum(imapv2.UID(uid)), &imapv2.FetchOptions{
		BodySection: []*imapv2.FetchItemBodySection{section},
	}).Collect()
	if err != nil {
		return nil, fmt.Errorf("fetch body for uid %d: %w", uid, err)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("fetch body for uid %d: no data returned", uid)
	}
	body := msgs[0].FindBodySection(section)
	if body == nil {
		return nil, fmt.Errorf("fetch body for uid %d: missing body section", uid)
	}
	return body, nil
}

// Close logs out and closes the connection. Safe to call after errors.
func (s *Session) Close() {
	if err := s.client.Logout().Wait(); err != nil {
		if s.logger != nil {
			s.logger.Warn("imap logout failed", "err", err)
		}
	}
	_ = s.client.Close()
}

// FormatMessageID builds the durable message identifier.
func FormatMessageID(uidValidity, uid uint32) string {
	return fmt.Sprintf("%d:%d", uidValidity, uid)
}

func (s *Session) selectMailbox(folder string) error {
	name := folder
	if name == "" {
		var err error
		name, err = s.findAllMail()
		if err != nil {
			return err
		}
	}

	data, err := s.client.Select(name, &imapv2.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		return fmt.Errorf("select mailbox %s: %w", name, err)
	}

	s.mailbox = name
	s.uidValidity = data.UIDValidity
	return nil
}

// findAllMail looks for the mailbox advertising the \All special-use
// attribute (Gmail's "All Mail"), falling back to INBOX on servers that
// expose none.
func (s *Session) findAllMail() (string, error) {
	mailboxes, err := s.client.List("", "*", nil).Collect()
	if err != nil {
		return "", fmt.Errorf("list mailboxes: %w", err)
	}

	for _, mbox := range mailboxes {
		for _, attr := range mbox.Attrs {
			if attr == imapv2.MailboxAttrAll {
				return mbox.Mailbox, nil
			}
		}
	}

	if s.logger != nil {
		s.logger.Debug("no all-mail mailbox advertised, using INBOX")
	}
	return "INBOX", nil
}
