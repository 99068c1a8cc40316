package model

// Candidate is one search match that still needs processing. UID is the
// session-independent IMAP UID used to fetch the message body; MessageID is
// the durable identifier recorded in the processed-message index.
type Candidate struct {
	UID       uint32
	MessageID string
}
