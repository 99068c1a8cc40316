package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jhillyerd/enmime"

	"github.com/lostphotosfound/cli/state"
)

// Result classifies the outcome of saving one eligible part.
type Result int

const (
	// ResultSaved means a new file was written and its hash recorded.
	ResultSaved Result = iota
	// ResultDuplicateContent means the payload hash was already in the
	// content hash store; nothing was written.
	ResultDuplicateContent
	// ResultAlreadyOnDisk means a file already exists at the destination
	// path; nothing was written.
	ResultAlreadyOnDisk
)

// DecodeError reports a part whose payload could not be decoded.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode attachment payload for %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// WriteError reports a failed attachment write. A half-written image is
// worse than an aborted run, so callers must treat this as fatal.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write attachment to %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Extractor writes eligible image parts to disk exactly once per distinct
// payload, consulting the content hash store to recognize duplicates across
// messages and runs. Dedup is global to the account, not per sender.
type Extractor struct {
	root     string
	username string
	bySender bool
	hashes   state.Store
	logger   *slog.Logger
	seq      int
}

// New returns an extractor saving under <root>/<username>[/<sender>].
func New(root, username string, bySender bool, hashes state.Store, logger *slog.Logger) *Extractor {
	return &Extractor{
		root:     root,
		username: username,
		bySender: bySender,
		hashes:   hashes,
		logger:   logger,
	}
}

// Save extracts one eligible part. It returns the outcome, the destination
// path, and a fatal error if decoding or writing failed.
func (e *Extractor) Save(part *enmime.Part, date time.Time, sender string) (Result, string, error) {
	name, source := ResolveName(part, e.nextSeq)
	filename := FileName(name, date)

	dir := filepath.Join(e.root, e.username)
	if e.bySender {
		dir = filepath.Join(dir, sender)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, "", fmt.Errorf("create save directory %s: %w", dir, err)
	}

	dest := filepath.Join(dir, filepath.Base(filename))

	if _, err := os.Stat(dest); err == nil {
		if e.logger != nil {
			e.logger.Debug("destination already exists, skipping write", "path", dest)
		}
		return ResultAlreadyOnDisk, dest, nil
	}

	payload, err := decodedPayload(part)
	if err != nil {
		return 0, dest, &DecodeError{Path: dest, Err: err}
	}

	sum := sha256.Sum256(payload)
	hash := hex.EncodeToString(sum[:])

	if e.hashes.Contains(hash) {
		if e.logger != nil {
			e.logger.Info("duplicate attachment", "path", dest, "hash", hash)
		}
		return ResultDuplicateContent, dest, nil
	}

	if err := os.WriteFile(dest, payload, 0o644); err != nil {
		return 0, dest, &WriteError{Path: dest, Err: err}
	}
	if err := e.hashes.Put(hash); err != nil {
		return 0, dest, fmt.Errorf("record content hash: %w", err)
	}

	if e.logger != nil {
		e.logger.Info("saved attachment", "path", dest, "nameSource", source.String())
	}
	return ResultSaved, dest, nil
}

// decodedPayload returns the part's transfer-decoded bytes. enmime decodes
// eagerly and records failures on the part, so severe part errors surface
// here.
func decodedPayload(part *enmime.Part) ([]byte, error) {
	for _, perr := range part.Errors {
		if perr.Severe {
			return nil, fmt.Errorf("%s: %s", perr.Name, perr.Detail)
		}
	}
	if part.Content == nil {
		return nil, errors.New("part has no decodable payload")
	}
	return part.Content, nil
}

func (e *Extractor) nextSeq() int {
	n := e.seq
	e.seq++
	return n
}
