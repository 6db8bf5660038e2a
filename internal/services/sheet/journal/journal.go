// Package journal appends committed sheet changes to compressed JSONL files.
package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/louisbranch/charsheet/internal/services/sheet/domain/preview"
)

// LedgerValues is the ledger as recorded in an entry.
type LedgerValues struct {
	CurrentXP int `json:"current_xp"`
	SpentXP   int `json:"spent_xp"`
	TotalXP   int `json:"total_xp"`
}

// Entry is one journaled commit.
type Entry struct {
	ID      string       `json:"id"`
	Time    time.Time    `json:"time"`
	SheetID string       `json:"sheet_id"`
	FieldID string       `json:"field_id"`
	Kind    string       `json:"kind,omitempty"`
	From    int          `json:"from"`
	To      int          `json:"to"`
	XPDelta int          `json:"xp_delta"`
	Before  LedgerValues `json:"before"`
	After   LedgerValues `json:"after"`
}

// Writer appends entries to one file per UTC day.
type Writer struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu     sync.Mutex
	curDay string
	f      *os.File
	enc    *zstd.Encoder
	w      *bufio.Writer
}

// NewWriter creates a journal writing under baseDir.
func NewWriter(baseDir, prefix string) *Writer {
	return &Writer{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

// Record journals a commit.
func (w *Writer) Record(ctx context.Context, commit preview.Commit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entry := Entry{
		ID:      uuid.NewString(),
		Time:    w.now().UTC(),
		SheetID: commit.SheetID,
		FieldID: commit.FieldID,
		From:    commit.From,
		To:      commit.To,
		XPDelta: commit.XPDelta,
		Before: LedgerValues{
			CurrentXP: commit.Before.CurrentXP,
			SpentXP:   commit.Before.SpentXP,
			TotalXP:   commit.Before.Total(),
		},
		After: LedgerValues{
			CurrentXP: commit.After.CurrentXP,
			SpentXP:   commit.After.SpentXP,
			TotalXP:   commit.After.Total(),
		},
	}
	if commit.Kind != 0 {
		entry.Kind = commit.Kind.String()
	}
	return w.Write(entry)
}

// Write appends one entry and flushes it to the encoder.
func (w *Writer) Write(entry Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	day := entry.Time.UTC().Format("2006-01-02")
	if day != w.curDay {
		if err := w.rotateLocked(day); err != nil {
			return err
		}
	}

	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

// Close finishes the current file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

// PathForDay returns the file holding entries of day (YYYY-MM-DD).
func (w *Writer) PathForDay(day string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, day))
}

func (w *Writer) rotateLocked(day string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.PathForDay(day), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 32*1024)
	w.curDay = day
	return nil
}

func (w *Writer) closeLocked() error {
	var err error
	if w.w != nil {
		err = w.w.Flush()
	}
	if w.enc != nil {
		err = errors.Join(err, w.enc.Close())
		w.enc = nil
	}
	if w.f != nil {
		err = errors.Join(err, w.f.Close())
		w.f = nil
	}
	w.w = nil
	w.curDay = ""
	return err
}

// ReadFile decodes every entry of a closed journal file.
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Read decodes entries from a zstd JSONL stream.
func Read(r io.Reader) ([]Entry, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var entries []Entry
	scanner := bufio.NewScanner(dec)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return nil, fmt.Errorf("decode journal entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

var _ preview.Recorder = (*Writer)(nil)
