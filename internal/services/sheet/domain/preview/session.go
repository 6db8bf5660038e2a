package preview

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	apperrors "github.com/louisbranch/charsheet/internal/platform/errors"
	"github.com/louisbranch/charsheet/internal/services/sheet/domain/advancement"
	"github.com/louisbranch/charsheet/internal/services/sheet/domain/sheet"
)

// Storage persists committed field values.
type Storage interface {
	Save(ctx context.Context, key, value string) error
}

// Recorder journals committed changes.
type Recorder interface {
	Record(ctx context.Context, commit Commit) error
}

// Commit describes one committed change.
type Commit struct {
	SheetID string
	// FieldID is the advancement field or ledger field that changed.
	FieldID string
	Kind    advancement.Kind
	From    int
	To      int
	XPDelta int
	Before  advancement.Ledger
	After   advancement.Ledger
}

// State is the edit state of a session.
type State int

const (
	StateIdle State = iota
	StatePreviewing
)

// String returns the state label.
func (s State) String() string {
	if s == StatePreviewing {
		return "previewing"
	}
	return "idle"
}

// Keys understood by Key.
const (
	KeyEnter  = "Enter"
	KeyEscape = "Escape"
)

// PendingEdit is the provisional edit of one field.
type PendingEdit struct {
	FieldID         string
	OriginalSteps   int
	OriginalRawText string
	CandidateText   string
	Transaction     advancement.Transaction
	// Err is the reason the edit cannot be confirmed, nil when it can.
	Err error
}

// Confirmable reports whether Confirm would accept the edit.
func (p PendingEdit) Confirmable() bool {
	return p.Err == nil
}

// Restored is the committed text and steps a cancelled field returns to.
type Restored struct {
	FieldID string
	RawText string
	Steps   int
}

// Update is the outcome of a session operation.
type Update struct {
	State State
	// Pending is set while previewing.
	Pending *PendingEdit
	// Hidden is set when an open preview was discarded without restoring.
	Hidden bool
	// Restored is set when a preview was cancelled.
	Restored *Restored
	// Committed is set when a field edit was confirmed.
	Committed *sheet.Field
	// Ledger is set whenever the ledger changed.
	Ledger *advancement.Ledger
}

type focus struct {
	fieldID string
	rawText string
	steps   int
}

// Session is the edit controller of one sheet. It is not safe for concurrent
// use; Loop provides the single event queue.
type Session struct {
	sheet    *sheet.Sheet
	table    *advancement.CostTable
	storage  Storage
	recorder Recorder

	focus   *focus
	pending *PendingEdit
}

// Option configures a Session.
type Option func(*Session)

// WithStorage sets the persistence collaborator.
func WithStorage(storage Storage) Option {
	return func(s *Session) {
		s.storage = storage
	}
}

// WithRecorder sets the journal collaborator.
func WithRecorder(recorder Recorder) Option {
	return func(s *Session) {
		s.recorder = recorder
	}
}

// NewSession creates a session over sheet priced with table.
func NewSession(sh *sheet.Sheet, table *advancement.CostTable, opts ...Option) *Session {
	s := &Session{sheet: sh, table: table}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sheet returns the committed sheet.
func (s *Session) Sheet() *sheet.Sheet {
	return s.sheet
}

// State returns the current edit state.
func (s *Session) State() State {
	if s.pending != nil {
		return StatePreviewing
	}
	return StateIdle
}

// Pending returns a copy of the open edit, if any.
func (s *Session) Pending() (PendingEdit, bool) {
	if s.pending == nil {
		return PendingEdit{}, false
	}
	return *s.pending, true
}

// Focused returns the id of the focused field, if any.
func (s *Session) Focused() (string, bool) {
	if s.focus == nil {
		return "", false
	}
	return s.focus.fieldID, true
}

// BeginEdit focuses a field and snapshots its committed value. A preview open
// on another field is cancelled first.
func (s *Session) BeginEdit(fieldID string) (Update, error) {
	field, ok := s.sheet.Field(fieldID)
	if !ok {
		return s.idle(), fieldNotFound(fieldID)
	}
	var update Update
	if s.pending != nil && s.pending.FieldID != fieldID {
		update.Restored = s.discard()
	}
	if s.focus == nil || s.focus.fieldID != fieldID {
		s.focus = &focus{fieldID: fieldID, rawText: field.RawText, steps: field.Steps}
	}
	return s.withState(update), nil
}

// Edit prices text typed into the focused field. Empty text, or text equal to
// the committed value, hides the preview.
func (s *Session) Edit(fieldID, text string) (Update, error) {
	update, err := s.BeginEdit(fieldID)
	if err != nil {
		return update, err
	}
	if strings.TrimSpace(text) == "" || strings.TrimSpace(text) == strings.TrimSpace(s.focus.rawText) {
		if s.pending != nil {
			s.pending = nil
			update.Hidden = true
		}
		return s.withState(update), nil
	}
	pending := s.price(*s.focus, text)
	s.pending = &pending
	return s.withState(update), nil
}

// Confirm commits the open edit. The transaction is priced again against the
// live ledger; a non-confirmable edit stays open.
func (s *Session) Confirm(ctx context.Context) (Update, error) {
	if s.pending == nil {
		return s.idle(), apperrors.New(apperrors.CodeNoPendingEdit, "no pending edit")
	}
	snapshot := focus{fieldID: s.pending.FieldID, rawText: s.pending.OriginalRawText, steps: s.pending.OriginalSteps}
	pending := s.price(snapshot, s.pending.CandidateText)
	s.pending = &pending
	if pending.Err != nil {
		return s.withState(Update{}), apperrors.Wrap(apperrors.CodeEditNotConfirmable, "edit is not confirmable", pending.Err)
	}

	tx := pending.Transaction
	field, err := s.sheet.Apply(tx)
	if err != nil {
		return s.withState(Update{}), apperrors.Wrap(apperrors.CodeEditNotConfirmable, "apply edit", err)
	}
	s.pending = nil
	if s.focus != nil && s.focus.fieldID == field.ID {
		s.focus.rawText = field.RawText
		s.focus.steps = field.Steps
	}

	s.persistField(ctx, field)
	s.persistLedger(ctx, tx.After)
	s.record(ctx, Commit{
		SheetID: s.sheet.ID(),
		FieldID: field.ID,
		Kind:    field.Kind,
		From:    tx.OriginalSteps,
		To:      tx.NewSteps,
		XPDelta: tx.XPDelta,
		Before:  tx.Before,
		After:   tx.After,
	})

	ledger := tx.After
	return Update{State: StateIdle, Committed: &field, Ledger: &ledger}, nil
}

// Cancel discards the open edit on fieldID, restoring its committed text and
// steps. An empty fieldID cancels whatever edit is open.
func (s *Session) Cancel(fieldID string) (Update, error) {
	if s.pending == nil || (fieldID != "" && s.pending.FieldID != fieldID) {
		return s.idle(), nil
	}
	return Update{State: StateIdle, Restored: s.discard()}, nil
}

// Blur cancels the open edit on fieldID and drops focus.
func (s *Session) Blur(fieldID string) (Update, error) {
	update, err := s.Cancel(fieldID)
	if s.focus != nil && s.focus.fieldID == fieldID {
		s.focus = nil
	}
	return update, err
}

// OutsideInteraction cancels any open edit.
func (s *Session) OutsideInteraction() (Update, error) {
	return s.Cancel("")
}

// Key handles a keystroke in fieldID: Enter confirms a confirmable edit and
// Escape cancels. Other keys are ignored.
func (s *Session) Key(ctx context.Context, fieldID, key string) (Update, error) {
	switch key {
	case KeyEnter:
		if s.pending == nil || s.pending.FieldID != fieldID || !s.pending.Confirmable() {
			return s.withState(Update{}), nil
		}
		return s.Confirm(ctx)
	case KeyEscape:
		return s.Cancel(fieldID)
	default:
		return s.withState(Update{}), nil
	}
}

// EditLedger applies text typed into a ledger field immediately. Current XP
// takes the value as typed; a spent XP change moves the difference out of or
// back into current XP. Any open preview is cancelled first.
func (s *Session) EditLedger(ctx context.Context, fieldID, text string) (Update, error) {
	update, _ := s.Cancel("")
	if strings.TrimSpace(text) == "" {
		return update, nil
	}

	before := s.sheet.LiveLedger()
	var (
		after advancement.Ledger
		err   error
	)
	switch fieldID {
	case advancement.FieldCurrentXP:
		after, err = advancement.EditCurrentXP(before, text)
	case advancement.FieldSpentXP:
		after, err = advancement.EditSpentXP(before, text)
	default:
		return update, fieldNotFound(fieldID)
	}
	if err != nil {
		return update, err
	}
	if after == *before {
		return update, nil
	}
	if err := s.sheet.ApplyLedger(after); err != nil {
		return update, err
	}

	s.persistLedger(ctx, after)
	from, to := before.CurrentXP, after.CurrentXP
	if fieldID == advancement.FieldSpentXP {
		from, to = before.SpentXP, after.SpentXP
	}
	s.record(ctx, Commit{
		SheetID: s.sheet.ID(),
		FieldID: fieldID,
		From:    from,
		To:      to,
		XPDelta: before.CurrentXP - after.CurrentXP,
		Before:  *before,
		After:   after,
	})
	update.Ledger = &after
	return update, nil
}

// Projection returns the preview values of the open edit.
func (s *Session) Projection() (Projection, bool) {
	if s.pending == nil {
		return Projection{}, false
	}
	field, ok := s.sheet.Field(s.pending.FieldID)
	if !ok {
		return Projection{}, false
	}
	return Project(field, *s.pending), true
}

// price parses and prices text against a focus snapshot and the live ledger.
func (s *Session) price(snapshot focus, text string) PendingEdit {
	pending := PendingEdit{
		FieldID:         snapshot.fieldID,
		OriginalSteps:   snapshot.steps,
		OriginalRawText: snapshot.rawText,
		CandidateText:   text,
	}
	field, _ := s.sheet.Field(snapshot.fieldID)
	calc := field.Advancement()
	calc.Steps = snapshot.steps
	ledger := s.sheet.LiveLedger()

	expr, ok := advancement.ParseExpression(text, strconv.Itoa(snapshot.steps))
	if !ok {
		pending.Err = advancement.ErrInvalidExpression
		pending.Transaction = advancement.Transaction{
			FieldID:       calc.ID,
			Kind:          calc.Kind,
			OriginalSteps: calc.Steps,
			NewSteps:      calc.Steps,
		}
		if ledger != nil {
			pending.Transaction.Before = *ledger
			pending.Transaction.After = *ledger
		}
		return pending
	}
	pending.Transaction, pending.Err = advancement.ComputeTransaction(s.table, calc, expr.Value, ledger)
	return pending
}

func (s *Session) discard() *Restored {
	restored := &Restored{
		FieldID: s.pending.FieldID,
		RawText: s.pending.OriginalRawText,
		Steps:   s.pending.OriginalSteps,
	}
	s.pending = nil
	return restored
}

func (s *Session) idle() Update {
	return s.withState(Update{})
}

func (s *Session) withState(update Update) Update {
	update.State = s.State()
	if s.pending != nil {
		pending := *s.pending
		update.Pending = &pending
	}
	return update
}

func (s *Session) persistField(ctx context.Context, field sheet.Field) {
	s.save(ctx, field.ID, field.RawText)
	if field.Kind == advancement.KindSkill && field.AuxID != "" {
		s.save(ctx, field.AuxID, strconv.Itoa(field.Aux))
	}
	if field.DisplayID != "" {
		s.save(ctx, field.DisplayID, strconv.Itoa(field.Final()))
	}
}

func (s *Session) persistLedger(ctx context.Context, ledger advancement.Ledger) {
	s.save(ctx, advancement.FieldCurrentXP, strconv.Itoa(ledger.CurrentXP))
	s.save(ctx, advancement.FieldSpentXP, strconv.Itoa(ledger.SpentXP))
	s.save(ctx, advancement.FieldTotalXP, strconv.Itoa(ledger.Total()))
}

func (s *Session) save(ctx context.Context, key, value string) {
	if s.storage == nil {
		return
	}
	if err := s.storage.Save(ctx, key, value); err != nil {
		log.Printf("save %s: %v", key, err)
	}
}

func (s *Session) record(ctx context.Context, commit Commit) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(ctx, commit); err != nil {
		log.Printf("journal %s: %v", commit.FieldID, err)
	}
}

func fieldNotFound(fieldID string) error {
	return apperrors.WithMetadata(
		apperrors.CodeFieldNotFound,
		fmt.Sprintf("field %s not found", fieldID),
		map[string]string{"FieldID": fieldID},
	)
}
