package ws

import (
	stderrors "errors"

	"golang.org/x/text/message"

	apperrors "github.com/louisbranch/charsheet/internal/platform/errors"
	errori18n "github.com/louisbranch/charsheet/internal/platform/errors/i18n"
	"github.com/louisbranch/charsheet/internal/platform/i18n/catalog"
	"github.com/louisbranch/charsheet/internal/services/sheet/domain/advancement"
	"github.com/louisbranch/charsheet/internal/services/sheet/domain/preview"
)

// renderer localizes messages for one connection.
type renderer struct {
	locale   string
	printer  *message.Printer
	messages *errori18n.Catalog
}

func newRenderer(locale string) renderer {
	bundle := catalog.Default()
	if !bundle.HasLocale(locale) {
		locale = catalog.BaseLocale
	}
	return renderer{
		locale:   locale,
		printer:  bundle.Printer(locale),
		messages: errori18n.GetCatalog(locale),
	}
}

func (r renderer) error(err error) *ErrorMsg {
	if err == nil {
		return nil
	}
	code := apperrors.GetCode(err)
	msg := &ErrorMsg{
		Code:        string(code),
		Message:     r.messages.Format(string(code), apperrors.GetMetadata(err)),
		Recoverable: code.Recoverable(),
	}
	if code == apperrors.CodeUnknown {
		msg.Message = err.Error()
	}
	var domainErr *apperrors.Error
	if stderrors.As(err, &domainErr) && domainErr.Cause != nil {
		msg.Reason = r.error(domainErr.Cause)
	}
	return msg
}

func (r renderer) label(p preview.Projection) string {
	switch p.Direction {
	case advancement.DirectionAdvance:
		return r.printer.Sprintf("sheet.preview.cost", p.Cost)
	case advancement.DirectionRefund:
		return r.printer.Sprintf("sheet.preview.refund", p.Refund)
	default:
		return r.printer.Sprintf("sheet.preview.unchanged")
	}
}

func (r renderer) preview(p *preview.Projection) *PreviewMsg {
	if p == nil {
		return nil
	}
	msg := &PreviewMsg{
		FieldID:     p.FieldID,
		Direction:   p.Direction.String(),
		Cost:        p.Cost,
		Refund:      p.Refund,
		NewSteps:    p.NewSteps,
		CurrentXP:   p.CurrentXP,
		SpentXP:     p.SpentXP,
		TotalXP:     p.TotalXP,
		Final:       p.Final,
		Confirmable: p.Confirmable,
		Error:       r.error(p.Err),
	}
	if msg.Error != nil {
		msg.Label = msg.Error.Message
	} else {
		msg.Label = r.label(*p)
	}
	return msg
}

func (r renderer) update(result preview.Result) UpdateMsg {
	msg := UpdateMsg{
		Type:    TypeUpdate,
		Event:   result.Event.Kind.String(),
		FieldID: result.Event.FieldID,
		State:   result.Update.State.String(),
		Preview: r.preview(result.Projection),
		Hidden:  result.Update.Hidden,
		Sheet:   result.Snapshot,
		Error:   r.error(result.Err),
	}
	if restored := result.Update.Restored; restored != nil {
		msg.Restored = &RestoredMsg{FieldID: restored.FieldID, RawText: restored.RawText, Steps: restored.Steps}
	}
	if committed := result.Update.Committed; committed != nil {
		msg.Committed = committed.ID
	}
	return msg
}
