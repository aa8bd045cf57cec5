package outcome

import (
	"errors"
	"fmt"
	"strings"

	"outcomes/jsondoc"
)

var (
	// ErrNothingToPatch means there was no stored document, or the patch is
	// nil or supplies no member.
	ErrNothingToPatch = errors.New("outcome: nothing to patch")
	// ErrMalformedDocument means the stored document could not be parsed.
	ErrMalformedDocument = errors.New("outcome: malformed stored document")
)

// MergePatch writes every supplied field of patch onto the stored document
// and returns the merged document. Members the patch does not mention are
// left exactly as they were, and member order is kept.
func MergePatch(current string, patch *OutcomePatch) (string, error) {
	if strings.TrimSpace(current) == "" || patch == nil || patch.Empty() {
		return "", ErrNothingToPatch
	}

	doc, err := jsondoc.ParseString(current)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedDocument, err)
	}

	if err := applyPatch(doc, patch); err != nil {
		return "", err
	}
	clearDates(doc, patch.ClearsClaimedDate(), patch.ClearsEffectiveDate())

	out, err := doc.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("outcome: encode merged document: %w", err)
	}
	return string(out), nil
}

// ClearDates writes an explicit null to OutcomeClaimedDate and/or
// OutcomeEffectiveDate, which retracts a previously claimed outcome.
func ClearDates(current string, claimed, effective bool) (string, error) {
	if strings.TrimSpace(current) == "" {
		return "", ErrNothingToPatch
	}
	doc, err := jsondoc.ParseString(current)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedDocument, err)
	}
	clearDates(doc, claimed, effective)
	return doc.String(), nil
}

func applyPatch(doc *jsondoc.Document, p *OutcomePatch) error {
	var err error
	set := func(key string, value any) {
		if err == nil {
			err = doc.Set(key, value)
		}
	}

	if p.SessionID != "" {
		set("SessionId", p.SessionID)
	}
	if p.SubcontractorID != "" {
		set("SubcontractorId", p.SubcontractorID)
	}
	if p.OutcomeType != nil {
		set("OutcomeType", *p.OutcomeType)
	}
	if p.OutcomeClaimedDate != nil {
		set("OutcomeClaimedDate", *p.OutcomeClaimedDate)
	}
	if p.OutcomeEffectiveDate != nil {
		set("OutcomeEffectiveDate", *p.OutcomeEffectiveDate)
	}
	if p.ClaimedPriorityGroup != nil {
		set("ClaimedPriorityGroup", *p.ClaimedPriorityGroup)
	}
	if p.TouchpointID != "" {
		set("TouchpointId", p.TouchpointID)
	}
	if p.LastModifiedDate != nil {
		set("LastModifiedDate", *p.LastModifiedDate)
	}
	if p.LastModifiedTouchpointID != "" {
		set("LastModifiedTouchpointId", p.LastModifiedTouchpointID)
	}

	if err != nil {
		return fmt.Errorf("outcome: merge patch: %w", err)
	}
	return nil
}

func clearDates(doc *jsondoc.Document, claimed, effective bool) {
	if claimed {
		doc.SetNull("OutcomeClaimedDate")
	}
	if effective {
		doc.SetNull("OutcomeEffectiveDate")
	}
}
