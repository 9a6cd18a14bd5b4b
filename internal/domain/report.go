package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/bjamilk/campusmarket/pkg/errors"
)

// ReportReason is why a user flagged a listing.
type ReportReason string

const (
	ReasonInaccurate    ReportReason = "INACCURATE"
	ReasonScam          ReportReason = "SCAM"
	ReasonInappropriate ReportReason = "INAPPROPRIATE"
	ReasonSold          ReportReason = "SOLD"
	ReasonSpam          ReportReason = "SPAM"
	ReasonOther         ReportReason = "OTHER"
)

// ReportReasons lists the accepted reasons.
func ReportReasons() []ReportReason {
	return []ReportReason{ReasonInaccurate, ReasonScam, ReasonInappropriate, ReasonSold, ReasonSpam, ReasonOther}
}

// ParseReportReason accepts a reason case-insensitively.
func ParseReportReason(s string) (ReportReason, error) {
	r := ReportReason(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range ReportReasons() {
		if r == known {
			return r, nil
		}
	}
	return "", apperrors.InvalidInput(fmt.Sprintf("unknown report reason %q", s))
}

// Report is the moderation record of the first report filed on a listing.
type Report struct {
	ID         string       `json:"id"`
	ListingID  string       `json:"listing_id"`
	ReporterID string       `json:"reporter_id"`
	Reason     ReportReason `json:"reason"`
	Comment    string       `json:"comment,omitempty"`
	Date       time.Time    `json:"date"`
}

// ReportInput is a report submission.
type ReportInput struct {
	ReporterID string
	Reason     ReportReason
	Comment    string
}

// Validate checks the reason and, for OTHER, that a comment was given.
func (in ReportInput) Validate() error {
	if _, err := ParseReportReason(string(in.Reason)); err != nil {
		return err
	}
	if ReportReason(strings.ToUpper(string(in.Reason))) == ReasonOther && strings.TrimSpace(in.Comment) == "" {
		return apperrors.InvalidInput("a comment is required when the reason is OTHER")
	}
	return nil
}

// ReportAck acknowledges a report submission.
type ReportAck struct {
	ListingID       string          `json:"listing_id"`
	State           ModerationState `json:"moderation_state"`
	AlreadyReported bool            `json:"already_reported"`
}

// MarkReported flags l as reported. Reporting an already reported listing
// succeeds without recording anything new. There is no way back to active.
func MarkReported(l Listing, in ReportInput, now time.Time) (Listing, ReportAck, error) {
	if err := in.Validate(); err != nil {
		return l, ReportAck{}, err
	}
	if l.IsReported {
		return l, ReportAck{ListingID: l.ID, State: ModerationReported, AlreadyReported: true}, nil
	}

	reason, _ := ParseReportReason(string(in.Reason))
	now = now.UTC()

	next := l.Clone()
	next.IsReported = true
	next.Report = &Report{
		ID:         uuid.NewString(),
		ListingID:  l.ID,
		ReporterID: in.ReporterID,
		Reason:     reason,
		Comment:    strings.TrimSpace(in.Comment),
		Date:       now,
	}
	next.UpdatedAt = now
	return next, ReportAck{ListingID: l.ID, State: ModerationReported}, nil
}

// SetClosed sets the terminal flag. It does not touch the moderation state.
// changed is false when the flag already had the requested value.
func SetClosed(l Listing, closed bool, now time.Time) (next Listing, changed bool) {
	if l.IsClosed == closed {
		return l, false
	}
	next = l.Clone()
	next.IsClosed = closed
	next.UpdatedAt = now.UTC()
	return next, true
}
