package domain

import (
	"fmt"
	"strings"

	apperrors "github.com/bjamilk/campusmarket/pkg/errors"
)

// Kind tags a listing with its marketplace category.
type Kind string

const (
	KindTextbook          Kind = "textbook"
	KindPastQuestion      Kind = "past_question"
	KindLectureNote       Kind = "lecture_note"
	KindTutor             Kind = "tutor"
	KindStudyGroup        Kind = "study_group"
	KindClub              Kind = "club"
	KindEventTicket       Kind = "event_ticket"
	KindMerchandise       Kind = "merchandise"
	KindCampusHustle      Kind = "campus_hustle"
	KindRental            Kind = "rental"
	KindRideShare         Kind = "ride_share"
	KindBikeScooter       Kind = "bike_scooter"
	KindSublet            Kind = "sublet"
	KindRoommate          Kind = "roommate"
	KindFood              Kind = "food"
	KindSecondHandGood    Kind = "second_hand_good"
	KindAsoEbi            Kind = "aso_ebi"
	KindProjectMaterial   Kind = "project_material"
	KindDataCollectionGig Kind = "data_collection_gig"
	KindPeerReviewService Kind = "peer_review_service"
	KindThesisSupport     Kind = "thesis_support"
)

// TerminalLabel names the end state of a listing once its poster closes it.
type TerminalLabel string

const (
	TerminalSold     TerminalLabel = "sold"
	TerminalResolved TerminalLabel = "resolved"
	TerminalClosed   TerminalLabel = "closed"
)

var kindTerminal = map[Kind]TerminalLabel{
	KindTextbook:          TerminalSold,
	KindPastQuestion:      TerminalSold,
	KindLectureNote:       TerminalSold,
	KindEventTicket:       TerminalSold,
	KindMerchandise:       TerminalSold,
	KindSecondHandGood:    TerminalSold,
	KindAsoEbi:            TerminalSold,
	KindProjectMaterial:   TerminalSold,
	KindBikeScooter:       TerminalSold,
	KindFood:              TerminalSold,
	KindTutor:             TerminalResolved,
	KindPeerReviewService: TerminalResolved,
	KindThesisSupport:     TerminalResolved,
	KindStudyGroup:        TerminalClosed,
	KindClub:              TerminalClosed,
	KindCampusHustle:      TerminalClosed,
	KindRental:            TerminalClosed,
	KindRideShare:         TerminalClosed,
	KindSublet:            TerminalClosed,
	KindRoommate:          TerminalClosed,
	KindDataCollectionGig: TerminalClosed,
}

// AllKinds returns every listing kind in declaration order.
func AllKinds() []Kind {
	return []Kind{
		KindTextbook, KindPastQuestion, KindLectureNote, KindTutor,
		KindStudyGroup, KindClub, KindEventTicket, KindMerchandise,
		KindCampusHustle, KindRental, KindRideShare, KindBikeScooter,
		KindSublet, KindRoommate, KindFood, KindSecondHandGood,
		KindAsoEbi, KindProjectMaterial, KindDataCollectionGig,
		KindPeerReviewService, KindThesisSupport,
	}
}

// ParseKind accepts a kind tag case-insensitively, with hyphens or
// underscores.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	if !k.Valid() {
		return "", apperrors.InvalidInput(fmt.Sprintf("unknown listing kind %q", s))
	}
	return k, nil
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	_, ok := kindTerminal[k]
	return ok
}

// TerminalLabel returns the label shown when a listing of this kind is closed.
func (k Kind) TerminalLabel() TerminalLabel {
	if l, ok := kindTerminal[k]; ok {
		return l
	}
	return TerminalClosed
}

func (k Kind) String() string { return string(k) }
