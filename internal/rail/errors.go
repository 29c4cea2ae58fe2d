package rail

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAuth is returned by Login when the provider rejects the credentials.
	ErrAuth            = errors.New("rail: authentication failed")
	ErrUnknownProvider = errors.New("rail: no dialer registered for provider")
)

type Kind int

const (
	KindOther Kind = iota
	KindBotDetected
	KindSessionExpired
	KindSoldOut
	KindOverloaded
	KindStandbyClosed
	KindStandbyFull
)

func (k Kind) String() string {
	switch k {
	case KindBotDetected:
		return "bot_detected"
	case KindSessionExpired:
		return "session_expired"
	case KindSoldOut:
		return "sold_out"
	case KindOverloaded:
		return "overloaded"
	case KindStandbyClosed:
		return "standby_closed"
	case KindStandbyFull:
		return "standby_full"
	}
	return "other"
}

// Transient kinds mean "not available yet" and are retried after a pause.
func (k Kind) Transient() bool {
	switch k {
	case KindSoldOut, KindOverloaded, KindStandbyClosed, KindStandbyFull:
		return true
	}
	return false
}

// Error is a failure reported by the provider itself, as opposed to a
// transport or decoding failure.
type Error struct {
	Provider Provider
	Kind     Kind
	Message  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func NewError(p Provider, msg string) *Error {
	return &Error{Provider: p, Kind: Classify(p, msg), Message: msg}
}

// AsError unwraps a provider error from err.
func AsError(err error) (*Error, bool) {
	var re *Error
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

type signal struct {
	substr string
	kind   Kind
}

// Provider message fragments, matched in order.
var signals = map[Provider][]signal{
	SRT: {
		{"정상적인 경로로 접근 부탁드립니다", KindBotDetected},
		{"로그인 후 사용하십시오", KindSessionExpired},
		{"잔여석없음", KindSoldOut},
		{"사용자가 많아 접속이 원활하지 않습니다", KindOverloaded},
		{"예약대기 접수가 마감되었습니다", KindStandbyClosed},
		{"예약대기자한도수초과", KindStandbyFull},
	},
	KTX: {
		{"Sold out", KindSoldOut},
		{"잔여석없음", KindSoldOut},
		{"예약대기자한도수초과", KindStandbyFull},
	},
}

func Classify(p Provider, msg string) Kind {
	for _, s := range signals[p] {
		if strings.Contains(msg, s.substr) {
			return s.kind
		}
	}
	return KindOther
}
