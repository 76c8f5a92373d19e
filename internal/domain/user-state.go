package domain

import (
	"time"

	"github.com/google/uuid"
)

// State is the position of a session in the question sequence.
type State int

const (
	StateInactive State = iota
	StateAwaitFirstName
	StateAwaitLastName
	StateAwaitPatronymic
	StateAwaitCustomerPhone
	StateAwaitContactPhone
	StateAwaitOrganizationName
	StateAwaitSocialChoice
	StateAwaitSocialHandle
	StateDone
)

var stateNames = map[State]string{
	StateInactive:              "INACTIVE",
	StateAwaitFirstName:        "AWAIT_FIRST_NAME",
	StateAwaitLastName:         "AWAIT_LAST_NAME",
	StateAwaitPatronymic:       "AWAIT_PATRONYMIC",
	StateAwaitCustomerPhone:    "AWAIT_CUSTOMER_PHONE",
	StateAwaitContactPhone:     "AWAIT_CONTACT_PHONE",
	StateAwaitOrganizationName: "AWAIT_ORGANIZATION_NAME",
	StateAwaitSocialChoice:     "AWAIT_SOCIAL_CHOICE",
	StateAwaitSocialHandle:     "AWAIT_SOCIAL_HANDLE",
	StateDone:                  "DONE",
}

var stateFields = map[State]string{
	StateAwaitFirstName:        FieldFirstName,
	StateAwaitLastName:         FieldLastName,
	StateAwaitPatronymic:       FieldPatronymic,
	StateAwaitCustomerPhone:    FieldCustomerPhone,
	StateAwaitContactPhone:     FieldContactPhone,
	StateAwaitOrganizationName: FieldOrganizationName,
	StateAwaitSocialChoice:     FieldSocialMediaPlatform,
	StateAwaitSocialHandle:     FieldSocialMediaHandle,
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// Field returns the record field collected while in s, or "" for
// the inactive and terminal states.
func (s State) Field() string {
	return stateFields[s]
}

// Next returns the following state in the sequence. DONE is absorbing.
func (s State) Next() State {
	if s <= StateInactive || s >= StateDone {
		return s
	}
	return s + 1
}

// Awaiting reports whether the session waits for input in this state.
func (s State) Awaiting() bool {
	return s > StateInactive && s < StateDone
}

// Session is one user's in-progress registration.
type Session struct {
	ID        string
	UserID    int64
	State     State
	Fields    map[string]string
	StartedAt time.Time
	UpdatedAt time.Time
}

// NewSession creates a session positioned at the first question.
func NewSession(userID int64) *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		State:     StateAwaitFirstName,
		Fields:    make(map[string]string, len(Columns)),
		StartedAt: now,
		UpdatedAt: now,
	}
}
