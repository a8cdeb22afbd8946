/*
Package presence watches the broker for room and member lifecycle events.

A Watcher owns one subscription: the room-lifecycle watcher listens on a room's "deleted" topic,
the member-kick watcher on the current user's "kicked" topic. Each reports at most one Event over
its lifetime. Once stopped, a Watcher delivers nothing more: its Events channel is closed and its
listener is never called again.
*/
package presence

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Kind tags a presence Event.
type Kind int

const (
	// RoomDeleted means the watched room was deleted.
	RoomDeleted Kind = iota + 1

	// MemberKicked means the current user was removed from the room.
	MemberKicked
)

func (k Kind) String() string {
	switch k {
	case RoomDeleted:
		return "ROOM_DELETED"
	case MemberKicked:
		return "MEMBER_KICKED"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Default human-readable reasons used when the broker sends an empty body.
const (
	DefaultKickMessage        = "You have been removed from the room."
	DefaultRoomDeletedMessage = "This room has been deleted."
)

// Event is a terminal presence notification.
type Event struct {
	Kind Kind `json:"kind"`

	// SubjectID is the room id for RoomDeleted and the user id for MemberKicked.
	SubjectID string `json:"subjectId"`

	// Message is the human-readable reason.
	Message string `json:"message"`
}

// ErrInvalidID is returned for a room or user id that cannot be placed in a topic.
var ErrInvalidID = errors.New("invalid topic id")

// MaxIDLength is the longest room or user id, in characters, accepted in a topic.
const MaxIDLength = 64

// topicReserved are characters that split the topic path or act as broker wildcards.
const topicReserved = "/*#>%"

// ValidateID checks that id can be placed in a topic as a single segment: 1-64 characters, not
// "." or "..", without whitespace, control characters or any of / * # > %.
// Emails and provider ids such as "auth0|abc" are accepted.
func ValidateID(id string) error {
	if id == "" || id == "." || id == ".." || !utf8.ValidString(id) || utf8.RuneCountInString(id) > MaxIDLength {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	bad := strings.ContainsFunc(id, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r) || strings.ContainsRune(topicReserved, r)
	})
	if bad {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// RoomDeletedTopic returns the topic announcing deletion of roomID.
func RoomDeletedTopic(roomID string) (string, error) {
	if err := ValidateID(roomID); err != nil {
		return "", err
	}
	return "/topic/rooms/" + roomID + "/deleted", nil
}

// MemberKickedTopic returns the topic announcing removal of userID.
func MemberKickedTopic(userID string) (string, error) {
	if err := ValidateID(userID); err != nil {
		return "", err
	}
	return "/topic/room-member/" + userID + "/deleted", nil
}
