// Package visibility decides what a given user may see of a chat or message.
//
// Every read path (history, chat list, push fan-out) goes through these
// functions so soft-delete and hide rules live in exactly one place.
package visibility

// Verdict is the outcome of a visibility decision.
type Verdict int

const (
	// Show means the record is returned as stored.
	Show Verdict = iota
	// Hide means the record is omitted for this user.
	Hide
	// Redact means the record is returned with its content replaced by a
	// placeholder.
	Redact
)

func (v Verdict) String() string {
	switch v {
	case Show:
		return "show"
	case Hide:
		return "hide"
	case Redact:
		return "redact"
	default:
		return "unknown"
	}
}

// Placeholder is the text a tombstoned message carries.
const Placeholder = "This message was deleted"

// MessageView is the subset of a message the policy looks at.
type MessageView struct {
	Tombstone   bool
	DeletedFor  Set
	RedactedFor Set
}

// ChatView is the subset of a chat the policy looks at.
type ChatView struct {
	Users     []string
	HiddenFor Set
}

// Message decides how a message appears to user.
//
// A tombstone left by delete-for-everyone records both participants in
// DeletedFor and in RedactedFor; it is redacted for whoever is still in
// RedactedFor so each side sees the placeholder instead of the content.
// Clearing or hiding the chat later drops the user from RedactedFor and the
// tombstone becomes hidden like any other deleted message. A tombstone is
// never shown with content.
func Message(user string, m MessageView) Verdict {
	if m.Tombstone && m.RedactedFor.Contains(user) {
		return Redact
	}
	if m.DeletedFor.Contains(user) {
		return Hide
	}
	if m.Tombstone {
		return Redact
	}
	return Show
}

// Chat decides whether a chat appears in user's chat list. Users who are not
// participants never see it.
func Chat(user string, c ChatView) Verdict {
	if !Participant(user, c.Users) {
		return Hide
	}
	if c.HiddenFor.Contains(user) {
		return Hide
	}
	return Show
}

// Participant reports whether user is one of users.
func Participant(user string, users []string) bool {
	probe := NewSet(user)
	for _, u := range users {
		if probe.Contains(u) {
			return true
		}
	}
	return false
}
