package chat

// ConversationType distinguishes two-party threads from group threads.
type ConversationType string

const (
	Direct ConversationType = "direct"
	Group  ConversationType = "group"
)

// MessageType classifies message content.
type MessageType string

const (
	Text  MessageType = "text"
	Image MessageType = "image"
	File  MessageType = "file"
	Voice MessageType = "voice"
	Video MessageType = "video"
)

// Presence is a participant's online status, refreshed by the server.
type Presence struct {
	IsOnline bool
	LastSeen int64 // unix ms, 0 if never seen
}

// Participant is a member of a conversation.
type Participant struct {
	ID       string
	Name     string
	Presence Presence
}

// LastMessage is the preview snapshot shown in the conversation list.
type LastMessage struct {
	Content   string
	Type      MessageType
	Timestamp int64
}

// Conversation is a direct or group messaging thread.
type Conversation struct {
	ID           string
	Type         ConversationType
	Name         string // group only; empty for direct
	AvatarURL    string
	Participants []Participant
	MutedBy      map[string]bool // participant id -> muted
	UnreadBy     map[string]int  // participant id -> unread count
	LastMessage  LastMessage
}

// Message is a single chat message. ReplyToID is a weak reference: the
// referenced message may not be in the currently loaded window.
type Message struct {
	ID              string
	ConversationID  string
	SenderID        string
	SenderName      string
	Content         string
	Type            MessageType
	MediaURL        string
	DurationSeconds int
	ReplyToID       string
	IsDeleted       bool
	IsEdited        bool
	Reactions       map[string][]string // reaction type -> user ids
	Timestamp       int64               // unix ms
}

// OtherParticipant returns the participant that is not self. Display name,
// avatar, presence and online count for direct conversations all go through
// this lookup so they cannot diverge.
func (c *Conversation) OtherParticipant(selfID string) *Participant {
	for i := range c.Participants {
		if c.Participants[i].ID != selfID {
			return &c.Participants[i]
		}
	}
	return nil
}

// Participant returns the participant with the given id, or nil.
func (c *Conversation) Participant(id string) *Participant {
	for i := range c.Participants {
		if c.Participants[i].ID == id {
			return &c.Participants[i]
		}
	}
	return nil
}

// IsMutedBy reports whether the given participant muted this conversation.
func (c *Conversation) IsMutedBy(userID string) bool {
	return c.MutedBy[userID]
}

// UnreadFor returns the unread counter for the given participant.
func (c *Conversation) UnreadFor(userID string) int {
	return c.UnreadBy[userID]
}
