package chat

import (
	"fmt"
	"time"
)

// DisplayName derives the title for a conversation. Groups use the explicit
// name; direct conversations use the other participant's name.
func (c *Conversation) DisplayName(selfID string) string {
	if c.Type == Group {
		if c.Name != "" {
			return c.Name
		}
		return "Group Chat"
	}
	if other := c.OtherParticipant(selfID); other != nil && other.Name != "" {
		return other.Name
	}
	return "Unknown User"
}

// OnlineCount returns how many participants other than self are online.
func (c *Conversation) OnlineCount(selfID string) int {
	n := 0
	for i := range c.Participants {
		p := &c.Participants[i]
		if p.ID != selfID && p.Presence.IsOnline {
			n++
		}
	}
	return n
}

// StatusText derives the header status line for a direct conversation.
// Online overrides any last-seen value.
func (c *Conversation) StatusText(selfID string, now time.Time) string {
	other := c.OtherParticipant(selfID)
	if other == nil {
		return "Offline"
	}
	if other.Presence.IsOnline {
		return "Online"
	}
	if other.Presence.LastSeen == 0 {
		return "Offline"
	}
	minutes := int(now.Sub(time.UnixMilli(other.Presence.LastSeen)).Minutes())
	switch {
	case minutes < 1:
		return "Just now"
	case minutes < 60:
		return fmt.Sprintf("Last seen %dm ago", minutes)
	case minutes < 1440:
		return fmt.Sprintf("Last seen %dh ago", minutes/60)
	default:
		return fmt.Sprintf("Last seen %dd ago", minutes/1440)
	}
}

// TypingSummary derives the typing indicator text for a set of typist ids.
// Self is always excluded before counting. Unknown ids render as "Someone".
func TypingSummary(c *Conversation, typistIDs []string, selfID string) string {
	var names []string
	for _, id := range typistIDs {
		if id == selfID {
			continue
		}
		if p := c.Participant(id); p != nil && p.Name != "" {
			names = append(names, p.Name)
		} else {
			names = append(names, "Someone")
		}
	}

	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0] + " is typing..."
	case 2:
		return names[0] + " and " + names[1] + " are typing..."
	default:
		return "Several people are typing..."
	}
}
