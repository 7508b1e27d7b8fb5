package types

import "regexp"

// FUNCTIONAL DISCOVERY: Regex compiled once at package initialization
// for better performance in high-frequency validation scenarios
var roomRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// IsValidRoom checks if a room name meets format requirements
// FUNCTIONAL DISCOVERY: 1-50 character limit matches what the service
// accepts and keeps room names displayable in UI components
func IsValidRoom(room string) bool {
	if len(room) < 1 || len(room) > 50 {
		return false
	}
	return roomRegex.MatchString(room)
}

// Validate ensures an outbound message meets all requirements before it is
// handed to the realtime channel.
func (m *SendMessage) Validate() error {
	if !IsValidRoom(m.Room) {
		return ErrInvalidRoom
	}
	if m.Content == "" {
		return ErrEmptyContent
	}
	// TECHNICAL DISCOVERY: 64KB content cap mirrors the service-side limit
	if len(m.Content) > 65536 {
		return ErrContentTooLarge
	}
	return nil
}

// IsInboundEvent checks if an event name is one the service is known to emit
// ARCHITECTURAL DISCOVERY: Explicit validation prevents undefined event
// names from entering the dispatch system
func IsInboundEvent(name string) bool {
	switch name {
	case EventNewMessage,
		EventUserOnline,
		EventUserOffline,
		EventUserTyping,
		EventRoomJoined,
		EventRoomLeft,
		EventTaskCreated,
		EventTaskUpdated,
		EventTaskAssigned:
		return true
	default:
		return false
	}
}
