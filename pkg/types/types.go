package types

import (
	"encoding/json"
	"net/http"
)

// Inbound event names emitted by the Team Messenger service
// ARCHITECTURAL DISCOVERY: Event name constants defined exactly as the server
// emits them to ensure compatibility with dispatch logic across the system
const (
	EventNewMessage   = "new_message"
	EventUserOnline   = "user_online"
	EventUserOffline  = "user_offline"
	EventUserTyping   = "user_typing"
	EventRoomJoined   = "room_joined"
	EventRoomLeft     = "room_left"
	EventTaskCreated  = "task_created"
	EventTaskUpdated  = "task_updated"
	EventTaskAssigned = "task_assigned"
)

// Outbound directive names accepted by the service
const (
	DirectiveJoinRoom    = "join_room"
	DirectiveLeaveRoom   = "leave_room"
	DirectiveSendMessage = "send_message"
	DirectiveTyping      = "typing"
)

// Session is the pair of short-lived access and longer-lived refresh
// credentials identifying an authenticated client. Both tokens are opaque
// strings to this layer; absence of either means logged out.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Valid reports whether the session carries a complete credential pair.
func (s Session) Valid() bool {
	return s.AccessToken != "" && s.RefreshToken != ""
}

// Event is the wire frame exchanged over the realtime channel
// ARCHITECTURAL DISCOVERY: Payload as json.RawMessage defers decoding to the
// subscriber that knows the concrete shape, keeping dispatch generic
type Event struct {
	Name    string          `json:"event"`
	Payload json.RawMessage `json:"data,omitempty"`
}

// ChannelStatus represents the realtime channel connection state.
type ChannelStatus int

const (
	StatusDisconnected ChannelStatus = iota
	StatusConnecting
	StatusConnected
	StatusClosed
)

func (s ChannelStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusClosed:
		return "closed"
	}
	return "unknown"
}

// JoinRoom is the payload of the join_room and leave_room directives.
type JoinRoom struct {
	Room string `json:"room"`
}

// SendMessage is the payload of the send_message directive.
type SendMessage struct {
	Content string `json:"content"`
	Room    string `json:"room"`
	ReplyTo *int64 `json:"reply_to,omitempty"`
}

// Typing is the payload of the typing directive.
type Typing struct {
	Room string `json:"room"`
}

// NewMessage is the payload of the new_message event.
type NewMessage struct {
	ID             int64  `json:"id"`
	SenderID       int64  `json:"sender_id"`
	SenderUsername string `json:"sender_username"`
	Content        string `json:"content"`
	Room           string `json:"room"`
	ReplyTo        *int64 `json:"reply_to,omitempty"`
	CreatedAt      string `json:"created_at"`
}

// UserOnline is the payload of the user_online event.
type UserOnline struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

// UserOffline is the payload of the user_offline event.
type UserOffline struct {
	UserID int64 `json:"user_id"`
}

// UserTyping is the payload of the user_typing event
// FUNCTIONAL DISCOVERY: The service identifies typists by user ID only;
// display names are resolved against the presence set on the client
type UserTyping struct {
	UserID int64  `json:"user_id"`
	Room   string `json:"room"`
}

// TaskEvent is the payload shared by task_created, task_updated and
// task_assigned events.
type TaskEvent struct {
	ID         int64  `json:"id"`
	Title      string `json:"title,omitempty"`
	Status     string `json:"status,omitempty"`
	AssignedTo *int64 `json:"assigned_to,omitempty"`
}

// PushKeys holds the client key material the push service encrypts against.
type PushKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// PushSubscription identifies a push delivery endpoint for this client.
type PushSubscription struct {
	Endpoint string   `json:"endpoint"`
	Keys     PushKeys `json:"keys"`
}

// PushNotification is the decoded payload of a delivered push message.
type PushNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Tag   string `json:"tag,omitempty"`
	URL   string `json:"url,omitempty"`
}

// User is the authenticated account as reported by GET /auth/me.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// ChatMessage is a stored chat message as returned by the messages API.
type ChatMessage struct {
	ID             int64  `json:"id"`
	SenderID       int64  `json:"sender_id"`
	SenderUsername string `json:"sender_username"`
	Content        string `json:"content"`
	Room           string `json:"room"`
	ReplyTo        *int64 `json:"reply_to,omitempty"`
	CreatedAt      string `json:"created_at"`
}

// Task is a stored task as returned by the tasks API.
type Task struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	AssignedTo  *int64 `json:"assigned_to,omitempty"`
	CreatorID   int64  `json:"creator_id"`
	CreatedAt   string `json:"created_at"`
}

// APIResponse is the outcome of an authenticated request once credential
// recovery has run its course
// ARCHITECTURAL DISCOVERY: Exposing a plain status+body pair rather than
// *http.Response keeps retry logic inside the client and lets callers stay
// free of body lifecycle management
type APIResponse struct {
	Status int
	Header http.Header
	Body   []byte
}

// OK reports whether the response carries a 2xx status.
func (r *APIResponse) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Decode unmarshals the response body into v.
func (r *APIResponse) Decode(v interface{}) error {
	return json.Unmarshal(r.Body, v)
}
