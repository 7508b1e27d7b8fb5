package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"teamwire/pkg/interfaces"
	"teamwire/pkg/types"
)

// API is the thin typed glue over the service REST surface. Every call flows
// through the authenticated client; this layer adds no protocol behavior of
// its own.
type API struct {
	client interfaces.APIClient
}

// Interface compliance verified at compile time
var _ interfaces.PushRegistrar = (*API)(nil)

// New creates the REST surface wrapper.
func New(client interfaces.APIClient) *API {
	return &API{client: client}
}

// Me returns the authenticated account.
func (a *API) Me(ctx context.Context) (*types.User, error) {
	resp, err := a.client.Do(ctx, http.MethodGet, "/auth/me", nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("auth/me failed with status %d", resp.Status)
	}
	var user types.User
	if err := resp.Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode account: %w", err)
	}
	return &user, nil
}

// Register creates a new account. Registration is unauthenticated glue; the
// caller logs in afterwards.
func (a *API) Register(ctx context.Context, username, password string) error {
	resp, err := a.client.Do(ctx, http.MethodPost, "/auth/register",
		map[string]string{"username": username, "password": password})
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("registration failed with status %d", resp.Status)
	}
	return nil
}

// ListMessages returns up to limit messages for a room, optionally only
// those before beforeID (pagination as the service defines it).
func (a *API) ListMessages(ctx context.Context, room string, limit int, beforeID int64) ([]types.ChatMessage, error) {
	params := url.Values{}
	params.Set("room", room)
	params.Set("limit", strconv.Itoa(limit))
	if beforeID > 0 {
		params.Set("before_id", strconv.FormatInt(beforeID, 10))
	}

	resp, err := a.client.Do(ctx, http.MethodGet, "/messages?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("message list failed with status %d", resp.Status)
	}
	var messages []types.ChatMessage
	if err := resp.Decode(&messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	return messages, nil
}

// SendMessage posts a message over REST. The realtime channel is the primary
// send path; this is the fallback surface the service also exposes.
func (a *API) SendMessage(ctx context.Context, content, room string, replyTo *int64) error {
	body := types.SendMessage{Content: content, Room: room, ReplyTo: replyTo}
	if err := body.Validate(); err != nil {
		return err
	}
	resp, err := a.client.Do(ctx, http.MethodPost, "/messages", body)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("message send failed with status %d", resp.Status)
	}
	return nil
}

// DeleteMessage removes a message by ID.
func (a *API) DeleteMessage(ctx context.Context, id int64) error {
	resp, err := a.client.Do(ctx, http.MethodDelete, fmt.Sprintf("/messages/%d", id), nil)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("message delete failed with status %d", resp.Status)
	}
	return nil
}

// ListTasks returns tasks filtered by the given query values (status,
// assigned_to, … as the service defines them). filters may be nil.
func (a *API) ListTasks(ctx context.Context, filters url.Values) ([]types.Task, error) {
	endpoint := "/tasks"
	if len(filters) > 0 {
		endpoint += "?" + filters.Encode()
	}
	resp, err := a.client.Do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("task list failed with status %d", resp.Status)
	}
	var tasks []types.Task
	if err := resp.Decode(&tasks); err != nil {
		return nil, fmt.Errorf("failed to decode tasks: %w", err)
	}
	return tasks, nil
}

// GetTask returns one task by ID.
func (a *API) GetTask(ctx context.Context, id int64) (*types.Task, error) {
	resp, err := a.client.Do(ctx, http.MethodGet, fmt.Sprintf("/tasks/%d", id), nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("task get failed with status %d", resp.Status)
	}
	var task types.Task
	if err := resp.Decode(&task); err != nil {
		return nil, fmt.Errorf("failed to decode task: %w", err)
	}
	return &task, nil
}

// CreateTask creates a task and returns its stored form.
func (a *API) CreateTask(ctx context.Context, task types.Task) (*types.Task, error) {
	resp, err := a.client.Do(ctx, http.MethodPost, "/tasks", task)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("task create failed with status %d", resp.Status)
	}
	var created types.Task
	if err := resp.Decode(&created); err != nil {
		return nil, fmt.Errorf("failed to decode created task: %w", err)
	}
	return &created, nil
}

// UpdateTask applies a partial update to a task.
func (a *API) UpdateTask(ctx context.Context, id int64, fields map[string]interface{}) error {
	resp, err := a.client.Do(ctx, http.MethodPut, fmt.Sprintf("/tasks/%d", id), fields)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("task update failed with status %d", resp.Status)
	}
	return nil
}

// DeleteTask removes a task by ID.
func (a *API) DeleteTask(ctx context.Context, id int64) error {
	resp, err := a.client.Do(ctx, http.MethodDelete, fmt.Sprintf("/tasks/%d", id), nil)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("task delete failed with status %d", resp.Status)
	}
	return nil
}

// VapidKey fetches the server public key push subscriptions are bound to.
func (a *API) VapidKey(ctx context.Context) (string, error) {
	resp, err := a.client.Do(ctx, http.MethodGet, "/push/vapid-key", nil)
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", fmt.Errorf("vapid key fetch failed with status %d", resp.Status)
	}
	var key struct {
		PublicKey string `json:"publicKey"`
	}
	if err := resp.Decode(&key); err != nil {
		return "", fmt.Errorf("failed to decode vapid key: %w", err)
	}
	return key.PublicKey, nil
}

// SubscribePush registers a push subscription with the service.
func (a *API) SubscribePush(ctx context.Context, sub *types.PushSubscription) error {
	resp, err := a.client.Do(ctx, http.MethodPost, "/push/subscribe", sub)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("push subscribe failed with status %d", resp.Status)
	}
	return nil
}

// UnsubscribePush removes this client's push subscriptions from the service.
func (a *API) UnsubscribePush(ctx context.Context) error {
	resp, err := a.client.Do(ctx, http.MethodDelete, "/push/subscribe", nil)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("push unsubscribe failed with status %d", resp.Status)
	}
	return nil
}

// PushStatus reports whether the service holds a subscription for this account.
func (a *API) PushStatus(ctx context.Context) (bool, error) {
	resp, err := a.client.Do(ctx, http.MethodGet, "/push/status", nil)
	if err != nil {
		return false, err
	}
	if !resp.OK() {
		return false, fmt.Errorf("push status failed with status %d", resp.Status)
	}
	var status struct {
		Subscribed bool `json:"subscribed"`
	}
	if err := resp.Decode(&status); err != nil {
		return false, fmt.Errorf("failed to decode push status: %w", err)
	}
	return status.Subscribed, nil
}
