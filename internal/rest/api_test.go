package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"teamwire/pkg/types"
)

// Mock APIClient recording the last request and returning a scripted response.
type mockClient struct {
	lastMethod   string
	lastEndpoint string
	lastBody     interface{}

	status int
	body   string
	err    error
}

func (m *mockClient) Do(ctx context.Context, method, endpoint string, body interface{}) (*types.APIResponse, error) {
	m.lastMethod = method
	m.lastEndpoint = endpoint
	m.lastBody = body
	if m.err != nil {
		return nil, m.err
	}
	status := m.status
	if status == 0 {
		status = http.StatusOK
	}
	return &types.APIResponse{Status: status, Body: []byte(m.body)}, nil
}

func TestAPI_Me(t *testing.T) {
	client := &mockClient{body: `{"id":7,"username":"alice","role":"admin"}`}
	api := New(client)

	user, err := api.Me(context.Background())
	if err != nil {
		t.Fatalf("Me failed: %v", err)
	}
	if client.lastMethod != http.MethodGet || client.lastEndpoint != "/auth/me" {
		t.Errorf("Me issued %s %s", client.lastMethod, client.lastEndpoint)
	}
	if user.ID != 7 || user.Username != "alice" || user.Role != "admin" {
		t.Errorf("Me decoded %+v", user)
	}
}

func TestAPI_MePropagatesClientError(t *testing.T) {
	client := &mockClient{err: types.ErrNetworkUnavailable}
	api := New(client)

	if _, err := api.Me(context.Background()); !errors.Is(err, types.ErrNetworkUnavailable) {
		t.Errorf("Me returned %v, want the client error", err)
	}
}

func TestAPI_ListMessagesBuildsQuery(t *testing.T) {
	client := &mockClient{body: `[{"id":1,"content":"hi","room":"general"}]`}
	api := New(client)

	messages, err := api.ListMessages(context.Background(), "general", 50, 120)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}

	u, _ := url.Parse(client.lastEndpoint)
	if u.Path != "/messages" {
		t.Errorf("endpoint path %q", u.Path)
	}
	q := u.Query()
	if q.Get("room") != "general" || q.Get("limit") != "50" || q.Get("before_id") != "120" {
		t.Errorf("query %v", q)
	}
	if len(messages) != 1 || messages[0].Content != "hi" {
		t.Errorf("decoded %+v", messages)
	}
}

func TestAPI_ListMessagesOmitsZeroBeforeID(t *testing.T) {
	client := &mockClient{body: `[]`}
	api := New(client)

	if _, err := api.ListMessages(context.Background(), "general", 50, 0); err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	u, _ := url.Parse(client.lastEndpoint)
	if u.Query().Has("before_id") {
		t.Error("before_id sent for the first page")
	}
}

func TestAPI_SendMessageValidatesBeforeSending(t *testing.T) {
	client := &mockClient{}
	api := New(client)

	if err := api.SendMessage(context.Background(), "", "general", nil); !errors.Is(err, types.ErrEmptyContent) {
		t.Errorf("empty content returned %v, want ErrEmptyContent", err)
	}
	if err := api.SendMessage(context.Background(), "hi", "bad room", nil); !errors.Is(err, types.ErrInvalidRoom) {
		t.Errorf("bad room returned %v, want ErrInvalidRoom", err)
	}
	if client.lastMethod != "" {
		t.Error("invalid message still reached the network")
	}

	if err := api.SendMessage(context.Background(), "hi", "general", nil); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if client.lastMethod != http.MethodPost || client.lastEndpoint != "/messages" {
		t.Errorf("SendMessage issued %s %s", client.lastMethod, client.lastEndpoint)
	}
}

func TestAPI_TaskOperations(t *testing.T) {
	client := &mockClient{body: `{"id":3,"title":"ship it","status":"open","creator_id":1}`}
	api := New(client)

	task, err := api.GetTask(context.Background(), 3)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if client.lastEndpoint != "/tasks/3" {
		t.Errorf("GetTask hit %q", client.lastEndpoint)
	}
	if task.Title != "ship it" {
		t.Errorf("decoded task %+v", task)
	}

	created, err := api.CreateTask(context.Background(), types.Task{Title: "ship it"})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if client.lastMethod != http.MethodPost || created.ID != 3 {
		t.Errorf("CreateTask issued %s, decoded %+v", client.lastMethod, created)
	}

	client.body = `{}`
	if err := api.UpdateTask(context.Background(), 3, map[string]interface{}{"status": "done"}); err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}
	if client.lastMethod != http.MethodPut || client.lastEndpoint != "/tasks/3" {
		t.Errorf("UpdateTask issued %s %s", client.lastMethod, client.lastEndpoint)
	}
	fields, ok := client.lastBody.(map[string]interface{})
	if !ok || fields["status"] != "done" {
		t.Errorf("UpdateTask sent body %+v", client.lastBody)
	}

	if err := api.DeleteTask(context.Background(), 3); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}
	if client.lastMethod != http.MethodDelete {
		t.Errorf("DeleteTask issued %s", client.lastMethod)
	}
}

func TestAPI_ListTasksWithFilters(t *testing.T) {
	client := &mockClient{body: `[]`}
	api := New(client)

	filters := url.Values{}
	filters.Set("status", "open")
	if _, err := api.ListTasks(context.Background(), filters); err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if client.lastEndpoint != "/tasks?status=open" {
		t.Errorf("ListTasks hit %q", client.lastEndpoint)
	}

	if _, err := api.ListTasks(context.Background(), nil); err != nil {
		t.Fatalf("unfiltered ListTasks failed: %v", err)
	}
	if client.lastEndpoint != "/tasks" {
		t.Errorf("unfiltered ListTasks hit %q", client.lastEndpoint)
	}
}

func TestAPI_NonOKStatusIsAnError(t *testing.T) {
	client := &mockClient{status: http.StatusForbidden, body: `{"detail":"nope"}`}
	api := New(client)

	if _, err := api.Me(context.Background()); err == nil {
		t.Error("Me should fail on a 403")
	}
	if err := api.DeleteMessage(context.Background(), 1); err == nil {
		t.Error("DeleteMessage should fail on a 403")
	}
}

func TestAPI_PushFlow(t *testing.T) {
	client := &mockClient{body: `{"publicKey":"server-vapid"}`}
	api := New(client)

	key, err := api.VapidKey(context.Background())
	if err != nil {
		t.Fatalf("VapidKey failed: %v", err)
	}
	if key != "server-vapid" {
		t.Errorf("VapidKey returned %q", key)
	}
	if client.lastEndpoint != "/push/vapid-key" {
		t.Errorf("VapidKey hit %q", client.lastEndpoint)
	}

	client.body = `{}`
	sub := &types.PushSubscription{Endpoint: "https://push.example/abc"}
	if err := api.SubscribePush(context.Background(), sub); err != nil {
		t.Fatalf("SubscribePush failed: %v", err)
	}
	if client.lastMethod != http.MethodPost || client.lastEndpoint != "/push/subscribe" {
		t.Errorf("SubscribePush issued %s %s", client.lastMethod, client.lastEndpoint)
	}
	sent, _ := json.Marshal(client.lastBody)
	if string(sent) == "null" {
		t.Error("SubscribePush sent no body")
	}

	if err := api.UnsubscribePush(context.Background()); err != nil {
		t.Fatalf("UnsubscribePush failed: %v", err)
	}
	if client.lastMethod != http.MethodDelete {
		t.Errorf("UnsubscribePush issued %s", client.lastMethod)
	}

	client.body = `{"subscribed":true}`
	subscribed, err := api.PushStatus(context.Background())
	if err != nil {
		t.Fatalf("PushStatus failed: %v", err)
	}
	if !subscribed {
		t.Error("PushStatus decoded false, want true")
	}
}
