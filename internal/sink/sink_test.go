package sink

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pveith/trix/internal/logger"
	"github.com/pveith/trix/internal/retry"
	"github.com/pveith/trix/pkg/models"
)

// testInitLogger initializes the logger for test execution, discarding output.
func testInitLogger(t *testing.T) {
	t.Helper()
	settings := models.ApplicationSettings{LogLevel: "error", LogFormat: "text"}
	err := logger.Init(settings, io.Discard)
	require.NoError(t, err, "Failed to initialize logger for test")
}

func feedbackEvent() models.Event {
	score := 42.5
	agent := int64(7)
	return models.Event{
		ID:        "evt-1",
		ChainID:   1,
		Registry:  models.RegistryReputation,
		EventType: "NewFeedback",
		AgentID:   &agent,
		Timestamp: 1700000000,
		Score:     &score,
	}
}

func jobFor(kind string, config string) models.ActionJob {
	return models.ActionJob{
		ID:        "job-1",
		TriggerID: "trg-1",
		EventID:   "evt-1",
		Kind:      kind,
		Config:    json.RawMessage(config),
		Event:     feedbackEvent(),
	}
}

func TestRenderTemplate(t *testing.T) {
	event := feedbackEvent()

	got, err := renderTemplate("agent {{agent_id}} scored {{score}} on {{registry}}", event)
	require.NoError(t, err)
	assert.Equal(t, "agent 7 scored 42.5 on reputation", got)

	got, err = renderTemplate("at {{timestamp}}", event)
	require.NoError(t, err)
	assert.Equal(t, "at 1700000000", got)

	// Referencing a field the event does not carry is an error.
	_, err = renderTemplate("owner is {{owner}}", event)
	require.Error(t, err)

	// No placeholders passes through untouched.
	got, err = renderTemplate("static text", event)
	require.NoError(t, err)
	assert.Equal(t, "static text", got)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(NewTool(), NewWebhook(nil))

	s, ok := r.Get(models.ActionTool)
	require.True(t, ok)
	assert.Equal(t, models.ActionTool, s.Kind())

	_, ok = r.Get("unknown")
	assert.False(t, ok)
}

func TestWebhook_Success(t *testing.T) {
	testInitLogger(t)

	var gotBody []byte
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotHeader = r.Header.Get("X-Token")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := NewWebhook(srv.Client())
	cfg := `{"url":"` + srv.URL + `","headers":{"X-Token":"secret"},"body":"{\"agent\":\"{{agent_id}}\"}"}`
	resp, err := w.Execute(context.Background(), jobFor(models.ActionWebhook, cfg))
	require.NoError(t, err)
	assert.Equal(t, "HTTP 200", resp)
	assert.JSONEq(t, `{"agent":"7"}`, string(gotBody))
	assert.Equal(t, "secret", gotHeader)
}

func TestWebhook_DefaultBodyIsFullEvent(t *testing.T) {
	testInitLogger(t)

	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := NewWebhook(srv.Client())
	_, err := w.Execute(context.Background(), jobFor(models.ActionWebhook, `{"url":"`+srv.URL+`"}`))
	require.NoError(t, err)

	var sent models.Event
	require.NoError(t, json.Unmarshal(gotBody, &sent))
	assert.Equal(t, "evt-1", sent.ID)
}

func TestWebhook_ClientErrorIsPermanent(t *testing.T) {
	testInitLogger(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	w := NewWebhook(srv.Client())
	_, err := w.Execute(context.Background(), jobFor(models.ActionWebhook, `{"url":"`+srv.URL+`"}`))
	require.Error(t, err)
	assert.True(t, retry.IsPermanent(err), "4xx must not be retried")
}

func TestWebhook_ServerErrorIsRetryable(t *testing.T) {
	testInitLogger(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	w := NewWebhook(srv.Client())
	_, err := w.Execute(context.Background(), jobFor(models.ActionWebhook, `{"url":"`+srv.URL+`"}`))
	require.Error(t, err)
	assert.False(t, retry.IsPermanent(err), "5xx is transient")
}

func TestWebhook_BadConfigIsPermanent(t *testing.T) {
	testInitLogger(t)
	w := NewWebhook(nil)

	_, err := w.Execute(context.Background(), jobFor(models.ActionWebhook, `{`))
	require.Error(t, err)
	assert.True(t, retry.IsPermanent(err))

	_, err = w.Execute(context.Background(), jobFor(models.ActionWebhook, `{}`))
	require.Error(t, err)
	assert.True(t, retry.IsPermanent(err), "missing url")
}

func TestNotify_RendersMessage(t *testing.T) {
	testInitLogger(t)

	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotify(srv.Client(), srv.URL)
	resp, err := n.Execute(context.Background(), jobFor(models.ActionNotify, `{"message":"score {{score}} from agent {{agent_id}}"}`))
	require.NoError(t, err)
	assert.Equal(t, "HTTP 200", resp)
	assert.Equal(t, "score 42.5 from agent 7", got["message"])
	assert.Equal(t, "evt-1", got["event_id"])
	assert.Equal(t, "trg-1", got["trigger_id"])
}

func TestNotify_NoEndpointIsPermanent(t *testing.T) {
	testInitLogger(t)
	n := NewNotify(nil, "")

	_, err := n.Execute(context.Background(), jobFor(models.ActionNotify, `{"message":"hello"}`))
	require.Error(t, err)
	assert.True(t, retry.IsPermanent(err))
}

func TestTool_RunsCommand(t *testing.T) {
	testInitLogger(t)
	tool := NewTool()

	out, err := tool.Execute(context.Background(), jobFor(models.ActionTool, `{"script":"echo agent-{{agent_id}}"}`))
	require.NoError(t, err)
	assert.Equal(t, "agent-7", out)
}

func TestTool_RunsInlineScript(t *testing.T) {
	testInitLogger(t)
	tool := NewTool()

	cfg := `{"script":"a={{agent_id}}\necho value-$a"}`
	out, err := tool.Execute(context.Background(), jobFor(models.ActionTool, cfg))
	require.NoError(t, err)
	assert.Equal(t, "value-7", out)
}

func TestTool_NonZeroExitIsRetryable(t *testing.T) {
	testInitLogger(t)
	tool := NewTool()

	_, err := tool.Execute(context.Background(), jobFor(models.ActionTool, `{"script":"false"}`))
	require.Error(t, err)
	assert.False(t, retry.IsPermanent(err))
}

func TestTool_EmptyScriptIsPermanent(t *testing.T) {
	testInitLogger(t)
	tool := NewTool()

	_, err := tool.Execute(context.Background(), jobFor(models.ActionTool, `{"script":"  "}`))
	require.Error(t, err)
	assert.True(t, retry.IsPermanent(err))
}
