package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bazelment/agentconsole/internal/mockagent"
	"github.com/bazelment/agentconsole/session"
	"github.com/bazelment/agentconsole/store"
	"github.com/bazelment/agentconsole/transport"
)

func TestParseDecision(t *testing.T) {
	tests := []struct {
		line string
		want answer
	}{
		{"y\n", answer{approved: true}},
		{" YES ", answer{approved: true}},
		{"e", answer{approved: true, edit: true}},
		{"n", answer{}},
		{"", answer{}},
		{"maybe", answer{}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseDecision(tt.line), "line %q", tt.line)
	}
}

func TestAskDecision_Edit(t *testing.T) {
	content := "Refund $20"
	req := store.HitlRequest{ID: "r1", Message: "Refund?", EditableContent: &content}
	var out bytes.Buffer

	d, err := askDecision(context.Background(), req, readLines(strings.NewReader("e\nRefund $10\n")), nil, &out)
	require.NoError(t, err)
	assert.True(t, d.Approved)
	require.NotNil(t, d.EditedContent)
	assert.Equal(t, "Refund $10", *d.EditedContent)
	assert.Contains(t, out.String(), "[e]dit")
}

func TestAskDecision_RejectOnEOF(t *testing.T) {
	d, err := askDecision(context.Background(), store.HitlRequest{ID: "r1"}, readLines(strings.NewReader("")), nil, io.Discard)
	require.NoError(t, err)
	assert.False(t, d.Approved)
}

func TestAskDecision_ReturnsWhenContextEnds(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := askDecision(ctx, store.HitlRequest{ID: "r1"}, readLines(pr), nil, io.Discard)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestAskDecision_AbandonedWhenAborted(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	abort := make(chan struct{})
	close(abort)
	_, err := askDecision(context.Background(), store.HitlRequest{ID: "r1"}, readLines(pr), abort, io.Discard)
	assert.ErrorIs(t, err, errPromptAbandoned)
}

func TestConsole_StreamsPreviewDeltas(t *testing.T) {
	st := store.New()
	var out, status bytes.Buffer
	con := newConsole(&out, &status, st, nil)
	st.AddObserver(con)

	st.SetThinking(true)
	st.AppendTimelineStep(store.TimelineStep{ID: "step-1", Title: "Look up order", Metadata: store.StepMetadata{Tool: "orders"}})
	st.SetPreview("Hel")
	st.SetPreview("Hello")
	st.AppendMessage(store.Message{ID: "m1", Role: store.RoleAssistant, Content: "Hello"})
	st.SetPreview("")

	assert.Equal(t, "Hello\n", out.String())
	assert.Contains(t, status.String(), "thinking")
	assert.Contains(t, status.String(), "Look up order [orders]")
}

func TestConsole_LatestApprovalWins(t *testing.T) {
	st := store.New()
	con := newConsole(io.Discard, io.Discard, st, nil)
	st.AddObserver(con)

	st.SetPendingApproval(&store.HitlRequest{ID: "r1"})
	st.SetPendingApproval(&store.HitlRequest{ID: "r2"})

	select {
	case req := <-con.approvals:
		assert.Equal(t, "r2", req.ID)
	default:
		t.Fatal("no approval forwarded")
	}
}

func TestAwaitTurn_AutoApprove(t *testing.T) {
	script := mockagent.Script{Name: "approval", Frames: []mockagent.Frame{
		{Event: map[string]interface{}{"type": "hitl", "data": map[string]interface{}{"requestId": "r1", "message": "Proceed?"}}},
		{AwaitApproval: true, Event: map[string]interface{}{"type": "content", "data": map[string]interface{}{"content": "Done."}}},
	}}
	agent := mockagent.New(nil, script)
	ts := httptest.NewServer(agent.Router())
	defer ts.Close()

	askAutoApprove = true
	defer func() { askAutoApprove = false }()

	client := transport.NewClient(ts.URL+mockagent.StreamPath, transport.WithApprovalEndpoint(ts.URL+mockagent.ApprovalPath))
	st := store.New()
	var out bytes.Buffer
	con := newConsole(&out, io.Discard, st, nil)
	st.AddObserver(con)
	engine := session.NewEngine(client, st)
	defer engine.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	turn, err := engine.Send(ctx, "go")
	require.NoError(t, err)

	require.NoError(t, awaitTurn(ctx, engine, turn, con, readLines(strings.NewReader("")), io.Discard, slog.New(slog.DiscardHandler)))
	assert.Equal(t, session.OutcomeSettled, turn.Outcome())
	assert.Equal(t, "Done.\n", out.String())
	require.Len(t, agent.Approvals(), 1)
	assert.True(t, agent.Approvals()[0].Approved)
}

func TestAwaitTurn_AsksAboutApprovalPendingAfterSettle(t *testing.T) {
	script := mockagent.Script{Name: "approval", Frames: []mockagent.Frame{
		{Event: map[string]interface{}{"type": "hitl", "data": map[string]interface{}{"requestId": "r1", "message": "Proceed?"}}},
		{Event: map[string]interface{}{"type": "content", "data": map[string]interface{}{"content": "Queued."}}},
	}}
	agent := mockagent.New(nil, script)
	ts := httptest.NewServer(agent.Router())
	defer ts.Close()

	client := transport.NewClient(ts.URL+mockagent.StreamPath, transport.WithApprovalEndpoint(ts.URL+mockagent.ApprovalPath))
	st := store.New()
	con := newConsole(io.Discard, io.Discard, st, nil)
	st.AddObserver(con)
	engine := session.NewEngine(client, st, session.WithApprovalMode(session.ApprovalContinue))
	defer engine.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	turn, err := engine.Send(ctx, "go")
	require.NoError(t, err)

	require.NoError(t, awaitTurn(ctx, engine, turn, con, readLines(strings.NewReader("y\n")), io.Discard, slog.New(slog.DiscardHandler)))
	assert.Equal(t, session.OutcomeSettled, turn.Outcome())
	require.Len(t, agent.Approvals(), 1)
	assert.True(t, agent.Approvals()[0].Approved)
	assert.Nil(t, st.Snapshot().PendingApproval)
}

func TestWriteSchema(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeSchema(&buf))

	var schema map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &schema))
	props, ok := schema["properties"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, props, "type")
	assert.Contains(t, props, "data")
}

func TestConsole_TruncatesStatusLines(t *testing.T) {
	st := store.New()
	var status bytes.Buffer
	con := newConsole(io.Discard, &status, st, nil)
	con.width = 10
	st.AddObserver(con)

	st.AppendTimelineStep(store.TimelineStep{ID: "step-1", Title: "Reconcile every ledger entry"})
	line := strings.TrimRight(status.String(), "\n")
	assert.LessOrEqual(t, len([]rune(line)), 10)
	assert.True(t, strings.HasSuffix(line, "…"))
}
