package mockagent

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleScripts = `
scripts:
  - name: fallback
    frames:
      - event: {type: content, data: {content: "hi"}}
  - name: broken
    match: "break"
    status: 503
  - name: chunked
    match: "chunk"
    chunkSize: 3
    frames:
      - raw: "data: not json"
      - event: {type: content, data: {content: "ok"}}
        delay: 5ms
`

func TestParseScripts(t *testing.T) {
	scripts, err := ParseScripts([]byte(sampleScripts))
	require.NoError(t, err)
	require.Len(t, scripts, 3)

	assert.Equal(t, "fallback", scripts[0].Name)
	assert.Equal(t, 503, scripts[1].Status)
	assert.Equal(t, 3, scripts[2].ChunkSize)
	assert.Equal(t, 5*time.Millisecond, scripts[2].Frames[1].Delay)
	assert.Equal(t, "data: not json", scripts[2].Frames[0].Raw)
}

func TestParseScripts_Errors(t *testing.T) {
	_, err := ParseScripts([]byte("scripts: []"))
	assert.Error(t, err)

	_, err = ParseScripts([]byte("scripts:\n  - frames: []\n"))
	assert.ErrorContains(t, err, "no name")

	_, err = ParseScripts([]byte("scripts: ["))
	assert.Error(t, err)
}

func TestFrameLines(t *testing.T) {
	text, err := Frame{Raw: "event: ping"}.Lines()
	require.NoError(t, err)
	assert.Equal(t, "event: ping\n", text)

	text, err = Frame{Event: map[string]interface{}{"type": "content"}}.Lines()
	require.NoError(t, err)
	assert.Equal(t, "data: {\"type\":\"content\"}\n\n", text)

	text, err = Frame{}.Lines()
	require.NoError(t, err)
	assert.Empty(t, text)
}

func post(t *testing.T, url, body string, header http.Header) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(data)
}

func TestServer_StreamsMatchedScript(t *testing.T) {
	scripts, err := ParseScripts([]byte(sampleScripts))
	require.NoError(t, err)
	srv := New(nil, scripts...)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, body := post(t, ts.URL+StreamPath, `{"prompt":"chunk it","context":{"page":"home"}}`, http.Header{
		"Authorization": {"Bearer tok"},
		"X-Tenant-Id":   {"acme"},
		"X-User-Id":     {"u1"},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "data: not json\ndata: {\"data\":{\"content\":\"ok\"},\"type\":\"content\"}\n\ndata: [DONE]\n\n", body)

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "chunk it", reqs[0].Prompt)
	assert.Equal(t, "tok", reqs[0].Token)
	assert.Equal(t, "acme", reqs[0].TenantID)
	assert.Equal(t, "u1", reqs[0].UserID)
	assert.Equal(t, "home", reqs[0].Context["page"])
}

func TestServer_FallbackAndStatus(t *testing.T) {
	scripts, err := ParseScripts([]byte(sampleScripts))
	require.NoError(t, err)
	ts := httptest.NewServer(New(nil, scripts...).Router())
	defer ts.Close()

	resp, body := post(t, ts.URL+StreamPath, `{"prompt":"anything"}`, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"hi"`)

	resp, _ = post(t, ts.URL+StreamPath, `{"prompt":"break please"}`, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, _ = post(t, ts.URL+StreamPath, `not json`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_AwaitApproval(t *testing.T) {
	script := Script{
		Name: "approval",
		Frames: []Frame{
			{Event: map[string]interface{}{"type": "hitl", "data": map[string]interface{}{"requestId": "r1"}}},
			{AwaitApproval: true, Event: map[string]interface{}{"type": "content", "data": map[string]interface{}{"content": "done"}}},
		},
	}
	srv := New(nil, script)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	bodyCh := make(chan string, 1)
	go func() {
		resp, err := http.Post(ts.URL+StreamPath, "application/json", bytes.NewBufferString(`{"prompt":"go"}`))
		if err != nil {
			bodyCh <- ""
			return
		}
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		bodyCh <- string(data)
	}()

	select {
	case <-bodyCh:
		t.Fatal("stream finished before approval")
	case <-time.After(50 * time.Millisecond):
	}

	resp, _ := post(t, ts.URL+ApprovalPath, `{"requestId":"r1","approved":true,"comment":"fine"}`, http.Header{"X-Tenant-Id": {"acme"}})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	select {
	case body := <-bodyCh:
		assert.Contains(t, body, `"done"`)
		assert.True(t, strings.HasSuffix(body, "data: [DONE]\n\n"))
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not resume")
	}

	approvals := srv.Approvals()
	require.Len(t, approvals, 1)
	assert.Equal(t, "r1", approvals[0].RequestID)
	assert.True(t, approvals[0].Approved)
	assert.Equal(t, "fine", approvals[0].Comment)
	assert.Equal(t, "acme", approvals[0].TenantID)
}

func TestServer_ApprovalRequiresID(t *testing.T) {
	ts := httptest.NewServer(New(nil).Router())
	defer ts.Close()

	resp, _ := post(t, ts.URL+ApprovalPath, `{"approved":true}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_Health(t *testing.T) {
	ts := httptest.NewServer(New(nil).Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + HealthPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
