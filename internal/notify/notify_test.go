package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/CosmoTheDev/repomaint-agent/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type recordingChannel struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recordingChannel) Name() string       { return "recording" }
func (r *recordingChannel) IsConfigured() bool { return true }
func (r *recordingChannel) Send(_ context.Context, evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return r.err
}

func TestDispatcher(t *testing.T) {
	t.Parallel()

	t.Run("should send only the default events", func(t *testing.T) {
		t.Parallel()

		ch := &recordingChannel{}
		d := newDispatcher(config.NotifyConfig{}, ch)

		d.Notify(context.Background(), Event{Type: EventPROpened})
		d.Notify(context.Background(), Event{Type: EventRepositoryIndexed})
		d.Notify(context.Background(), Event{Type: EventTaskFailed})

		require.Len(t, ch.events, 2)
		assert.Equal(t, EventTaskFailed, ch.events[1].Type)
	})

	t.Run("should filter by configured events and severity", func(t *testing.T) {
		t.Parallel()

		ch := &recordingChannel{}
		d := newDispatcher(config.NotifyConfig{Events: []string{EventReviewPosted}, MinSeverity: "medium"}, ch)

		d.Notify(context.Background(), Event{Type: EventReviewPosted, Severity: "low"})
		d.Notify(context.Background(), Event{Type: EventReviewPosted, Severity: "high"})
		d.Notify(context.Background(), Event{Type: EventPROpened})

		require.Len(t, ch.events, 1)
		assert.Equal(t, "high", ch.events[0].Severity)
	})

	t.Run("should swallow channel errors", func(t *testing.T) {
		t.Parallel()

		ch := &recordingChannel{err: errors.New("down")}
		d := newDispatcher(config.NotifyConfig{}, ch)

		assert.NotPanics(t, func() { d.Notify(context.Background(), Event{Type: EventTaskFailed}) })
		assert.True(t, d.IsAnyConfigured())
	})

	t.Run("should skip unconfigured channels", func(t *testing.T) {
		t.Parallel()

		d := NewDispatcher(config.NotifyConfig{})
		assert.False(t, d.IsAnyConfigured())
		assert.Empty(t, d.Channels())
	})
}

func TestWebhookSigning(t *testing.T) {
	t.Parallel()

	t.Run("should sign the body", func(t *testing.T) {
		t.Parallel()

		// given
		var gotSig string
		var gotBody []byte
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotSig = r.Header.Get(SignatureHeader)
			gotBody, _ = io.ReadAll(r.Body)
			w.WriteHeader(http.StatusNoContent)
		}))
		t.Cleanup(srv.Close)
		w := NewWebhook(config.WebhookNotifyConfig{URL: srv.URL, Secret: "s3cret"})

		// when
		err := w.Send(context.Background(), Event{Type: EventPROpened, Title: "PR opened", Repository: "acme/demo"})

		// then
		require.NoError(t, err)
		assert.Equal(t, "sha256="+Sign("s3cret", gotBody), gotSig)
		assert.Equal(t, "acme/demo", gjson.GetBytes(gotBody, "repository").String())
	})

	t.Run("should report error statuses", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		t.Cleanup(srv.Close)

		err := NewWebhook(config.WebhookNotifyConfig{URL: srv.URL}).Send(context.Background(), Event{Type: EventTaskFailed})
		assert.ErrorContains(t, err, "500")
	})
}

func TestSlackPayload(t *testing.T) {
	t.Parallel()

	body, err := slackPayload(Event{Title: "Review posted", Body: "score 8.2", Severity: "low", URL: "https://github.com/acme/demo/pull/7"}, time.Unix(1700000000, 0))

	require.NoError(t, err)
	assert.Equal(t, "Review posted", gjson.GetBytes(body, "text").String())
	assert.Equal(t, "#36A64F", gjson.GetBytes(body, "attachments.0.color").String())
	assert.Equal(t, "https://github.com/acme/demo/pull/7", gjson.GetBytes(body, "attachments.0.title_link").String())
	assert.Equal(t, int64(1700000000), gjson.GetBytes(body, "attachments.0.ts").Int())
}
