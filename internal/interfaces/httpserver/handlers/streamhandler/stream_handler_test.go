package streamhandler

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"threadline/internal/domain/streamevent"
)

func TestSSEFrames(t *testing.T) {
	tests := []struct {
		name   string
		record streamevent.Record
		want   string
	}{
		{
			name: "persisted event carries its id",
			record: streamevent.Record{
				EventID: streamevent.FormatEventID(7),
				Name:    streamevent.MessageDelta,
				Payload: json.RawMessage(`{"delta":"hi"}`),
			},
			want: "event: message.delta\nid: evt_7\ndata: {\"type\":\"message.delta\",\"payload\":{\"delta\":\"hi\"}}\n\n",
		},
		{
			name:   "ephemeral event has no id",
			record: streamevent.Record{Name: streamevent.TypingUpdate},
			want:   "event: typing.update\ndata: {\"type\":\"typing.update\",\"payload\":{}}\n\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			w := &sseWriter{w: rec, flusher: rec}
			require.NoError(t, w.event(&tt.record))
			assert.Equal(t, tt.want, rec.Body.String())
			assert.True(t, rec.Flushed)
		})
	}
}

func TestSSEKeepAliveIsComment(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &sseWriter{w: rec, flusher: rec}
	require.NoError(t, w.keepAlive())
	assert.Equal(t, ": keep-alive\n\n", rec.Body.String())
}
