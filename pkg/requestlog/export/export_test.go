package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercator-hq/keygate/pkg/requestlog"
	"mercator-hq/keygate/pkg/security/auth"
)

func sampleEntries() []*requestlog.Entry {
	t0 := time.Date(2024, 7, 26, 12, 0, 0, 0, time.UTC)
	return []*requestlog.Entry{
		{
			ID:         "e1",
			Collection: "requests",
			Route:      "/search",
			User:       auth.Verdict{Name: "alice", Authorized: true, Environment: "prod"},
			IP:         "cf: undefined xr: undefined xf: undefined ra: 10.0.0.1:1",
			Request: requestlog.RequestSnapshot{
				Body:    map[string]any{"key": "redacted", "q": "a,b"},
				Headers: map[string]string{"origin": "https://a.example"},
			},
			ReqTime: t0,
		},
		{
			ID:      "e2",
			Route:   "/search",
			User:    auth.Verdict{Name: "unknown", Environment: "prod", Issue: auth.IssueKeyMismatch},
			ReqTime: t0.Add(time.Second),
		},
	}
}

func TestJSONExporter_Export(t *testing.T) {
	for _, pretty := range []bool{false, true} {
		var buf bytes.Buffer
		require.NoError(t, NewJSONExporter(pretty).Export(context.Background(), sampleEntries(), &buf))

		var docs []map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &docs))
		require.Len(t, docs, 2)

		assert.Equal(t, "/search", docs[0]["route"])
		user := docs[0]["user"].(map[string]any)
		assert.Equal(t, "alice", user["name"])
		assert.Equal(t, true, user["authorized"])
		assert.Equal(t, "prod", user["api_env"])
		assert.Equal(t, "2024-07-26T12:00:00Z", docs[0]["req_time"])

		denied := docs[1]["user"].(map[string]any)
		assert.Equal(t, auth.IssueKeyMismatch, denied["issue"])
	}
}

func TestJSONExporter_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewJSONExporter(false).Export(context.Background(), nil, &buf))
	assert.Equal(t, "[]", buf.String())
}

func TestJSONExporter_ExportStream(t *testing.T) {
	for _, pretty := range []bool{false, true} {
		ch := make(chan *requestlog.Entry, 2)
		for _, e := range sampleEntries() {
			ch <- e
		}
		close(ch)

		var buf bytes.Buffer
		require.NoError(t, NewJSONExporter(pretty).ExportStream(context.Background(), ch, &buf))

		var docs []requestlog.Entry
		require.NoError(t, json.Unmarshal(buf.Bytes(), &docs), buf.String())
		require.Len(t, docs, 2)
		assert.Equal(t, "e2", docs[1].ID)
	}

	empty := make(chan *requestlog.Entry)
	close(empty)
	var buf bytes.Buffer
	require.NoError(t, NewJSONExporter(true).ExportStream(context.Background(), empty, &buf))
	assert.Equal(t, "[]", buf.String())
}

func TestJSONExporter_ExportStreamCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewJSONExporter(false).ExportStream(ctx, make(chan *requestlog.Entry), &bytes.Buffer{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCSVExporter_Export(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewCSVExporter(true).Export(context.Background(), sampleEntries(), &buf))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, "e1", rows[1][0])
	assert.Equal(t, "alice", rows[1][3])
	assert.Equal(t, "true", rows[1][4])
	assert.JSONEq(t, `{"key":"redacted","q":"a,b"}`, rows[1][9])
	assert.Equal(t, "2024-07-26T12:00:00Z", rows[1][11])
	assert.Equal(t, auth.IssueKeyMismatch, rows[2][6])
	assert.Equal(t, "null", rows[2][9])
}

func TestCSVExporter_ExportStream(t *testing.T) {
	ch := make(chan *requestlog.Entry, 250)
	for i := 0; i < 250; i++ {
		ch <- sampleEntries()[0]
	}
	close(ch)

	var buf bytes.Buffer
	require.NoError(t, NewCSVExporter(false).ExportStream(context.Background(), ch, &buf))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 250)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestExporters_WriteFailure(t *testing.T) {
	var exportErr *requestlog.ExportError

	err := NewJSONExporter(false).Export(context.Background(), sampleEntries(), failingWriter{})
	require.ErrorAs(t, err, &exportErr)
	assert.Equal(t, "json", exportErr.Format)

	err = NewCSVExporter(true).Export(context.Background(), sampleEntries(), failingWriter{})
	require.ErrorAs(t, err, &exportErr)
	assert.Equal(t, "csv", exportErr.Format)
}

func TestNew(t *testing.T) {
	e, err := New("json", true)
	require.NoError(t, err)
	assert.IsType(t, &JSONExporter{}, e)

	e, err = New("csv", false)
	require.NoError(t, err)
	assert.IsType(t, &CSVExporter{}, e)

	_, err = New("xml", false)
	assert.Error(t, err)
}
