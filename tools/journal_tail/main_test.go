package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/coinbook/internal/storage/journal"
)

func TestReadEvents(t *testing.T) {
	stream := strings.Join([]string{
		": ping",
		"",
		"id: 1",
		"event: upsert",
		`data: {"key":{"asset":"BTC","date":"2025-09-25","account":"main"},"record_id":"p1","created":true}`,
		"",
		"id: 2",
		"event: other",
		"data: {}",
		"",
		"id: 3",
		"event: upsert",
		`data: {"key":{"asset":"ETH","date":"2025-09-25","account":"trade"},"record_id":"p3","created":false}`,
		"",
	}, "\n") + "\n"

	var got []string
	last, err := readEvents(strings.NewReader(stream), 0, func(index uint64, e journal.Entry) {
		got = append(got, e.Key.String())
	})
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, uint64(3), last)
	assert.Equal(t, []string{"BTC/2025-09-25/main", "ETH/2025-09-25/trade"}, got)
}

func TestReadEventsSkipsAlreadySeen(t *testing.T) {
	stream := "id: 1\nevent: upsert\ndata: {\"record_id\":\"p1\"}\n\n"

	called := false
	last, _ := readEvents(strings.NewReader(stream), 5, func(uint64, journal.Entry) { called = true })
	assert.False(t, called)
	assert.Equal(t, uint64(5), last)
}

func TestFollowSendsLastEventID(t *testing.T) {
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("Last-Event-ID")
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "id: 8\nevent: upsert\ndata: {\"record_id\":\"p8\"}\n\n")
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var ids []uint64
	last, err := follow(ctx, srv.Client(), srv.URL, 7, func(index uint64, _ journal.Entry) {
		ids = append(ids, index)
	})
	require.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "7", gotHeader)
	assert.Equal(t, uint64(8), last)
	assert.Equal(t, []uint64{8}, ids)
}

func TestFollowRejectsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	last, err := follow(context.Background(), srv.Client(), srv.URL, 4, func(uint64, journal.Entry) {})
	require.Error(t, err)
	assert.Equal(t, uint64(4), last)
}
