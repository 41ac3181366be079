// Command journal_tail follows the upsert journal stream of a running coinbook server
// and prints one line per journaled upsert. It reconnects with Last-Event-ID so no
// entry is printed twice.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/coinbook/internal/storage/journal"
)

func main() {
	var (
		targetURL string
		from      uint64
		retry     time.Duration
	)

	flag.StringVar(&targetURL, "url", "http://localhost:3333/journal/stream", "journal SSE endpoint URL")
	flag.Uint64Var(&from, "from", 0, "resume after this journal index")
	flag.DurationVar(&retry, "retry", 3*time.Second, "reconnect delay")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := &http.Client{
		Transport: &http.Transport{
			DisableCompression: true,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
		},
		Timeout: 0, // streaming
	}

	printEntry := func(index uint64, e journal.Entry) {
		action := "updated"
		if e.Created {
			action = "created"
		}
		fmt.Printf("%d\t%s\t%s\t%s\t%s\n", index, e.Time.Format(time.RFC3339), action, e.Key.String(), e.URL)
	}

	last := from
	for {
		var err error
		last, err = follow(ctx, client, targetURL, last, printEntry)
		if ctx.Err() != nil {
			return
		}
		logger.Warn("journal stream interrupted", zap.Uint64("last_index", last), zap.Error(err))

		select {
		case <-ctx.Done():
			return
		case <-time.After(retry):
		}
	}
}

// follow reads the stream until it ends and returns the last index handled.
func follow(ctx context.Context, client *http.Client, targetURL string, after uint64,
	handle func(index uint64, e journal.Entry)) (uint64, error) {

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return after, errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "text/event-stream")
	if after > 0 {
		req.Header.Set("Last-Event-ID", strconv.FormatUint(after, 10))
	}

	resp, err := client.Do(req)
	if err != nil {
		return after, errors.Wrap(err, "connect")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return after, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return readEvents(resp.Body, after, handle)
}

// readEvents parses upsert events. Heartbeat comments and unknown events are skipped.
func readEvents(r io.Reader, after uint64, handle func(index uint64, e journal.Entry)) (uint64, error) {
	reader := bufio.NewReader(r)
	var (
		id    uint64
		event string
		data  string
	)
	last := after

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return last, err
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if event == "upsert" && id > last {
				var e journal.Entry
				if err := json.Unmarshal([]byte(data), &e); err != nil {
					return last, errors.Wrapf(err, "decode entry %d", id)
				}
				handle(id, e)
				last = id
			}
			id, event, data = 0, "", ""
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "id: "):
			id, _ = strconv.ParseUint(strings.TrimPrefix(line, "id: "), 10, 64)
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}
