package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestLogObserver(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	b := newMemBackend(30)
	d := newTestDownloader(t, b, Config{PartSize: 10, Logger: logger})

	if _, err := d.Get(context.Background(), "blob", Full()); err != nil {
		t.Fatalf("Get: %v", err)
	}

	var started, completed, finished int
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("bad log line %q: %v", line, err)
		}
		switch rec["msg"] {
		case "download started":
			started++
			if rec["parts"] != float64(3) {
				t.Errorf("parts = %v", rec["parts"])
			}
		case "part completed":
			completed++
		case "download finished":
			finished++
			if rec["state"] != "completed" {
				t.Errorf("state = %v", rec["state"])
			}
		}
	}
	if started != 1 || completed != 3 || finished != 1 {
		t.Errorf("started %d, completed %d, finished %d", started, completed, finished)
	}
}

func TestMultiObserver(t *testing.T) {
	if _, ok := MultiObserver().(NopObserver); !ok {
		t.Error("MultiObserver() is not a NopObserver")
	}

	a, b := &recordingObserver{}, &recordingObserver{}
	if MultiObserver(a) != Observer(a) {
		t.Error("single observer was wrapped")
	}

	m := MultiObserver(a, b)
	m.PartCompleted(PartEvent{})
	m.BufferFull("s", 1)
	for _, o := range []*recordingObserver{a, b} {
		if o.completed != 1 || o.bufferFull != 1 {
			t.Errorf("observer got completed=%d bufferFull=%d", o.completed, o.bufferFull)
		}
	}
}
