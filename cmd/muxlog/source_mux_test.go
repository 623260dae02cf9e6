package main

import (
	"context"
	"testing"
	"time"

	"github.com/tinytelemetry/muxlog/internal/model"
)

type fakeSource struct {
	name    string
	records chan model.SourceRecord
	stopped chan struct{}
}

func newFakeSource(name string, buffer int) *fakeSource {
	return &fakeSource{
		name:    name,
		records: make(chan model.SourceRecord, buffer),
		stopped: make(chan struct{}),
	}
}

func (s *fakeSource) Records() <-chan model.SourceRecord { return s.records }
func (s *fakeSource) Name() string                       { return s.name }

func (s *fakeSource) Stop() {
	select {
	case <-s.stopped:
		return
	default:
		close(s.stopped)
		close(s.records)
	}
}

func (s *fakeSource) send(record string) {
	s.records <- model.SourceRecord{Source: s.name, Record: []byte(record)}
}

func TestSourceMultiplexer_ForwardsFromAllSources(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := newFakeSource("a", 2)
	b := newFakeSource("b", 2)

	mux := NewSourceMultiplexer(ctx, []NamedSource{a, b}, 16)
	mux.Start()
	defer mux.Stop()

	a.send("1;I;{\"alpha\":1}")
	b.send("")
	b.send("2;I;{\"beta\":2}")
	a.Stop()
	b.Stop()

	got := map[string]string{}
	timeout := time.After(2 * time.Second)
	for {
		select {
		case rec, ok := <-mux.Records():
			if !ok {
				if got["a"] != "1;I;{\"alpha\":1}" || got["b"] != "2;I;{\"beta\":2}" {
					t.Fatalf("missing expected records: %+v", got)
				}
				return
			}
			if len(rec.Record) == 0 {
				t.Fatal("empty record should be skipped")
			}
			got[rec.Source] = string(rec.Record)
		case <-timeout:
			t.Fatalf("timed out waiting for multiplexed records: %+v", got)
		}
	}
}

func TestSourceMultiplexer_StopInvokesSourceStop(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := newFakeSource("x", 1)
	mux := NewSourceMultiplexer(ctx, []NamedSource{src}, 8)
	mux.Start()

	mux.Stop()

	select {
	case <-src.stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("expected source Stop() to be called")
	}
}

func TestSourceMultiplexer_NoSourcesClosesImmediately(t *testing.T) {
	t.Parallel()

	mux := NewSourceMultiplexer(context.Background(), nil, 0)
	mux.Start()
	defer mux.Stop()

	if mux.HasSources() {
		t.Fatal("expected no sources")
	}
	if _, ok := <-mux.Records(); ok {
		t.Fatal("expected records channel to be closed")
	}
}

func TestSourceMultiplexer_SourceNames(t *testing.T) {
	t.Parallel()

	mux := NewSourceMultiplexer(context.Background(), []NamedSource{newFakeSource("tcp", 1), newFakeSource("file", 1)}, 1)
	names := mux.SourceNames()
	if len(names) != 2 || names[0] != "tcp" || names[1] != "file" {
		t.Fatalf("SourceNames() = %v", names)
	}
}
