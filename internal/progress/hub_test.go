package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// captureSink records everything it consumes.
type captureSink struct {
	mu     sync.Mutex
	events []Event
	closed bool

	consumeErr error
}

func (s *captureSink) Consume(_ context.Context, evt Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.consumeErr != nil {
		return s.consumeErr
	}
	s.events = append(s.events, evt)
	return nil
}

func (s *captureSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *captureSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func (s *captureSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func validEvent(stage Stage) Event {
	evt := Event{
		RunID: uuid.New(),
		TS:    time.Now().UTC(),
		Stage: stage,
		Site:  "www.rentware.example",
	}
	switch stage {
	case StagePageFetched, StageRecordWritten, StageURLsDiscovered:
		evt.URL = "https://www.rentware.example/produkt/1"
	}
	return evt
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, validEvent(StageCrawlStart).Validate())
	require.NoError(t, validEvent(StagePageFetched).Validate())

	noRun := validEvent(StageCrawlStart)
	noRun.RunID = uuid.Nil
	require.Error(t, noRun.Validate())

	noTS := validEvent(StageCrawlStart)
	noTS.TS = time.Time{}
	require.Error(t, noTS.Validate())

	noURL := validEvent(StagePageFetched)
	noURL.URL = ""
	require.Error(t, noURL.Validate())

	unknown := validEvent(StageCrawlStart)
	unknown.Stage = Stage("WAT")
	require.Error(t, unknown.Validate())

	negDur := validEvent(StageCrawlDone)
	negDur.Dur = -time.Second
	require.Error(t, negDur.Validate())
}

func TestHubDeliversInOrderToAllSinks(t *testing.T) {
	t.Parallel()

	first := &captureSink{}
	second := &captureSink{}
	hub := NewHub(Config{}, first, second)

	stages := []Stage{
		StageCrawlStart,
		StagePageFetched,
		StageURLsDiscovered,
		StageRecordWritten,
		StageCrawlDone,
	}
	for _, stage := range stages {
		hub.Emit(validEvent(stage))
	}
	require.NoError(t, hub.Close(context.Background()))

	for _, sink := range []*captureSink{first, second} {
		events := sink.snapshot()
		require.Len(t, events, len(stages))
		for i, stage := range stages {
			require.Equal(t, stage, events[i].Stage)
		}
		require.True(t, sink.isClosed())
	}
}

func TestHubDropsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{}, sink)

	hub.Emit(Event{Stage: StageCrawlStart}) // no run id, no ts
	hub.Emit(validEvent(StageCrawlDone))
	require.NoError(t, hub.Close(context.Background()))

	events := sink.snapshot()
	require.Len(t, events, 1)
	require.Equal(t, StageCrawlDone, events[0].Stage)
}

func TestHubSinkErrorDoesNotStopDelivery(t *testing.T) {
	t.Parallel()

	failing := &captureSink{consumeErr: errors.New("kaputt")}
	healthy := &captureSink{}
	hub := NewHub(Config{}, failing, healthy)

	hub.Emit(validEvent(StageCrawlStart))
	hub.Emit(validEvent(StageCrawlDone))
	require.NoError(t, hub.Close(context.Background()))

	require.Len(t, healthy.snapshot(), 2)
}

func TestHubEmitAfterCloseIsNoop(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{}, sink)
	require.NoError(t, hub.Close(context.Background()))

	hub.Emit(validEvent(StageCrawlStart))
	require.Empty(t, sink.snapshot())
}

func TestHubCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	hub := NewHub(Config{}, &captureSink{})
	require.NoError(t, hub.Close(context.Background()))
	require.NoError(t, hub.Close(context.Background()))
}

func TestNilHubIsSafe(t *testing.T) {
	t.Parallel()

	var hub *Hub
	hub.Emit(validEvent(StageCrawlStart))
	require.NoError(t, hub.Close(context.Background()))
}

func TestHubEmitDuringCloseDoesNotPanic(t *testing.T) {
	t.Parallel()

	for i := 0; i < 50; i++ {
		hub := NewHub(Config{BufferSize: 4}, &captureSink{})

		start := make(chan struct{})
		var wg sync.WaitGroup
		var closeErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < 100; j++ {
				hub.Emit(validEvent(StageCrawlStart))
			}
		}()
		go func() {
			defer wg.Done()
			<-start
			closeErr = hub.Close(context.Background())
		}()
		close(start)
		wg.Wait()
		require.NoError(t, closeErr)
	}
}

func TestHubEmitNeverBlocksWhenFull(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	slow := &blockingSink{release: block}
	hub := NewHub(Config{BufferSize: 1}, slow)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			hub.Emit(validEvent(StagePageFetched))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked the caller")
	}

	close(block)
	require.NoError(t, hub.Close(context.Background()))
}

type blockingSink struct {
	release <-chan struct{}
}

func (s *blockingSink) Consume(context.Context, Event) error {
	<-s.release
	return nil
}

func (s *blockingSink) Close(context.Context) error {
	return nil
}
