package crawler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFrontierPreservesOrder(t *testing.T) {
	t.Parallel()

	f := NewFrontier()
	for _, u := range []string{"https://example.com/a", "https://example.com/b", "https://example.com/c"} {
		ok, err := f.Add(u)
		require.NoError(t, err)
		require.True(t, ok)
	}

	for _, want := range []string{"https://example.com/a", "https://example.com/b", "https://example.com/c"} {
		got, ok := f.Next()
		require.True(t, ok)
		require.Equal(t, want, got)
	}
}

func TestFrontierDeduplicates(t *testing.T) {
	t.Parallel()

	f := NewFrontier()
	ok, err := f.Add("https://example.com/produkt/1")
	require.NoError(t, err)
	require.True(t, ok)

	// Same page under different spellings must not re-enter the queue.
	for _, dup := range []string{
		"https://example.com/produkt/1",
		"https://EXAMPLE.com/produkt/1",
		"https://example.com:443/produkt/1",
		"https://example.com/produkt/1#details",
	} {
		ok, err := f.Add(dup)
		require.NoError(t, err)
		require.False(t, ok, "expected %q to be dropped", dup)
	}

	require.Equal(t, 1, f.Len())
}

func TestFrontierRejectsMalformedURL(t *testing.T) {
	t.Parallel()

	f := NewFrontier()
	ok, err := f.Add("https://exa mple.com/%zz")
	require.Error(t, err)
	require.False(t, ok)
	require.Equal(t, 0, f.Len())
}

func TestFrontierClosesWhenDrained(t *testing.T) {
	t.Parallel()

	f := NewFrontier()
	_, err := f.Add("https://example.com/")
	require.NoError(t, err)

	u, ok := f.Next()
	require.True(t, ok)
	require.Equal(t, "https://example.com/", u)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, ok := f.Next()
		require.False(t, ok)
	}()

	// Completing the only outstanding unit of work closes the frontier
	// and releases the blocked consumer.
	f.Done()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("frontier did not close after the last unit of work")
	}
}

func TestFrontierCloseAbortsBlockedNext(t *testing.T) {
	t.Parallel()

	f := NewFrontier()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, ok := f.Next()
		require.False(t, ok)
	}()

	f.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not release blocked Next")
	}

	ok, err := f.Add("https://example.com/late")
	require.NoError(t, err)
	require.False(t, ok, "closed frontier must not accept URLs")
}

func TestFrontierConcurrentAdds(t *testing.T) {
	t.Parallel()

	f := NewFrontier()
	var wg sync.WaitGroup
	urls := []string{
		"https://example.com/a",
		"https://example.com/b",
		"https://example.com/c",
		"https://example.com/d",
	}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, u := range urls {
				_, _ = f.Add(u)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, len(urls), f.Len())
}
