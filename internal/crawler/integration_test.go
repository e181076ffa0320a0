package crawler_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rentware/catalog-crawler/internal/crawler"
	"github.com/rentware/catalog-crawler/internal/extract"
	collyfetcher "github.com/rentware/catalog-crawler/internal/fetcher/colly"
	"github.com/rentware/catalog-crawler/internal/preflight"
	"github.com/rentware/catalog-crawler/internal/sink"
)

type fixedClock struct {
	ts time.Time
}

func (c fixedClock) Now() time.Time {
	return c.ts
}

const listingHTML = `<!doctype html>
<html><body>
  <a class="produkt-vorschau" href="/produkt/minibagger">Minibagger</a>
  <a class="produkt-vorschau" href="/produkt/ruettelplatte">R&uuml;ttelplatte</a>
</body></html>`

func detailHTML(base, slug, article, name, price string) string {
	return fmt.Sprintf(`<!doctype html>
<html>
<head><link rel="canonical" href="%s/produkt/%s"/></head>
<body>
  <div itemscope itemtype="https://schema.org/Product">
    <span class="artikelnummer">Art.-Nr. %s</span>
    <h1 itemprop="name">%s</h1>
    <img itemprop="image" src="/bilder/%s.jpg"/>
    <span itemprop="price">%s</span>
    <p itemprop="description">Beschreibung %s</p>
    <dl class="technische-daten">
      <dt>Gewicht</dt><dd>1,8 t</dd>
      <dt>Antrieb</dt><dd>Diesel</dd>
    </dl>
  </div>
</body></html>`, base, slug, article, name, slug, price, name)
}

// newCatalogServer serves a two-product catalog: a listing page under /
// and one detail page per product.
func newCatalogServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, listingHTML)
	})
	mux.HandleFunc("/produkt/minibagger", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, detailHTML(srv.URL, "minibagger", "1001", "Minibagger", "49,99"))
	})
	mux.HandleFunc("/produkt/ruettelplatte", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, detailHTML(srv.URL, "ruettelplatte", "2002", "Ruettelplatte", "15,50"))
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newEngineFor(t *testing.T, srv *httptest.Server, outDir string) (*crawler.Engine, *sink.CSVSink) {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	fetcher, err := collyfetcher.New(collyfetcher.Config{
		Host:           u.Hostname(),
		UserAgent:      "catalog-crawler-test",
		Concurrency:    2,
		RequestTimeout: 5 * time.Second,
	}, nil)
	require.NoError(t, err)

	clock := fixedClock{ts: time.Date(2024, 3, 9, 14, 30, 5, 0, time.UTC)}
	csvSink := sink.New(outDir, clock, nil)

	engine := crawler.NewEngine(crawler.Config{
		Host:           u.Host,
		Scheme:         "http",
		StartPath:      "/",
		ConnectTimeout: 2 * time.Second,
		OutputDir:      outDir,
		Concurrency:    2,
	}, fetcher, extract.New(), csvSink, preflight.NewDialer(nil), nil, clock, nil)

	return engine, csvSink
}

// decodeRow splits one output line back into its fields by reading
// consecutive JSON strings, so embedded delimiters cannot confuse it.
func decodeRow(t *testing.T, line string) []string {
	t.Helper()
	var fields []string
	rest := line
	for rest != "" {
		dec := json.NewDecoder(strings.NewReader(rest))
		var field string
		require.NoError(t, dec.Decode(&field))
		fields = append(fields, field)
		rest = strings.TrimPrefix(rest[dec.InputOffset():], sink.Delimiter)
	}
	return fields
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	rows := make([][]string, 0, len(lines))
	for _, line := range lines {
		rows = append(rows, decodeRow(t, line))
	}
	return rows
}

func TestCrawlCatalogEndToEnd(t *testing.T) {
	srv := newCatalogServer(t)
	outDir := t.TempDir()

	engine, csvSink := newEngineFor(t, srv, outDir)
	defer csvSink.Close()

	require.NoError(t, engine.Run(context.Background()))
	require.NoError(t, csvSink.Close())

	require.Equal(t, filepath.Join(outDir, "products_20240309T143005.csv"), csvSink.Path())
	rows := readRows(t, csvSink.Path())
	require.Len(t, rows, 3)
	require.Equal(t, sink.Header, rows[0])

	byArticle := map[string][]string{}
	for _, row := range rows[1:] {
		require.Len(t, row, len(sink.Header))
		byArticle[row[0]] = row
	}

	mini, ok := byArticle["1001"]
	require.True(t, ok, "minibagger row missing")
	require.Equal(t, "Minibagger", mini[1])
	require.Equal(t, "/bilder/minibagger.jpg", mini[2])
	require.Equal(t, "49.99", mini[3])
	require.Equal(t, "Beschreibung Minibagger", mini[4])
	require.JSONEq(t, `{"Gewicht":"1,8 t","Antrieb":"Diesel"}`, mini[5])
	require.Equal(t, srv.URL+"/produkt/minibagger", mini[6])

	ruettel, ok := byArticle["2002"]
	require.True(t, ok, "ruettelplatte row missing")
	require.Equal(t, "15.5", ruettel[3])
}

func TestCrawlAbortsOnBrokenDetailPage(t *testing.T) {
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `<html><body>
  <a class="produkt-vorschau" href="/produkt/minibagger">Minibagger</a>
  <a class="produkt-vorschau" href="/produkt/kaputt">Kaputt</a>
</body></html>`)
	})
	mux.HandleFunc("/produkt/minibagger", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, detailHTML(srv.URL, "minibagger", "1001", "Minibagger", "49,99"))
	})
	// /produkt/kaputt has no handler and serves 404.
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	outDir := t.TempDir()
	engine, csvSink := newEngineFor(t, srv, outDir)
	defer csvSink.Close()

	// Concurrency 2 races the broken fetch against the good one, so
	// only the error outcome is deterministic here.
	err := engine.Run(context.Background())
	kind, ok := crawler.KindOf(err)
	require.True(t, ok)
	require.Equal(t, crawler.KindFetch, kind)
	require.ErrorContains(t, err, "/produkt/kaputt")

	// Rows written before the abort are retained; the file itself
	// always exists with its header once Init succeeded.
	rows := readRows(t, csvSink.Path())
	require.NotEmpty(t, rows)
	require.Equal(t, sink.Header, rows[0])
}

func TestCrawlUnreachableHost(t *testing.T) {
	t.Parallel()

	outDir := t.TempDir()
	fetcher, err := collyfetcher.New(collyfetcher.Config{Host: "127.0.0.1"}, nil)
	require.NoError(t, err)
	csvSink := sink.New(outDir, nil, nil)

	engine := crawler.NewEngine(crawler.Config{
		// Reserved TEST-NET-1 address; connect attempts time out.
		Host:           "192.0.2.1:443",
		Scheme:         "https",
		ConnectTimeout: 200 * time.Millisecond,
		OutputDir:      outDir,
	}, fetcher, extract.New(), csvSink, preflight.NewDialer(nil), nil, nil, nil)

	err = engine.Run(context.Background())
	kind, ok := crawler.KindOf(err)
	require.True(t, ok)
	require.Equal(t, crawler.KindConnectivity, kind)

	// Preflight failed, so no output file was created.
	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	require.Empty(t, entries)
}
