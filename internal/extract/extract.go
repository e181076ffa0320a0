// Package extract implements the page-shape classification and field
// extraction rules for catalog pages. Extraction is pure: no I/O,
// deterministic for the same document, and it never fails; absent
// elements resolve to empty field values.
package extract

import (
	"bytes"
	"math"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/rentware/catalog-crawler/internal/crawler"
)

// Selectors for the two page shapes. A document may match both, one,
// or neither; listing and detail classification are independent.
const (
	listingRowSelector   = "a.produkt-vorschau"
	productBlockSelector = "[itemtype$='schema.org/Product']"

	canonicalSelector   = "link[rel='canonical']"
	nameSelector        = "[itemprop='name']"
	imageSelector       = "img[itemprop='image']"
	priceSelector       = "[itemprop='price']"
	descriptionSelector = "[itemprop='description']"
	articleSelector     = ".artikelnummer"
	detailListSelector  = "dl.technische-daten"

	articleNumberPrefix = "Art.-Nr."
)

// Extractor parses fetched catalog pages.
type Extractor struct{}

// New returns an Extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extract classifies the page and pulls discovered URLs and/or a
// product record out of it. A document that goquery cannot parse (or
// an empty body) yields an empty outcome, never an error.
func (e *Extractor) Extract(page crawler.Page) crawler.ExtractionOutcome {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return crawler.ExtractionOutcome{}
	}

	outcome := crawler.ExtractionOutcome{
		DiscoveredURLs: listingLinks(doc),
	}

	if block := doc.Find(productBlockSelector).First(); block.Length() > 0 {
		outcome.Record = productRecord(doc, block)
	}
	return outcome
}

// listingLinks reads the link attribute of every listing row, in
// document order.
func listingLinks(doc *goquery.Document) []string {
	var urls []string
	doc.Find(listingRowSelector).Each(func(_ int, row *goquery.Selection) {
		if href, ok := row.Attr("href"); ok && strings.TrimSpace(href) != "" {
			urls = append(urls, strings.TrimSpace(href))
		}
	})
	return urls
}

// productRecord reads the seven record fields, scoped to the product
// block except for the canonical link and the product image, which are
// document-scoped.
func productRecord(doc *goquery.Document, block *goquery.Selection) *crawler.ProductRecord {
	link, _ := doc.Find(canonicalSelector).First().Attr("href")
	image, _ := doc.Find(imageSelector).First().Attr("src")

	return &crawler.ProductRecord{
		ArticleNumber:    articleNumber(block),
		Name:             text(block, nameSelector),
		ImageURL:         strings.TrimSpace(image),
		PricePerDay:      ParsePrice(text(block, priceSelector)),
		Description:      text(block, descriptionSelector),
		TechnicalDetails: technicalDetails(block),
		Link:             strings.TrimSpace(link),
	}
}

func text(scope *goquery.Selection, selector string) string {
	return strings.TrimSpace(scope.Find(selector).First().Text())
}

func articleNumber(block *goquery.Selection) string {
	raw := text(block, articleSelector)
	raw = strings.TrimPrefix(raw, articleNumberPrefix)
	return strings.TrimSpace(raw)
}

// ParsePrice converts price text with a comma decimal separator into a
// float. Malformed or empty text yields NaN rather than an error.
func ParsePrice(raw string) float64 {
	normalized := strings.ReplaceAll(strings.TrimSpace(raw), ",", ".")
	price, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return math.NaN()
	}
	return price
}

// technicalDetails folds the (dt, dd) pairs of the details list into a
// map. A key appearing twice keeps the later value.
func technicalDetails(block *goquery.Selection) map[string]string {
	details := make(map[string]string)
	list := block.Find(detailListSelector).First()
	keys := list.Find("dt")
	values := list.Find("dd")
	keys.Each(func(i int, key *goquery.Selection) {
		value := ""
		if i < values.Length() {
			value = strings.TrimSpace(values.Eq(i).Text())
		}
		details[strings.TrimSpace(key.Text())] = value
	})
	return details
}
