package parser

import (
	"net/url"
	"regexp"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-shop-reviews/models"
)

// Strategy extracts one field from a detail page. Strategies are pure.
type Strategy struct {
	Name    string
	Extract func(*Document) (string, bool)
}

// PriceStrategies are tried in order; the larger title style wins over the 03 style.
var PriceStrategies = []Strategy{
	{Name: "title-larger", Extract: cssText(`div[data-appears-component-name="price"] p.wt-text-title-larger`)},
	{Name: "title-03", Extract: cssText(`div[data-appears-component-name="price"] p.wt-text-title-03.wt-mr-xs-2`)},
}

// ImageStrategies locate the primary product image.
var ImageStrategies = []Strategy{
	{Name: "primary-image", Extract: xpathAttr(`//img[@data-index='0']`, "src")},
}

var pricePattern = regexp.MustCompile(`([A-Z]{1,3}\$?)\s*([\d,]+(?:\.\d{2})?)`)

// FirstMatch returns the value of the first strategy that yields one.
func FirstMatch(doc *Document, strategies []Strategy) (value, strategy string, ok bool) {
	for _, s := range strategies {
		if v, found := s.Extract(doc); found {
			return v, s.Name, true
		}
	}
	return "", "", false
}

// ParsePrice splits display text such as "CA$ 12.50" into currency and amount.
func ParsePrice(text string) (currency, amount string, ok bool) {
	m := pricePattern.FindStringSubmatch(text)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// DetailData is the raw extraction result of one product page.
type DetailData struct {
	PriceText   string
	Currency    *string
	PriceAmount *string
	ImageURL    *string
}

// Empty reports whether nothing could be extracted.
func (d DetailData) Empty() bool {
	return d.PriceText == "" && d.ImageURL == nil
}

// ExtractDetail applies the price and image strategies. pageURL resolves relative image sources.
func ExtractDetail(doc *Document, pageURL string) DetailData {
	var out DetailData

	if text, _, ok := FirstMatch(doc, PriceStrategies); ok {
		out.PriceText = text
		if currency, amount, ok := ParsePrice(text); ok {
			out.Currency = models.StringPtr(currency)
			out.PriceAmount = models.StringPtr(amount)
		}
	}

	if src, _, ok := FirstMatch(doc, ImageStrategies); ok {
		base, _ := url.Parse(pageURL)
		if abs, ok := AbsoluteURL(base, src); ok {
			out.ImageURL = models.StringPtr(abs)
		}
	}
	return out
}

func cssText(selector string) func(*Document) (string, bool) {
	return func(doc *Document) (string, bool) {
		match := doc.FindMatching(selector, func(s *goquery.Selection) bool {
			return SelectionText(s) != ""
		}).First()
		text := SelectionText(match)
		return text, text != ""
	}
}

func xpathAttr(expr, attr string) func(*Document) (string, bool) {
	return func(doc *Document) (string, bool) {
		node, err := doc.Find(expr)
		if err != nil || node == nil {
			return "", false
		}
		v, ok := Attr(node, attr)
		return v, ok && v != ""
	}
}
