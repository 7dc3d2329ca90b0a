package parser

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/aluiziolira/go-shop-reviews/models"
)

const (
	reviewItemXPath  = "//div[contains(@class, 'review-item')]//div[contains(@class, 'wt-grid__item-xs-12 wt-grid__item-lg-10 listing-group wt-pl-xs-0 wt-pr-xs-0')]"
	productLinkXPath = ".//a[contains(@class, 'wt-display-block wt-text-link-no-underline')]"
)

// ListingExtraction is what one listing page yielded.
type ListingExtraction struct {
	References []models.ProductReference
	// Containers is the number of review item containers found.
	Containers int
	// Dropped counts containers without a usable product link.
	Dropped int
}

// ExtractReferences reads the product references of a listing page in document order.
// Relative hrefs are resolved against origin.
func ExtractReferences(doc *Document, origin string, page int) (ListingExtraction, error) {
	base, err := url.Parse(origin)
	if err != nil {
		return ListingExtraction{}, fmt.Errorf("parse origin: %w", err)
	}

	containers, err := doc.FindAll(reviewItemXPath)
	if err != nil {
		return ListingExtraction{}, err
	}

	out := ListingExtraction{
		References: make([]models.ProductReference, 0, len(containers)),
		Containers: len(containers),
	}
	for _, container := range containers {
		link, err := doc.FindIn(container, productLinkXPath)
		if err != nil {
			return ListingExtraction{}, err
		}
		href, _ := Attr(link, "href")
		productURL, ok := AbsoluteURL(base, href)
		if !ok {
			out.Dropped++
			continue
		}

		name, _ := Attr(link, "aria-label")
		name = strings.TrimSpace(name)
		if name == "" {
			name = models.UnknownProductName
		}

		out.References = append(out.References, models.ProductReference{
			ProductURL:  productURL,
			ProductName: name,
			Page:        page,
		})
	}
	return out, nil
}

// AbsoluteURL resolves href against base. Empty or malformed hrefs are rejected.
func AbsoluteURL(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if ref.IsAbs() {
		return ref.String(), true
	}
	if base == nil {
		return "", false
	}
	return base.ResolveReference(ref).String(), true
}
