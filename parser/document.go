package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Document is a parsed HTML page exposing XPath and CSS queries.
type Document struct {
	root *html.Node
	dom  *goquery.Document
}

// Parse builds a Document from raw markup.
func Parse(body []byte) (*Document, error) {
	root, err := htmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{
		root: root,
		dom:  goquery.NewDocumentFromNode(root),
	}, nil
}

// Find returns the first node matching an XPath expression, or nil.
func (d *Document) Find(expr string) (*html.Node, error) {
	return d.FindIn(d.root, expr)
}

// FindIn evaluates an XPath expression relative to node.
func (d *Document) FindIn(node *html.Node, expr string) (*html.Node, error) {
	n, err := htmlquery.Query(node, expr)
	if err != nil {
		return nil, fmt.Errorf("xpath %q: %w", expr, err)
	}
	return n, nil
}

// FindAll returns every node matching an XPath expression, in document order.
func (d *Document) FindAll(expr string) ([]*html.Node, error) {
	nodes, err := htmlquery.QueryAll(d.root, expr)
	if err != nil {
		return nil, fmt.Errorf("xpath %q: %w", expr, err)
	}
	return nodes, nil
}

// Select runs a CSS selector over the whole document.
func (d *Document) Select(selector string) *goquery.Selection {
	return d.dom.Find(selector)
}

// FindMatching returns the elements matching selector for which pred holds.
func (d *Document) FindMatching(selector string, pred func(*goquery.Selection) bool) *goquery.Selection {
	return d.Select(selector).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return pred(s)
	})
}

// Attr returns the attribute value of node and whether it was present.
func Attr(node *html.Node, name string) (string, bool) {
	if node == nil || !htmlquery.ExistsAttr(node, name) {
		return "", false
	}
	return htmlquery.SelectAttr(node, name), true
}

// Text returns the inner text of node with whitespace runs collapsed.
func Text(node *html.Node) string {
	if node == nil {
		return ""
	}
	return collapseSpace(htmlquery.InnerText(node))
}

// SelectionText is Text for goquery selections.
func SelectionText(s *goquery.Selection) string {
	if s == nil {
		return ""
	}
	return collapseSpace(s.Text())
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
