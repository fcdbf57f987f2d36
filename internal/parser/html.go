// Package parser extracts outgoing links and visible text from HTML documents.
package parser

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// Page is what the crawler needs from a fetched document
type Page struct {
	Title      string
	MetaRobots string
	// Links holds raw href values in document order; resolution is the caller's job
	Links []string
	// Text is the visible text with whitespace collapsed
	Text string
}

// NoFollow reports whether the page asks crawlers not to follow its links.
func (p *Page) NoFollow() bool {
	return hasDirective(p.MetaRobots, "nofollow") || hasDirective(p.MetaRobots, "none")
}

// NoIndex reports whether the page asks not to be indexed.
func (p *Page) NoIndex() bool {
	return hasDirective(p.MetaRobots, "noindex") || hasDirective(p.MetaRobots, "none")
}

func hasDirective(content, directive string) bool {
	for _, d := range strings.Split(strings.ToLower(content), ",") {
		if strings.TrimSpace(d) == directive {
			return true
		}
	}
	return false
}

// skipped elements never contribute visible text
var skipped = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
}

// Parser turns HTML bytes into a Page. It is stateless and safe for concurrent use.
type Parser struct{}

// New returns a Parser
func New() *Parser {
	return &Parser{}
}

// Parse extracts the title, meta robots directives, anchor hrefs and visible text.
func (p *Parser) Parse(body []byte) (*Page, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	page := &Page{Links: []string{}}
	var text []string
	p.traverse(doc, page, &text)
	page.Text = strings.Join(text, " ")
	return page, nil
}

func (p *Parser) traverse(n *html.Node, page *Page, text *[]string) {
	switch n.Type {
	case html.TextNode:
		if s := strings.Join(strings.Fields(n.Data), " "); s != "" {
			*text = append(*text, s)
		}
		return
	case html.ElementNode:
		if skipped[n.Data] {
			return
		}
		switch n.Data {
		case "title":
			if page.Title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				page.Title = strings.TrimSpace(n.FirstChild.Data)
			}
		case "meta":
			parseMeta(n, page)
		case "a", "area":
			if href, ok := attr(n, "href"); ok {
				href = strings.TrimSpace(href)
				if href != "" && !strings.HasPrefix(href, "#") {
					page.Links = append(page.Links, href)
				}
			}
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		p.traverse(c, page, text)
	}
}

func parseMeta(n *html.Node, page *Page) {
	name, _ := attr(n, "name")
	if strings.ToLower(name) != "robots" {
		return
	}
	if content, ok := attr(n, "content"); ok {
		page.MetaRobots = content
	}
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}
