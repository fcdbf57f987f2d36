package parser

import (
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	htmlContent := `
<!DOCTYPE html>
<html>
<head>
	<title>Test Page Title</title>
	<meta name="robots" content="index,follow">
	<style>body { color: red; }</style>
	<script>var tracking = "ignored";</script>
</head>
<body>
	<h1>Informatics   Department</h1>
	<p>Some
	content</p>
	<a href="/relative-link">Relative Link</a>
	<a href="https://ics.uci.edu/absolute">Absolute</a>
	<a href="//a">Protocol relative</a>
	<a href="#anchor">Anchor Link</a>
	<a href="mailto:someone@uci.edu">Mail</a>
	<a>No href</a>
	<noscript>enable javascript</noscript>
</body>
</html>
`

	page, err := New().Parse([]byte(htmlContent))
	if err != nil {
		t.Fatalf("Failed to parse HTML: %v", err)
	}

	if page.Title != "Test Page Title" {
		t.Errorf("Expected title 'Test Page Title', got '%s'", page.Title)
	}
	if page.MetaRobots != "index,follow" {
		t.Errorf("Expected robots 'index,follow', got '%s'", page.MetaRobots)
	}

	expectedLinks := []string{
		"/relative-link",
		"https://ics.uci.edu/absolute",
		"//a",
		"mailto:someone@uci.edu",
	}
	if !reflect.DeepEqual(page.Links, expectedLinks) {
		t.Errorf("Expected links %v, got %v", expectedLinks, page.Links)
	}

	expectedText := "Test Page Title Informatics Department Some content Relative Link Absolute Protocol relative Anchor Link Mail No href"
	if page.Text != expectedText {
		t.Errorf("Expected text %q, got %q", expectedText, page.Text)
	}
}

func TestParseMetaRobots(t *testing.T) {
	tests := []struct {
		content  string
		noFollow bool
		noIndex  bool
	}{
		{"", false, false},
		{"index,follow", false, false},
		{"NOINDEX, nofollow", true, true},
		{"noindex", false, true},
		{"none", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.content, func(t *testing.T) {
			page, err := New().Parse([]byte(`<html><head><meta name="Robots" content="` + tt.content + `"></head></html>`))
			if err != nil {
				t.Fatalf("Failed to parse HTML: %v", err)
			}
			if page.NoFollow() != tt.noFollow {
				t.Errorf("NoFollow() = %v, want %v", page.NoFollow(), tt.noFollow)
			}
			if page.NoIndex() != tt.noIndex {
				t.Errorf("NoIndex() = %v, want %v", page.NoIndex(), tt.noIndex)
			}
		})
	}
}

func TestParseMalformedHTML(t *testing.T) {
	page, err := New().Parse([]byte(`<html><body><p>unclosed <a href="/x">link<div>text`))
	if err != nil {
		t.Fatalf("html parser should tolerate malformed markup: %v", err)
	}
	if len(page.Links) != 1 || page.Links[0] != "/x" {
		t.Errorf("Expected one link /x, got %v", page.Links)
	}
}

func TestParseEmpty(t *testing.T) {
	page, err := New().Parse(nil)
	if err != nil {
		t.Fatalf("Failed to parse empty body: %v", err)
	}
	if page.Text != "" || len(page.Links) != 0 {
		t.Errorf("Expected empty page, got %+v", page)
	}
}
