package urlnorm

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultAllowedDomains are the crawl domains used when none are configured.
var DefaultAllowedDomains = []string{
	"ics.uci.edu",
	"cs.uci.edu",
	"informatics.uci.edu",
	"stats.uci.edu",
}

// DefaultTrapSegments are path segments that lead into crawler traps.
var DefaultTrapSegments = []string{
	"calendar",
	"events",
	"login",
	"wp-login.php",
	"upload",
	"uploads",
	"ical",
}

// disallowedExtension matches path suffixes that never hold crawlable HTML.
var disallowedExtension = regexp.MustCompile(`\.(css|js|bmp|gif|jpe?g|ico` +
	`|png|tiff?|mid|mp2|mp3|mp4` +
	`|wav|avi|mov|mpeg|ram|m4v|mkv|ogg|ogv|pdf` +
	`|ps|eps|tex|ppt|pptx|doc|docx|xls|xlsx|names` +
	`|data|dat|exe|bz2|tar|msi|bin|7z|psd|dmg|iso` +
	`|epub|dll|cnf|tgz|sha1` +
	`|thmx|mso|arff|rtf|jar|csv` +
	`|rm|smil|wmv|swf|wma|zip|rar|gz)$`)

// maxSegmentRepeats is how often one path segment may occur before the path counts as a trap.
const maxSegmentRepeats = 2

// ScopeConfig configures a Canonicalizer.
type ScopeConfig struct {
	AllowedDomains  []string
	TrapSegments    []string
	ExcludePatterns []string // regular expressions matched against the canonical URL
}

// Canonicalizer computes canonical forms and applies the scope filter.
// It holds only immutable configuration and is safe for concurrent use.
type Canonicalizer struct {
	domains  []string
	traps    map[string]struct{}
	excludes []*regexp.Regexp
}

// NewCanonicalizer builds a Canonicalizer, compiling the exclude patterns.
func NewCanonicalizer(cfg ScopeConfig) (*Canonicalizer, error) {
	domains := cfg.AllowedDomains
	if len(domains) == 0 {
		domains = DefaultAllowedDomains
	}

	c := &Canonicalizer{traps: make(map[string]struct{})}
	for _, d := range domains {
		d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), ".")
		if d != "" {
			c.domains = append(c.domains, d)
		}
	}

	segments := cfg.TrapSegments
	if segments == nil {
		segments = DefaultTrapSegments
	}
	for _, s := range segments {
		if s = strings.ToLower(strings.Trim(s, "/ ")); s != "" {
			c.traps[s] = struct{}{}
		}
	}

	for _, pattern := range cfg.ExcludePatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
		c.excludes = append(c.excludes, re)
	}

	return c, nil
}

// Canonicalize returns the canonical URL for raw, or a *RejectError explaining why it is not crawlable.
// Scope, extension and trap checks run on the canonical form.
func (c *Canonicalizer) Canonicalize(raw string) (CanonicalURL, error) {
	cu, err := Normalize(raw)
	if err != nil {
		return CanonicalURL{}, err
	}

	if !c.InScope(cu.Hostname()) {
		return CanonicalURL{}, Reject(raw, OutOfScope)
	}

	lowerPath := strings.ToLower(cu.Path)
	if disallowedExtension.MatchString(lowerPath) {
		return CanonicalURL{}, Reject(raw, DisallowedExtension)
	}

	if c.isTrap(lowerPath) {
		return CanonicalURL{}, Reject(raw, TrapPattern)
	}

	s := cu.String()
	for _, re := range c.excludes {
		if re.MatchString(s) {
			return CanonicalURL{}, Reject(raw, TrapPattern)
		}
	}

	return cu, nil
}

// InScope reports whether host equals, or is a subdomain of, an allowed domain.
func (c *Canonicalizer) InScope(host string) bool {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	for _, d := range c.domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func (c *Canonicalizer) isTrap(lowerPath string) bool {
	seen := make(map[string]int)
	for _, seg := range strings.Split(lowerPath, "/") {
		if seg == "" {
			continue
		}
		if _, ok := c.traps[seg]; ok {
			return true
		}
		seen[seg]++
		if seen[seg] > maxSegmentRepeats {
			return true
		}
	}
	return false
}
