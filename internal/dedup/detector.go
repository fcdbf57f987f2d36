// Package dedup detects exact and near-duplicate page content.
//
// Exact duplicates are found with a SHA-256 digest of the normalized text.
// Near duplicates are found by comparing a 64-bit SimHash signature against
// every signature retained so far.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/masahif/webcorpus/internal/text"
)

// Verdict is the outcome of a duplicate check.
type Verdict int

const (
	// Novel content has not been seen before
	Novel Verdict = iota
	// ExactDuplicate content normalizes to an already seen digest
	ExactDuplicate
	// NearDuplicate content has a SimHash signature above the similarity threshold
	NearDuplicate
)

func (v Verdict) String() string {
	switch v {
	case Novel:
		return "novel"
	case ExactDuplicate:
		return "exact_duplicate"
	case NearDuplicate:
		return "near_duplicate"
	default:
		return "unknown"
	}
}

const (
	// DefaultThreshold is the similarity above which two pages are near duplicates
	DefaultThreshold = 0.85
	// DefaultMinTokens is the content-word count below which pages are not fingerprinted
	DefaultMinTokens = 25
)

// Store persists content digests and signatures together with the URL that produced them.
type Store interface {
	LoadContentHashes() (map[string]string, error)
	SaveContentHash(hash, owner string) error
	LoadSignatures() ([]OwnedSignature, error)
	SaveSignature(sig Signature, owner string) error
}

// OwnedSignature is a retained signature and the canonical URL it was computed for.
type OwnedSignature struct {
	Signature Signature
	Owner     string
}

// Config configures a Detector.
type Config struct {
	Threshold float64
	MinTokens int
}

// Result describes a checked page.
type Result struct {
	Verdict   Verdict
	Hash      string
	Signature Signature
	// Tokens are all tokens of the page, stop words included.
	Tokens []string
	// Sparse is set for novel pages with fewer content words than the minimum.
	// Sparse pages are neither fingerprinted nor recorded in analytics.
	Sparse bool
}

// Detector owns the exact-hash set and the retained signatures.
// The hash set and the signature list have separate locks.
type Detector struct {
	threshold float64
	minTokens int
	store     Store

	hashMu sync.Mutex
	hashes map[string]string

	sigMu      sync.Mutex
	signatures []OwnedSignature
}

// New creates a detector and reloads persisted state from store.
// A nil store keeps everything in memory.
func New(cfg Config, store Store) (*Detector, error) {
	if cfg.Threshold <= 0 || cfg.Threshold > 1 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.MinTokens < 0 {
		cfg.MinTokens = DefaultMinTokens
	}

	d := &Detector{
		threshold: cfg.Threshold,
		minTokens: cfg.MinTokens,
		store:     store,
		hashes:    make(map[string]string),
	}

	if store == nil {
		return d, nil
	}

	hashes, err := store.LoadContentHashes()
	if err != nil {
		return nil, fmt.Errorf("failed to load content hashes: %w", err)
	}
	for h, owner := range hashes {
		d.hashes[h] = owner
	}

	sigs, err := store.LoadSignatures()
	if err != nil {
		return nil, fmt.Errorf("failed to load signatures: %w", err)
	}
	d.signatures = append(d.signatures, sigs...)

	return d, nil
}

// ContentHash returns the hex SHA-256 digest of the normalized text.
func ContentHash(s string) string {
	sum := sha256.Sum256([]byte(text.Normalize(s)))
	return hex.EncodeToString(sum[:])
}

// Check classifies the text of the page at owner and records it when novel.
// Fingerprints left by an earlier attempt at the same owner are not matches, so a page
// retried after a crash is classified as it was the first time.
// The returned error only reports persistence failures; the verdict is valid regardless.
func (d *Detector) Check(owner, pageText string) (Result, error) {
	res := Result{Hash: ContentHash(pageText)}

	exact, err := d.markHash(res.Hash, owner)
	if exact {
		res.Verdict = ExactDuplicate
		return res, nil
	}

	res.Tokens = text.Tokenize(pageText)
	if len(text.ContentWords(res.Tokens)) < d.minTokens {
		res.Sparse = true
		return res, err
	}

	res.Signature = SimHash(res.Tokens)
	near, sigErr := d.markSignature(res.Signature, owner)
	if near {
		res.Verdict = NearDuplicate
	}
	if err == nil {
		err = sigErr
	}
	return res, err
}

// markHash reports whether another owner already produced h, and records h otherwise.
// The hash becomes visible only once it is persisted.
func (d *Detector) markHash(h, owner string) (bool, error) {
	d.hashMu.Lock()
	defer d.hashMu.Unlock()

	if prev, ok := d.hashes[h]; ok {
		return prev != owner, nil
	}

	if d.store != nil {
		if err := d.store.SaveContentHash(h, owner); err != nil {
			return false, fmt.Errorf("failed to persist content hash: %w", err)
		}
	}
	d.hashes[h] = owner
	return false, nil
}

// markSignature compares sig against every signature retained for other owners
// and retains it when none is similar.
func (d *Detector) markSignature(sig Signature, owner string) (bool, error) {
	d.sigMu.Lock()
	defer d.sigMu.Unlock()

	retained := false
	for _, existing := range d.signatures {
		if existing.Owner == owner {
			retained = true
			continue
		}
		if Similarity(sig, existing.Signature) > d.threshold {
			return true, nil
		}
	}
	if retained {
		return false, nil
	}

	if d.store != nil {
		if err := d.store.SaveSignature(sig, owner); err != nil {
			return false, fmt.Errorf("failed to persist signature: %w", err)
		}
	}
	d.signatures = append(d.signatures, OwnedSignature{Signature: sig, Owner: owner})
	return false, nil
}

// Counts returns the number of retained hashes and signatures.
func (d *Detector) Counts() (hashes, signatures int) {
	d.hashMu.Lock()
	hashes = len(d.hashes)
	d.hashMu.Unlock()

	d.sigMu.Lock()
	signatures = len(d.signatures)
	d.sigMu.Unlock()
	return hashes, signatures
}
