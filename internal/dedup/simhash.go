package dedup

import (
	"math/bits"

	"github.com/cespare/xxhash/v2"
)

// SignatureBits is the width of a SimHash signature.
const SignatureBits = 64

// Signature is a 64-bit SimHash fingerprint.
type Signature uint64

// SimHash computes the signature of a token stream. Every distinct token
// contributes its in-document frequency to each bit position, positively
// when the token's hash has that bit set and negatively otherwise; the
// signature bit is set when the sum is positive.
func SimHash(tokens []string) Signature {
	freq := make(map[string]int, len(tokens))
	for _, t := range tokens {
		freq[t]++
	}

	var vector [SignatureBits]int
	for token, weight := range freq {
		h := xxhash.Sum64String(token)
		for i := 0; i < SignatureBits; i++ {
			if h&(1<<uint(i)) != 0 {
				vector[i] += weight
			} else {
				vector[i] -= weight
			}
		}
	}

	var sig Signature
	for i := 0; i < SignatureBits; i++ {
		if vector[i] > 0 {
			sig |= 1 << uint(i)
		}
	}
	return sig
}

// Similarity is the fraction of matching bit positions between two signatures.
func Similarity(a, b Signature) float64 {
	differing := bits.OnesCount64(uint64(a ^ b))
	return float64(SignatureBits-differing) / SignatureBits
}
