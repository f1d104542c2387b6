// Package simhash fingerprints HTML documents by the shape of their markup,
// so a challenge interstitial can be recognized again after the site rotates
// its wording. Documents cut from the same template hash to nearby values;
// Distance measures how far apart two documents are.
package simhash

import (
	"hash/fnv"
	"math/bits"
	"strings"

	"golang.org/x/net/html"
)

// shingleWidth is how many consecutive tag names form one feature. Width 3
// keeps local nesting context without tying the fingerprint to the exact
// length of the page.
const shingleWidth = 3

// FromDOM hashes the element structure of a document into a 64-bit
// fingerprint. Text, attributes and comments are ignored, so two renderings
// of one template with different copy land within a few bits of each other.
// A document with no elements fingerprints to zero.
func FromDOM(rawHTML string) uint64 {
	tags := tagSequence(rawHTML)
	if len(tags) == 0 {
		return 0
	}
	if len(tags) < shingleWidth {
		return hashFeatures(tags)
	}
	features := make([]string, 0, len(tags)-shingleWidth+1)
	for i := 0; i+shingleWidth <= len(tags); i++ {
		features = append(features, strings.Join(tags[i:i+shingleWidth], ">"))
	}
	return hashFeatures(features)
}

// Distance is the Hamming distance between two fingerprints, 0 through 64.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Similar reports whether two fingerprints are within threshold bits of each
// other, meaning the documents were very likely built from one template.
func Similar(a, b uint64, threshold int) bool {
	return Distance(a, b) <= threshold
}

// hashFeatures folds a feature set into one fingerprint: each feature's
// FNV-64a hash votes on every bit, and the majority wins the bit.
func hashFeatures(features []string) uint64 {
	var votes [64]int
	for _, f := range features {
		h := fnv.New64a()
		h.Write([]byte(f))
		sum := h.Sum64()
		for bit := 0; bit < 64; bit++ {
			if sum&(1<<uint(bit)) != 0 {
				votes[bit]++
			} else {
				votes[bit]--
			}
		}
	}
	var fp uint64
	for bit, v := range votes {
		if v > 0 {
			fp |= 1 << uint(bit)
		}
	}
	return fp
}

// tagSequence collects element names in document order. Close tags carry no
// extra structure and are skipped.
func tagSequence(rawHTML string) []string {
	z := html.NewTokenizer(strings.NewReader(rawHTML))
	var tags []string
	for {
		switch z.Next() {
		case html.ErrorToken:
			return tags
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tags = append(tags, string(name))
		}
	}
}
