package crawler

import (
	"math/bits"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// shingleWidth is the token-window size hashed into each simhash
// feature. Windows overlap by one token.
const shingleWidth = 3

// ContentFingerprint is a 64-bit similarity hash of normalized page
// content. Near-duplicate pages differ in only a few bits.
type ContentFingerprint struct {
	Hash uint64
	Bits int // tokens contributed; zero means too short to fingerprint
}

// Fingerprint derives a simhash from shingled tokens of normalized
// text. The text is case-folded here; whitespace collapsing and markup
// stripping are the extractor's job.
func Fingerprint(normalizedText string) ContentFingerprint {
	tokens := strings.Fields(strings.ToLower(normalizedText))
	if len(tokens) == 0 {
		return ContentFingerprint{}
	}

	var weights [64]int
	features := 0
	for i := 0; i < len(tokens); i++ {
		end := i + shingleWidth
		if end > len(tokens) {
			end = len(tokens)
		}
		h := xxhash.Sum64String(strings.Join(tokens[i:end], " "))
		features++
		for bit := 0; bit < 64; bit++ {
			if h&(1<<uint(bit)) != 0 {
				weights[bit]++
			} else {
				weights[bit]--
			}
		}
		if end == len(tokens) {
			break
		}
	}

	var hash uint64
	for bit := 0; bit < 64; bit++ {
		if weights[bit] > 0 {
			hash |= 1 << uint(bit)
		}
	}
	return ContentFingerprint{Hash: hash, Bits: features}
}

// HammingDistance counts differing bits between two fingerprints.
func HammingDistance(a, b ContentFingerprint) int {
	return bits.OnesCount64(a.Hash ^ b.Hash)
}

// FingerprintStore holds the session's accepted content signatures and
// answers near-duplicate queries. The check-then-insert is atomic so
// two concurrent near-duplicate pages cannot both be accepted.
type FingerprintStore struct {
	mu        sync.Mutex
	stored    []ContentFingerprint
	threshold int // max Hamming distance considered duplicate
	minLength int // texts shorter than this are noise
}

// NewFingerprintStore creates a store with the given Hamming-distance
// threshold and minimum text length.
func NewFingerprintStore(threshold, minLength int) *FingerprintStore {
	return &FingerprintStore{
		threshold: threshold,
		minLength: minLength,
	}
}

// TooShort reports whether the normalized text is below the minimum
// length and should be treated as duplicate/noise without recording.
func (s *FingerprintStore) TooShort(normalizedText string) bool {
	return len([]rune(normalizedText)) < s.minLength
}

// CheckAndRecord returns true when the fingerprint is within the
// threshold of a stored one; otherwise it records the fingerprint and
// returns false. The two steps happen under one lock.
func (s *FingerprintStore) CheckAndRecord(fp ContentFingerprint) (duplicate bool) {
	if fp.Bits == 0 {
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, old := range s.stored {
		if bits.OnesCount64(fp.Hash^old.Hash) <= s.threshold {
			return true
		}
	}
	s.stored = append(s.stored, fp)
	return false
}

// Len returns the number of recorded unique fingerprints.
func (s *FingerprintStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stored)
}
