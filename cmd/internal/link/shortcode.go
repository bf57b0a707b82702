package link

import (
	"crypto/rand"
	"fmt"
	"time"
)

// codeAlphabet is the URL-safe alphabet for the random suffix.
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-"

const suffixLength = 4

// NewShortCode builds a short code from a UTC date/time prefix and a
// random suffix, e.g. "20260301-1204-xK3_".
//
// The prefix is a coarse collision-avoidance bucket: two codes can only
// collide when minted in the same minute with the same suffix.
func NewShortCode(now time.Time) (string, error) {
	suffix, err := randomSuffix(suffixLength)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%s", now.UTC().Format("20060102"), now.UTC().Format("1504"), suffix), nil
}

func randomSuffix(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, c := range b {
		out[i] = codeAlphabet[int(c)%len(codeAlphabet)]
	}
	return string(out), nil
}
