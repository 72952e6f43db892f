// Package recipients turns the text of an uploaded recipient list into an
// ordered, deduplicated set of email addresses.
package recipients

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
)

// AcceptedExtensions are the file types the compose surface offers for upload.
var AcceptedExtensions = []string{".csv", ".txt"}

var (
	lineSplitter  = regexp.MustCompile(`[\r\n]+`)
	tokenSplitter = regexp.MustCompile(`[,\t;]`)
	addressShape  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// Set is an ordered sequence of distinct addresses in first-seen order.
type Set []string

// Preview returns at most n leading addresses and how many were left out.
func (s Set) Preview(n int) ([]string, int) {
	if n < 0 {
		n = 0
	}
	if len(s) <= n {
		return append([]string(nil), s...), 0
	}
	return append([]string(nil), s[:n]...), len(s) - n
}

// IsValid reports whether token has the local@domain.tld shape with no whitespace.
// RE2's \s is ASCII only, so Unicode spaces, vertical tab and BOM are checked
// separately.
func IsValid(token string) bool {
	if strings.IndexFunc(token, isSpace) >= 0 {
		return false
	}
	return addressShape.MatchString(token)
}

func isSpace(r rune) bool {
	return unicode.IsSpace(r) || unicode.Is(unicode.Zs, r) || r == '\ufeff'
}

// Extract parses content line by line, splitting on comma, tab or semicolon.
// Malformed tokens are dropped silently; empty input yields an empty Set.
func Extract(content string) Set {
	seen := map[string]struct{}{}
	result := Set{}
	for _, line := range lineSplitter.Split(content, -1) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		for _, token := range tokenSplitter.Split(line, -1) {
			token = strings.TrimSpace(token)
			if !IsValid(token) {
				continue
			}
			if _, ok := seen[token]; ok {
				continue
			}
			seen[token] = struct{}{}
			result = append(result, token)
		}
	}
	return result
}

// ExtractFrom reads r to the end and extracts from its text. The read is abandoned
// when ctx is done.
func ExtractFrom(ctx context.Context, r io.Reader) (Set, error) {
	type readResult struct {
		data []byte
		err  error
	}
	done := make(chan readResult, 1)
	go func() {
		data, err := io.ReadAll(r)
		done <- readResult{data: data, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("read recipient list: %w", res.err)
		}
		return Extract(string(res.data)), nil
	}
}

// AcceptsFilename reports whether name carries one of AcceptedExtensions.
func AcceptsFilename(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, accepted := range AcceptedExtensions {
		if ext == accepted {
			return true
		}
	}
	return false
}
