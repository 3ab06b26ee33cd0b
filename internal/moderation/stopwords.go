package moderation

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

var DefaultStopWords = []string{"блядь", "блять", "ебанный", "ёбанный"}

type StopWords struct {
	words   []string
	lowered []string
}

func NewStopWords(words []string) *StopWords {
	sw := &StopWords{}
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		sw.words = append(sw.words, w)
		sw.lowered = append(sw.lowered, strings.ToLower(w))
	}
	return sw
}

// LoadStopWords reads one word per line. A missing file yields the default list.
func LoadStopWords(path string) (*StopWords, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewStopWords(DefaultStopWords), nil
		}
		return nil, fmt.Errorf("failed to open stop words file: %w", err)
	}
	defer f.Close()

	return ReadStopWords(f)
}

func ReadStopWords(r io.Reader) (*StopWords, error) {
	var words []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		words = append(words, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stop words: %w", err)
	}
	return NewStopWords(words), nil
}

func (s *StopWords) Len() int {
	return len(s.words)
}

// Match returns every configured word found anywhere in text, case-insensitively.
func (s *StopWords) Match(text string) []string {
	lowered := strings.ToLower(text)
	var found []string
	for i, w := range s.lowered {
		if strings.Contains(lowered, w) {
			found = append(found, s.words[i])
		}
	}
	return found
}
