// Package esologs talks to the ESO Logs report API and finds report links in text.
package esologs

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
)

var reportURLPattern = regexp.MustCompile(`https://[A-Za-z0-9.-]+/reports/[A-Za-z0-9]{16}\b`)

// ExtractURLs returns the report URLs found in text, deduplicated in order of appearance.
func ExtractURLs(text string) []string {
	matches := reportURLPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	urls := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		urls = append(urls, m)
	}
	return urls
}

// ReadText reads a whole text source; "-" reads stdin.
func ReadText(path string, stdin io.Reader) (string, error) {
	var r io.Reader
	if path == "-" {
		r = stdin
	} else {
		file, err := os.Open(path)
		if err != nil {
			return "", err
		}
		defer func() {
			_ = file.Close()
		}()
		r = file
	}
	data, err := io.ReadAll(bufio.NewReader(r))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}
