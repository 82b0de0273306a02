package manifest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tanq16/fragzo/internal/fragment"
)

// ParseList reads a fragment list, one URL per line, blank lines and #
// comments ignored. Every entry must use the same transport family, either
// http(s) or s3, because one session runs over one transport.
func ParseList(r io.Reader) ([]fragment.Locator, error) {
	var locators []fragment.Locator
	var s3Mode bool
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		isS3 := strings.HasPrefix(line, "s3://")
		if !isS3 && !strings.HasPrefix(line, "http://") && !strings.HasPrefix(line, "https://") {
			return nil, fmt.Errorf("line %d: unsupported URL scheme in %q", lineNum, line)
		}
		if len(locators) == 0 {
			s3Mode = isS3
		} else if isS3 != s3Mode {
			return nil, fmt.Errorf("line %d: cannot mix s3 and http fragments in one list", lineNum)
		}
		locators = append(locators, fragment.Locator{URL: line})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading fragment list: %v", err)
	}
	return locators, nil
}

// LoadListFile parses a fragment list from a file on disk.
func LoadListFile(path string) ([]fragment.Locator, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening fragment list: %v", err)
	}
	defer f.Close()
	return ParseList(f)
}
