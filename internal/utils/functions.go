package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

func GetRandomUserAgent() string {
	return userAgents[time.Now().UnixNano()%int64(len(userAgents))]
}

func RenewOutputPath(outputPath string) string {
	dir := filepath.Dir(outputPath)
	base := filepath.Base(outputPath)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]
	index := 1
	for {
		outputPath = filepath.Join(dir, fmt.Sprintf("%s-(%d)%s", name, index, ext))
		if _, err := os.Stat(outputPath); os.IsNotExist(err) {
			return outputPath
		}
		index++
	}
}

func ParseHeaderArgs(headers []string) map[string]string {
	result := make(map[string]string)
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			result[key] = value
		}
	}
	return result
}

// ParseRate converts a human rate limit like "500K" or "2.5M" to bytes/sec.
// An empty string means unlimited and parses to 0.
func ParseRate(rate string) (int64, error) {
	rate = strings.TrimSpace(rate)
	if rate == "" {
		return 0, nil
	}
	multiplier := int64(1)
	numPart := rate
	switch strings.ToUpper(rate[len(rate)-1:]) {
	case "K":
		multiplier = 1024
		numPart = rate[:len(rate)-1]
	case "M":
		multiplier = 1024 * 1024
		numPart = rate[:len(rate)-1]
	case "G":
		multiplier = 1024 * 1024 * 1024
		numPart = rate[:len(rate)-1]
	}
	value, err := strconv.ParseFloat(numPart, 64)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid rate limit %q", rate)
	}
	return int64(value * float64(multiplier)), nil
}

func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func FormatSpeed(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return "0 B/s"
	}
	formatted := FormatBytes(uint64(bytesPerSec))
	return formatted[:len(formatted)-1] + "B/s" // Slice off "B" and add "B/s"
}
