package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
)

func readInput(args []string, inputFile string, stdin io.Reader) (string, error) {
	if inputFile != "" && len(args) > 0 {
		return "", fmt.Errorf("input args and -F are mutually exclusive")
	}
	if inputFile == "" {
		if len(args) == 0 {
			return "", fmt.Errorf("missing input: provide args or -F")
		}
		return strings.Join(args, " "), nil
	}
	if inputFile == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return trimTrailingNewline(string(data)), nil
	}
	data, err := os.ReadFile(inputFile)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return trimTrailingNewline(string(data)), nil
}

// openStream opens a captured event stream without buffering it, so large
// captures decode the same way a live response body would.
func openStream(inputFile string, stdin io.Reader) (io.ReadCloser, error) {
	if inputFile == "" || inputFile == "-" {
		return io.NopCloser(stdin), nil
	}
	f, err := os.Open(inputFile)
	if err != nil {
		return nil, fmt.Errorf("open stream file: %w", err)
	}
	return f, nil
}

func trimTrailingNewline(value string) string {
	return strings.TrimRight(value, "\r\n")
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
