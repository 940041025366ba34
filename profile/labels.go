package profile

import (
	"fmt"
	"os"
	"strings"
)

// LoadClassNames reads a label file, one class per line. Line order is the
// class id, so only trailing blank lines are dropped.
func LoadClassNames(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw := strings.Split(string(b), "\n")
	for i := range raw {
		// 支持 Windows CRLF
		raw[i] = strings.TrimRight(raw[i], "\r")
	}
	for len(raw) > 0 && strings.TrimSpace(raw[len(raw)-1]) == "" {
		raw = raw[:len(raw)-1]
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("class file %s is empty", path)
	}
	return raw, nil
}
