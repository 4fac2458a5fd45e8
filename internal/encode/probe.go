package encode

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// ListEncoders runs `binary -encoders` and returns the audio encoders it
// reports.
func ListEncoders(ctx context.Context, binary string) (map[string]bool, error) {
	if strings.TrimSpace(binary) == "" {
		binary = DefaultBinary
	}
	out, err := exec.CommandContext(ctx, binary, "-hide_banner", "-encoders").Output()
	if err != nil {
		return nil, fmt.Errorf("list encoders with %q: %w", binary, err)
	}
	return ParseEncoders(string(out)), nil
}

// ParseEncoders reads `ffmpeg -encoders` output. Audio rows start with a
// flag column beginning with "A".
func ParseEncoders(output string) map[string]bool {
	available := map[string]bool{}
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 || len(fields[0]) != 6 || fields[0][0] != 'A' || fields[1] == "=" {
			continue
		}
		available[fields[1]] = true
	}
	return available
}
