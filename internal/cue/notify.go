package cue

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

const notifyAppName = "waveform"

// desktopNotify posts a freedesktop notification through busctl and returns
// the id the server assigned. A non-zero replaceID updates that notification.
func desktopNotify(ctx context.Context, replaceID uint32, summary string, timeoutMS int) (uint32, error) {
	out, err := busctl(ctx,
		"Notify",
		"susssasa{sv}i",
		notifyAppName,
		strconv.FormatUint(uint64(replaceID), 10),
		"",
		summary,
		"",
		"0", // actions
		"0", // hints
		strconv.Itoa(timeoutMS),
	)
	if err != nil {
		return 0, fmt.Errorf("desktop notify failed: %w", err)
	}
	return parseNotifyID(out)
}

// desktopDismiss closes a notification by id.
func desktopDismiss(ctx context.Context, id uint32) error {
	if _, err := busctl(ctx, "CloseNotification", "u", strconv.FormatUint(uint64(id), 10)); err != nil {
		return fmt.Errorf("desktop dismiss failed: %w", err)
	}
	return nil
}

func busctl(ctx context.Context, method string, args ...string) (string, error) {
	full := append([]string{
		"--user",
		"call",
		"org.freedesktop.Notifications",
		"/org/freedesktop/Notifications",
		"org.freedesktop.Notifications",
		method,
	}, args...)

	out, err := exec.CommandContext(ctx, "busctl", full...).CombinedOutput()
	trimmed := strings.TrimSpace(string(out))
	if err != nil {
		if trimmed == "" {
			return "", err
		}
		return "", fmt.Errorf("%w (%s)", err, trimmed)
	}
	return trimmed, nil
}

// parseNotifyID reads busctl's `u <id>` reply.
func parseNotifyID(out string) (uint32, error) {
	fields := strings.Fields(out)
	if len(fields) < 2 || fields[0] != "u" {
		return 0, fmt.Errorf("desktop notify invalid response: %q", out)
	}
	value, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("desktop notify parse id %q: %w", fields[1], err)
	}
	return uint32(value), nil
}
