package server

import (
	"strconv"
	"strings"
	"time"

	cdrdomain "github.com/smallbiznis/cdrbill/internal/cdr/domain"
)

func parseOptionalMonth(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, nil
	}
	return cdrdomain.ParseMonth(trimmed)
}

func parseOptionalInt(value string, fallback int) (int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback, nil
	}
	return strconv.Atoi(trimmed)
}
