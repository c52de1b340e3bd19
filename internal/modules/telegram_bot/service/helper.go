package service

import (
	"fmt"
	"strconv"
	"strings"
)

const maxRecapHours = 720

// parseHours reads the /recap argument; empty means 24.
func parseHours(arg string) (int, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return 24, nil
	}
	h, err := strconv.Atoi(strings.TrimSuffix(strings.ToLower(arg), "h"))
	if err != nil {
		return 0, err
	}
	if h <= 0 || h > maxRecapHours {
		return 0, fmt.Errorf("hours out of range: %d", h)
	}
	return h, nil
}
