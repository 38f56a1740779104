package common

import (
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// ParsePositiveInt converts an environment value to a positive int. Unparseable
// or non-positive values yield fallback; a bad value is logged, never fatal.
func ParsePositiveInt(key, value string, fallback int) int {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	i, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || i <= 0 {
		logrus.WithFields(logrus.Fields{"string": value, "environment_key": key, "default": fallback}).Warn("Invalid integer in environment, using default")
		return fallback
	}
	return i
}
