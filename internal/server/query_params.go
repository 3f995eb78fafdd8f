package server

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

func pathID(c *gin.Context, name string) (snowflake.ID, error) {
	value := strings.TrimSpace(c.Param(name))
	parsed, err := snowflake.ParseString(value)
	if err != nil || parsed <= 0 {
		return 0, newValidationError(name, "invalid_"+name, "invalid "+name)
	}
	return parsed, nil
}

func parseOptionalInt(value string) (int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	return strconv.Atoi(trimmed)
}

func parseOptionalSnowflakeID(value string) (*snowflake.ID, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := snowflake.ParseString(trimmed)
	if err != nil || parsed == 0 {
		return nil, errors.New("invalid_snowflake_id")
	}
	return &parsed, nil
}

// parseOptionalDuration accepts Go durations ("45m") or a bare number of minutes.
func parseOptionalDuration(value string) (time.Duration, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	if minutes, err := strconv.Atoi(trimmed); err == nil {
		if minutes <= 0 {
			return 0, errors.New("invalid_duration")
		}
		return time.Duration(minutes) * time.Minute, nil
	}
	parsed, err := time.ParseDuration(trimmed)
	if err != nil || parsed <= 0 {
		return 0, errors.New("invalid_duration")
	}
	return parsed, nil
}

func parseIDList(field string, values []string) ([]snowflake.ID, error) {
	ids := make([]snowflake.ID, 0, len(values))
	for _, value := range values {
		parsed, err := parseOptionalSnowflakeID(value)
		if err != nil || parsed == nil {
			return nil, newValidationError(field, "invalid_"+field, "invalid id in "+field)
		}
		ids = append(ids, *parsed)
	}
	return ids, nil
}
