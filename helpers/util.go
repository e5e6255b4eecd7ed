package helpers

import (
	"errors"
	"net/url"
	"strings"
)

// GetSplitPart returns the index-th part of target split by separate
func GetSplitPart(target string, separate string, index int) (string, error) {
	parts := strings.Split(target, separate)
	if index < 0 || index >= len(parts) {
		return "", errors.New("index out of range")
	}
	return parts[index], nil
}

// QueryParam returns the value of key in rawURL's query string
func QueryParam(rawURL, key string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	value := u.Query().Get(key)
	if value == "" {
		return "", errors.New("missing query parameter " + key)
	}
	return value, nil
}
