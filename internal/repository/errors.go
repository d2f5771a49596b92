package repository

import (
	"errors"
	"time"
)

var (
	ErrInvalidInput = errors.New("invalid input parameters")
)

func durationSeconds(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}
