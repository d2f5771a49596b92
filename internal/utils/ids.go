package utils

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const idAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateNanoIdWithPrefix returns a "<prefix>_<nanoid>" identifier, matching
// the BeforeCreate convention used throughout internal/models.
func GenerateNanoIdWithPrefix(prefix string, size int) string {
	id, err := gonanoid.Generate(idAlphabet, size)
	if err != nil {
		panic(err)
	}
	return prefix + "_" + id
}
