package logger_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AltairaLabs/collabkit/pkg/logger"
)

func TestRedactPayload_Empty(t *testing.T) {
	assert.Equal(t, "<empty>", logger.RedactPayload(nil))
	assert.Equal(t, "<empty>", logger.RedactPayload([]byte{}))
}

func TestRedactPayload_ShortEchoesInFull(t *testing.T) {
	data := []byte(`{"op":"insert"}`)
	result := logger.RedactPayload(data)

	assert.Contains(t, result, string(data))
	assert.NotContains(t, result, "...")
}

func TestRedactPayload_LongIsTruncated(t *testing.T) {
	data := []byte(strings.Repeat("a", 500))
	result := logger.RedactPayload(data)

	assert.NotContains(t, result, string(data), "full payload must not appear in the preview")
	assert.Contains(t, result, "500 bytes")
	assert.Contains(t, result, "...")
}
