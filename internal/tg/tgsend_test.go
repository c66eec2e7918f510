package tg

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSystemErr(t *testing.T) {
	assert.False(t, isSystemErr(nil))
	assert.True(t, isSystemErr(errors.New("Too Many Requests: retry after 5 (429)")))
	assert.True(t, isSystemErr(errors.New("context deadline exceeded (Client.Timeout exceeded): timeout")))
	assert.False(t, isSystemErr(errors.New("Bad Request: message is not modified")))
	assert.False(t, isSystemErr(errors.New("Bad Request: chat not found")))
}
