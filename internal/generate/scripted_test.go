package generate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScripted_ReplaysInOrder(t *testing.T) {
	s := NewScripted("first reply", "second")
	s.Fail(errors.New("model down"))

	var chunks []string
	text, err := s.Stream(context.Background(), "p1", func(c string) error {
		chunks = append(chunks, c)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "first reply", text)
	assert.Equal(t, "first reply", strings.Join(chunks, ""))

	text, err = Complete(context.Background(), s, "p2")
	require.NoError(t, err)
	assert.Equal(t, "second", text)

	_, err = Complete(context.Background(), s, "p3")
	assert.EqualError(t, err, "model down")

	text, err = Complete(context.Background(), s, "fallback\nmore")
	require.NoError(t, err)
	assert.Equal(t, "Noted. fallback", text)

	assert.Equal(t, []string{"p1", "p2", "p3", "fallback\nmore"}, s.Prompts())
}

func TestScripted_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewScripted("x").Stream(ctx, "p", nil)
	assert.ErrorIs(t, err, context.Canceled)
}
