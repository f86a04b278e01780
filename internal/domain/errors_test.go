package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMatchesByKind(t *testing.T) {
	err := Wrap(KindGeneration, "complete", errors.New("timeout"))

	assert.ErrorIs(t, err, ErrGeneration)
	assert.NotErrorIs(t, err, ErrRetrieval)
	assert.Equal(t, "complete: timeout", err.Error())

	outer := fmt.Errorf("answer: %w", err)
	assert.ErrorIs(t, outer, ErrGeneration)
	assert.Equal(t, KindGeneration, KindOf(outer))
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(KindStartup, "load", nil))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("no such file")
	err := Wrap(KindStartup, "load corpus", cause)
	assert.ErrorIs(t, err, cause)
}

func TestErrorMessageFallbacks(t *testing.T) {
	assert.Equal(t, "startup", (&Error{Kind: KindStartup}).Error())
	assert.Equal(t, "probe", (&Error{Kind: KindStartup, Op: "probe"}).Error())
}
