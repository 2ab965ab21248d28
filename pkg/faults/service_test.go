package faults

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsFirstKind(t *testing.T) {
	err := New(Parse, "bad body")
	assert.Equal(t, Parse, KindOf(err))

	rewrapped := Wrap(Network, err)
	assert.Equal(t, Parse, KindOf(rewrapped))
	assert.True(t, Is(rewrapped, Parse))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Unknown, KindOf(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Nil(t, Wrap(Network, nil))
}

func TestClassifyTransport(t *testing.T) {
	assert.Equal(t, Timeout, KindOf(ClassifyTransport(fmt.Errorf("get: %w", context.DeadlineExceeded))))
	assert.Equal(t, Network, KindOf(ClassifyTransport(errors.New("connection refused"))))
}

func TestWrapfPrefixesMessage(t *testing.T) {
	err := Wrapf(StoreWrite, errors.New("disk full"), "insert pv")
	assert.Equal(t, StoreWrite, KindOf(err))
	assert.Contains(t, Message(err), "insert pv")
	assert.Contains(t, Message(err), "disk full")
}
