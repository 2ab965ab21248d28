// Faults attaches a Kind to errors so loop boundaries can record a
// structured health entry instead of swallowing the error.
package faults

import (
	"context"
	"errors"
	"net"
	"net/url"
	"os"

	"github.com/ansel1/merry"
)

type kindKey struct{}

func New(kind Kind, msg string) error {
	return merry.New(msg).WithValue(kindKey{}, kind)
}

func Errorf(kind Kind, format string, args ...interface{}) error {
	return merry.Errorf(format, args...).WithValue(kindKey{}, kind)
}

// Wrap tags err with kind. A nil err stays nil. An error that already
// carries a kind keeps it.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := merry.Value(err, kindKey{}).(Kind); ok {
		return err
	}
	return merry.Wrap(err).WithValue(kindKey{}, kind)
}

// Wrapf is Wrap with a message prefix.
func Wrapf(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return merry.Prepend(Wrap(kind, err), msg)
}

// KindOf returns the kind attached to err, or Unknown.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if k, ok := merry.Value(err, kindKey{}).(Kind); ok {
		return k
	}
	return Unknown
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the human readable message without stack details.
func Message(err error) string {
	if err == nil {
		return ""
	}
	return merry.Message(err)
}

// ClassifyTransport maps an http.Client error onto network or timeout.
func ClassifyTransport(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return Wrap(Timeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Wrap(Timeout, err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return Wrap(Timeout, err)
	}
	return Wrap(Network, err)
}
