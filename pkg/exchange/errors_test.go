package exchange

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"wrapped transient", fmt.Errorf("tick: %w", &TransientError{Op: "fetch", Err: errors.New("boom")}), true},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"reset", &net.OpError{Op: "read", Err: syscall.ECONNRESET}, true},
		{"refused", syscall.ECONNREFUSED, true},
		{"eof", io.ErrUnexpectedEOF, true},
		{"dns", &net.DNSError{Err: "no such host", Name: "x"}, true},
		{"503", &HTTPStatusError{StatusCode: 503}, true},
		{"429", &HTTPStatusError{StatusCode: 429}, true},
		{"400", &HTTPStatusError{StatusCode: 400}, false},
		{"plain", errors.New("decode failure"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsTransient(tc.err))
		})
	}
}

func TestTransientWrapsOnlyNetworkErrors(t *testing.T) {
	var te *TransientError
	assert.True(t, errors.As(Transient("fetch", syscall.ECONNRESET), &te))
	assert.Equal(t, "fetch", te.Op)

	plain := errors.New("bad payload")
	assert.Same(t, plain, Transient("fetch", plain))
	assert.Nil(t, Transient("fetch", nil))
}
