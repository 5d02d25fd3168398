//go:build !linux

package h4

import (
	"context"

	"github.com/pkg/errors"
)

func (e TCPEndpoint) Connect(ctx context.Context) (int, error) {
	return -1, errors.New("only available on linux")
}

func (e UARTEndpoint) Connect(ctx context.Context) (int, error) {
	return -1, errors.New("only available on linux")
}
