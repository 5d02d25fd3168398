//go:build !linux

package h4

import (
	"context"

	"github.com/pkg/errors"
)

// Driver is a placeholder for non-Linux platforms.
type Driver struct{}

// Open is a dummy function for non-Linux platform.
func Open(ctx context.Context, ep Endpoint, rx Receiver, opts Options) (*Driver, error) {
	return nil, errors.New("only available on linux")
}

func (d *Driver) Send(t PacketType, payload []byte) error {
	return ErrClosed
}

func (d *Driver) Close() error {
	return nil
}
