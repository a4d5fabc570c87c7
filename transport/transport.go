// Package transport abstracts the debug-bridge connection to the device.
package transport

import (
	"context"
	"errors"
)

var (
	// ErrDeviceUnreachable means the device could not be connected at all.
	// This is a fatal precondition for a sync run.
	ErrDeviceUnreachable = errors.New("device unreachable")
	// ErrTransport covers a failed device operation after a connection was
	// established. Transfer entries retry these.
	ErrTransport = errors.New("transport failure")
	// ErrTimeout marks a device operation that exceeded its deadline. It is
	// handled exactly like ErrTransport.
	ErrTimeout = errors.New("transport timeout")
)

// Transport is the device-side collaborator of the sync engine. Every
// operation is bounded by the implementation's configured timeout and by
// the caller's context.
type Transport interface {
	// Connect establishes the device connection. The engine calls this once
	// per run; implementations are shared by executor workers afterwards.
	Connect(ctx context.Context) error
	Disconnect() error

	Push(ctx context.Context, localPath, devicePath string) error
	Remove(ctx context.Context, devicePath string) error
	Exists(ctx context.Context, devicePath string) (bool, error)
	MkdirAll(ctx context.Context, devicePath string) error

	// ListTracks lists files below root on the device, for drift detection.
	ListTracks(ctx context.Context, root string) ([]string, error)

	// DeviceInfo returns identifying properties of the connected device.
	DeviceInfo(ctx context.Context) (map[string]string, error)
}
