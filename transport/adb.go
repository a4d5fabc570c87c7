package transport

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"dapsync/logger"
)

// ADBClient drives an Android device over the network through the adb
// binary. One client holds one logical connection; adb's own server
// serializes device I/O, so the client is safe for concurrent use by
// executor workers once connected.
type ADBClient struct {
	adbPath      string
	addr         string
	pushTimeout  time.Duration
	shellTimeout time.Duration
	connected    bool
}

// NewADBClient creates an ADB transport for the given device address
// (host:port).
func NewADBClient(adbPath, addr string, pushTimeout, shellTimeout time.Duration) *ADBClient {
	return &ADBClient{
		adbPath:      adbPath,
		addr:         addr,
		pushTimeout:  pushTimeout,
		shellTimeout: shellTimeout,
	}
}

// run executes one adb command with a deadline. Timeouts are reported as
// ErrTimeout so the executor treats them like any transport failure.
func (c *ADBClient) run(ctx context.Context, timeout time.Duration, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.adbPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("%w: adb %s", ErrTimeout, args[0])
		}
		return "", fmt.Errorf("%w: adb %s: %v: %s", ErrTransport, args[0], err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// shell runs a shell command on the device, addressed with -s.
func (c *ADBClient) shell(ctx context.Context, command string) (string, error) {
	return c.run(ctx, c.shellTimeout, "-s", c.addr, "shell", command)
}

// Connect connects to the device and verifies it shows up in the device
// list. A device that never appears is reported as unreachable.
func (c *ADBClient) Connect(ctx context.Context) error {
	logger.Info("connecting to device", logger.String("addr", c.addr))

	if _, err := c.run(ctx, c.shellTimeout, "connect", c.addr); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnreachable, err)
	}

	// "adb connect" returns success even for half-open connections; the
	// devices list is the authority.
	out, err := c.run(ctx, c.shellTimeout, "devices")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnreachable, err)
	}
	for _, line := range strings.Split(out, "\n")[1:] {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[0] == c.addr && fields[1] == "device" {
			c.connected = true
			logger.Info("connected to device", logger.String("addr", c.addr))
			return nil
		}
	}
	return fmt.Errorf("%w: %s not in device list", ErrDeviceUnreachable, c.addr)
}

// Disconnect drops the device connection.
func (c *ADBClient) Disconnect() error {
	if !c.connected {
		return nil
	}
	_, err := c.run(context.Background(), c.shellTimeout, "disconnect", c.addr)
	c.connected = false
	return err
}

// Push transfers a local file to the device path, creating parent
// directories first.
func (c *ADBClient) Push(ctx context.Context, localPath, devicePath string) error {
	if dir := deviceDir(devicePath); dir != "" {
		if err := c.MkdirAll(ctx, dir); err != nil {
			return err
		}
	}
	_, err := c.run(ctx, c.pushTimeout, "-s", c.addr, "push", localPath, devicePath)
	return err
}

// Remove deletes a file on the device. Removing an absent file succeeds.
func (c *ADBClient) Remove(ctx context.Context, devicePath string) error {
	_, err := c.shell(ctx, fmt.Sprintf("rm -f %s", shellQuote(devicePath)))
	return err
}

// Exists checks whether a regular file exists on the device.
func (c *ADBClient) Exists(ctx context.Context, devicePath string) (bool, error) {
	out, err := c.shell(ctx, fmt.Sprintf("test -f %s && echo exists", shellQuote(devicePath)))
	if err != nil {
		// test exits nonzero for a missing file; only propagate timeouts.
		if errors.Is(err, ErrTimeout) {
			return false, err
		}
		return false, nil
	}
	return strings.Contains(out, "exists"), nil
}

// MkdirAll creates a directory and its parents on the device.
func (c *ADBClient) MkdirAll(ctx context.Context, devicePath string) error {
	_, err := c.shell(ctx, fmt.Sprintf("mkdir -p %s", shellQuote(devicePath)))
	return err
}

// ListTracks lists regular files below root on the device.
func (c *ADBClient) ListTracks(ctx context.Context, root string) ([]string, error) {
	out, err := c.shell(ctx, fmt.Sprintf("find %s -type f 2>/dev/null", shellQuote(root)))
	if err != nil {
		return nil, err
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// DeviceInfo returns identifying device properties.
func (c *ADBClient) DeviceInfo(ctx context.Context) (map[string]string, error) {
	props := map[string]string{
		"model":        "ro.product.model",
		"manufacturer": "ro.product.manufacturer",
		"os_version":   "ro.build.version.release",
		"sdk_version":  "ro.build.version.sdk",
	}
	info := make(map[string]string, len(props))
	for key, prop := range props {
		out, err := c.shell(ctx, "getprop "+prop)
		if err != nil {
			return nil, err
		}
		info[key] = strings.TrimSpace(out)
	}
	return info, nil
}

// deviceDir returns the parent directory of a forward-slash device path.
func deviceDir(devicePath string) string {
	idx := strings.LastIndex(devicePath, "/")
	if idx <= 0 {
		return ""
	}
	return devicePath[:idx]
}

// shellQuote single-quotes a path for the device shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
