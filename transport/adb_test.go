package transport

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddr = "10.0.0.5:5555"

// stubADB writes an executable shell script standing in for the adb
// binary. Every invocation appends its arguments to a log file.
func stubADB(t *testing.T, body string) (adbPath, logPath string) {
	t.Helper()
	dir := t.TempDir()
	logPath = filepath.Join(dir, "calls.log")
	adbPath = filepath.Join(dir, "adb")

	// printf keeps backslashes in the logged arguments literal, which echo
	// would not under dash.
	script := "#!/bin/sh\n" +
		"printf '%s\\n' \"$*\" >> '" + logPath + "'\n" +
		body
	require.NoError(t, os.WriteFile(adbPath, []byte(script), 0755))
	return adbPath, logPath
}

func calls(t *testing.T, logPath string) []string {
	t.Helper()
	data, err := os.ReadFile(logPath)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func newTestClient(adbPath string) *ADBClient {
	return NewADBClient(adbPath, testAddr, 5*time.Second, 5*time.Second)
}

func TestConnectVerifiesDeviceList(t *testing.T) {
	adbPath, logPath := stubADB(t, `
case "$1" in
  devices) printf 'List of devices attached\n`+testAddr+`\tdevice\n' ;;
esac
exit 0
`)
	client := newTestClient(adbPath)
	require.NoError(t, client.Connect(context.Background()))

	got := calls(t, logPath)
	require.Len(t, got, 2)
	assert.Equal(t, "connect "+testAddr, got[0])
	assert.Equal(t, "devices", got[1])
}

func TestConnectDeviceNotListed(t *testing.T) {
	adbPath, _ := stubADB(t, `
case "$1" in
  devices) printf 'List of devices attached\nother:5555\tdevice\n' ;;
esac
exit 0
`)
	client := newTestClient(adbPath)
	err := client.Connect(context.Background())
	assert.ErrorIs(t, err, ErrDeviceUnreachable)
}

func TestConnectOfflineDevice(t *testing.T) {
	adbPath, _ := stubADB(t, `
case "$1" in
  devices) printf 'List of devices attached\n`+testAddr+`\toffline\n' ;;
esac
exit 0
`)
	client := newTestClient(adbPath)
	assert.ErrorIs(t, client.Connect(context.Background()), ErrDeviceUnreachable)
}

func TestPushCreatesParentDirFirst(t *testing.T) {
	adbPath, logPath := stubADB(t, "exit 0\n")
	client := newTestClient(adbPath)

	err := client.Push(context.Background(), "/tmp/staged.mp3", "/sdcard/Music/Queen/song.mp3")
	require.NoError(t, err)

	got := calls(t, logPath)
	require.Len(t, got, 2)
	assert.Equal(t, "-s "+testAddr+" shell mkdir -p '/sdcard/Music/Queen'", got[0])
	assert.Equal(t, "-s "+testAddr+" push /tmp/staged.mp3 /sdcard/Music/Queen/song.mp3", got[1])
}

func TestPushFailureIsTransportError(t *testing.T) {
	adbPath, _ := stubADB(t, `
case "$*" in
  *push*) echo 'error: device offline' >&2; exit 1 ;;
esac
exit 0
`)
	client := newTestClient(adbPath)
	err := client.Push(context.Background(), "/tmp/staged.mp3", "/sdcard/Music/song.mp3")
	assert.ErrorIs(t, err, ErrTransport)
}

func TestRemoveQuotesPath(t *testing.T) {
	adbPath, logPath := stubADB(t, "exit 0\n")
	client := newTestClient(adbPath)

	require.NoError(t, client.Remove(context.Background(), "/sdcard/Music/It's Alive.mp3"))

	got := calls(t, logPath)
	require.Len(t, got, 1)
	assert.Equal(t, `-s `+testAddr+` shell rm -f '/sdcard/Music/It'\''s Alive.mp3'`, got[0])
}

func TestExists(t *testing.T) {
	adbPath, _ := stubADB(t, `
case "$*" in
  *present*) echo exists; exit 0 ;;
  *) exit 1 ;;
esac
`)
	client := newTestClient(adbPath)

	ok, err := client.Exists(context.Background(), "/sdcard/Music/present.mp3")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.Exists(context.Background(), "/sdcard/Music/absent.mp3")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExistsPropagatesTimeout(t *testing.T) {
	adbPath, _ := stubADB(t, "exec sleep 1\n")
	client := NewADBClient(adbPath, testAddr, time.Second, 50*time.Millisecond)

	// A missing file is a clean false, but a timeout must surface as an
	// error, not read as absence.
	_, err := client.Exists(context.Background(), "/sdcard/Music/a.mp3")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestListTracks(t *testing.T) {
	adbPath, _ := stubADB(t, `
printf '/sdcard/Music/a.mp3\n/sdcard/Music/b.mp3\n\n'
exit 0
`)
	client := newTestClient(adbPath)

	files, err := client.ListTracks(context.Background(), "/sdcard/Music")
	require.NoError(t, err)
	assert.Equal(t, []string{"/sdcard/Music/a.mp3", "/sdcard/Music/b.mp3"}, files)
}

func TestShellTimeout(t *testing.T) {
	// exec replaces the shell so the kill on deadline reaches sleep itself.
	adbPath, _ := stubADB(t, "exec sleep 1\n")
	client := NewADBClient(adbPath, testAddr, time.Second, 50*time.Millisecond)

	err := client.Remove(context.Background(), "/sdcard/Music/a.mp3")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestDeviceDir(t *testing.T) {
	assert.Equal(t, "/sdcard/Music/Queen", deviceDir("/sdcard/Music/Queen/song.mp3"))
	assert.Equal(t, "", deviceDir("song.mp3"))
	assert.Equal(t, "", deviceDir("/song.mp3"))
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, "'/sdcard/Music/a.mp3'", shellQuote("/sdcard/Music/a.mp3"))
	assert.Equal(t, `'It'\''s Alive'`, shellQuote("It's Alive"))
}
