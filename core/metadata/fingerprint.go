package metadata

import (
	"fmt"
	"os"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint derives a change-detection value for a source file from its
// size and modification time. Rewriting a file's content updates both, so
// this detects change without hashing the audio bytes.
func Fingerprint(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadableSource, err)
	}
	h := xxhash.New()
	fmt.Fprintf(h, "%d:%d", info.Size(), info.ModTime().Unix())
	return fmt.Sprintf("%016x", h.Sum64()), nil
}
