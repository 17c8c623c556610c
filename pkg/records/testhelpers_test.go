package records

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/require"

	"github.com/gregorycollins/riegeli/pkg/source"
)

// writeTempFile materializes a file image on disk for Open-based tests.
func writeTempFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "records.riegeli")
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

// newSlowStream wraps data in a sequential source whose underlying reader
// returns one byte at a time, exercising partial pulls.
func newSlowStream(data []byte) source.ByteSource {
	return source.NewStreamSource(iotest.OneByteReader(bytes.NewReader(data)))
}
