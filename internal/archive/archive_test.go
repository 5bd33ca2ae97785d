package archive

import (
	"bytes"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readZip(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	out := make(map[string]string)
	var order []string
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		body, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		out[f.Name] = string(body)
		order = append(order, f.Name)
	}
	out["__order"] = ""
	for _, n := range order {
		out["__order"] += n + ","
	}
	return out
}

// TestBuilderRoundTrip writes entries concurrently and reads them back sorted.
func TestBuilderRoundTrip(t *testing.T) {
	t.Parallel()

	b := NewBuilder()
	var wg sync.WaitGroup
	for _, name := range []string{"c.js", "a.js", "b.js"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, b.AddEntry(name, []byte("// "+name)))
		}()
	}
	wg.Wait()
	require.Equal(t, 3, b.Len())

	data, err := b.Finalize()
	require.NoError(t, err)
	files := readZip(t, data)
	require.Equal(t, "a.js,b.js,c.js,", files["__order"])
	require.Equal(t, "// b.js", files["b.js"])
}

// TestBuilderDeterministic produces identical bytes regardless of insertion order.
func TestBuilderDeterministic(t *testing.T) {
	t.Parallel()

	stamp := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	first := NewBuilder(WithModified(stamp))
	require.NoError(t, first.AddEntry("x.js", []byte("x")))
	require.NoError(t, first.AddEntry("y.js", []byte("y")))
	second := NewBuilder(WithModified(stamp))
	require.NoError(t, second.AddEntry("y.js", []byte("y")))
	require.NoError(t, second.AddEntry("x.js", []byte("x")))

	a, err := first.Finalize()
	require.NoError(t, err)
	b, err := second.Finalize()
	require.NoError(t, err)
	require.Equal(t, a, b)
}

// TestBuilderRejectsMisuse covers duplicates, empty names, and use after finalize.
func TestBuilderRejectsMisuse(t *testing.T) {
	t.Parallel()

	b := NewBuilder()
	require.NoError(t, b.AddEntry("a.js", nil))
	require.Error(t, b.AddEntry("a.js", nil))
	require.Error(t, b.AddEntry("", nil))

	_, err := b.Finalize()
	require.NoError(t, err)
	require.ErrorIs(t, b.AddEntry("b.js", nil), ErrFinalized)
	_, err = b.Finalize()
	require.ErrorIs(t, err, ErrFinalized)
}

// TestName formats the dated artifact name.
func TestName(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 5, 1, 23, 0, 0, 0, time.UTC)
	require.Equal(t, "whatsapp-resources-2024-05-01.zip", Name("whatsapp-resources", at))
}
