package scan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/spa-harvester/internal/harvest"
)

// TestDedupPreservesFirstSeenOrder checks [b,a,b,c,a] becomes [b,a,c].
func TestDedupPreservesFirstSeenOrder(t *testing.T) {
	t.Parallel()

	out, err := Dedup{}.Execute(context.Background(), harvest.NewScanContext("b", "a", "b", "c", "a"))
	require.NoError(t, err)
	require.Equal(t, []string{"b", "a", "c"}, out.URLs())
}

// TestValidateFiltersAndDenylist covers the filter and the optional denylist.
func TestValidateFiltersAndDenylist(t *testing.T) {
	t.Parallel()

	good := rsrc + "/v4/good.js"
	evil := rsrc + "/v4/eval.js"
	in := harvest.NewScanContext(good, evil, "https://web.whatsapp.com/x.js", rsrc+"/v4/s.css").
		WithDenylist([]string{evil})

	out, err := Validate{Filter: testFilter}.Execute(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, []string{good, evil}, out.URLs())

	out, err = Validate{Filter: testFilter, ApplyDenylist: true}.Execute(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, []string{good}, out.URLs())
	require.Equal(t, []string{evil}, out.Denylist(), "metadata survives validation")
	require.Len(t, in.URLs(), 4, "input context untouched")
}
