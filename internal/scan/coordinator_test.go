package scan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/spa-harvester/internal/harvest"
)

const manifestURL = "https://web.whatsapp.com/sw.js"

func standardFixture(t *testing.T) (*fakeProbe, *fakeFetcher, fakeDocument) {
	t.Helper()
	probe := &fakeProbe{registry: fakeRegistry{entries: map[string]string{
		rsrc + "/v4/reg-a.js": "1",
		rsrc + "/v4/shared.js": "2",
	}}}
	fetcher := &fakeFetcher{responses: map[string]harvest.Response{
		manifestURL: {StatusCode: 200, Body: []byte(`["https://static.whatsapp.net/rsrc.php/v4/shared.js","https://static.whatsapp.net/rsrc.php/v4/sw-b.js"]`)},
	}}
	doc := fakeDocument{html: `<script type="application/json">{"a":"https:\/\/static.whatsapp.net\/rsrc.php\/v4\/inline-c.js","evalWorkerURL":"https:\/\/static.whatsapp.net\/rsrc.php\/v4\/sw-b.js"}</script>`}
	return probe, fetcher, doc
}

func standardOptions() Options {
	return Options{
		Origin:              testOrigin,
		ManifestURL:         manifestURL,
		Filter:              testFilter,
		StabilizeDelay:      time.Millisecond,
		StabilizeMaxRetries: 3,
		ProbeInterval:       time.Millisecond,
	}
}

// TestCoordinatorMergesAllPipelines checks merge order, dedup, and per-pipeline denylist scope.
func TestCoordinatorMergesAllPipelines(t *testing.T) {
	t.Parallel()

	probe, fetcher, doc := standardFixture(t)
	c := NewStandardCoordinator(Sources{Probe: probe, Fetcher: fetcher, Document: doc}, standardOptions())

	urls, err := c.Scan(context.Background(), true)
	require.NoError(t, err)
	require.Equal(t, []string{
		rsrc + "/v4/reg-a.js",
		rsrc + "/v4/shared.js",
		rsrc + "/v4/sw-b.js",
		rsrc + "/v4/inline-c.js",
		"https://web.whatsapp.com/pdf-worker/",
		"https://web.whatsapp.com/init_script/",
	}, urls)
}

// TestCoordinatorGlobalDenylist drops denylisted URLs found by any pipeline.
func TestCoordinatorGlobalDenylist(t *testing.T) {
	t.Parallel()

	probe, fetcher, doc := standardFixture(t)
	opts := standardOptions()
	opts.DenylistScope = DenylistGlobal
	c := NewStandardCoordinator(Sources{Probe: probe, Fetcher: fetcher, Document: doc}, opts)

	urls, err := c.Scan(context.Background(), true)
	require.NoError(t, err)
	require.NotContains(t, urls, rsrc+"/v4/sw-b.js")
	require.Contains(t, urls, rsrc+"/v4/inline-c.js")
}

// TestCoordinatorRescanSkipsStatic only consults the volatile source.
func TestCoordinatorRescanSkipsStatic(t *testing.T) {
	t.Parallel()

	probe, fetcher, doc := standardFixture(t)
	c := NewStandardCoordinator(Sources{Probe: probe, Fetcher: fetcher, Document: doc}, standardOptions())

	urls, err := c.Scan(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, []string{rsrc + "/v4/reg-a.js", rsrc + "/v4/shared.js"}, urls)
	require.Zero(t, fetcher.Calls())
}

// TestCoordinatorEmptyResult fails when nothing survives the merge.
func TestCoordinatorEmptyResult(t *testing.T) {
	t.Parallel()

	probe := &fakeProbe{registry: fakeRegistry{entries: map[string]string{}}}
	c := NewStandardCoordinator(Sources{Probe: probe}, standardOptions())

	_, err := c.Scan(context.Background(), false)
	require.ErrorIs(t, err, harvest.ErrEmptyResult)
}

// TestCoordinatorStaticFailureAborts surfaces a manifest failure as a discovery error.
func TestCoordinatorStaticFailureAborts(t *testing.T) {
	t.Parallel()

	probe, _, doc := standardFixture(t)
	fetcher := &fakeFetcher{responses: map[string]harvest.Response{manifestURL: {StatusCode: 404}}}
	c := NewStandardCoordinator(Sources{Probe: probe, Fetcher: fetcher, Document: doc}, standardOptions())

	_, err := c.Scan(context.Background(), true)
	var fetchErr *harvest.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, 404, fetchErr.StatusCode)
}

// TestCoordinatorVolatileFailureAborts reports source-unavailable without touching static sources.
func TestCoordinatorVolatileFailureAborts(t *testing.T) {
	t.Parallel()

	_, fetcher, doc := standardFixture(t)
	opts := standardOptions()
	opts.ProbeAttempts = 2
	c := NewStandardCoordinator(Sources{Probe: &fakeProbe{missing: 10}, Fetcher: fetcher, Document: doc}, opts)

	_, err := c.Scan(context.Background(), true)
	require.ErrorIs(t, err, harvest.ErrSourceUnavailable)
	require.Zero(t, fetcher.Calls())
}

// TestPipelineWrapsStageErrors names the failing pipeline and stage.
func TestPipelineWrapsStageErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	p := Pipeline{Name: "p", Stages: []Stage{Dedup{}, errStage{err: boom}}}
	_, err := p.Run(context.Background())
	require.ErrorIs(t, err, boom)
	require.EqualError(t, err, "pipeline p: stage err: boom")
}
