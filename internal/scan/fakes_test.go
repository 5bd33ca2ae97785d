package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/JakeFAU/spa-harvester/internal/harvest"
)

const (
	testOrigin = "https://web.whatsapp.com"
	rsrc       = "https://static.whatsapp.net/rsrc.php"
)

var testFilter = harvest.ResourceFilter{Prefix: rsrc, Suffix: ".js"}

// countStage yields counts[i] synthetic resources on its i-th call.
type countStage struct {
	counts []int
	calls  atomic.Int32
}

func (s *countStage) Name() string { return "count" }

func (s *countStage) Execute(_ context.Context, sc harvest.ScanContext) (harvest.ScanContext, error) {
	i := int(s.calls.Add(1)) - 1
	n := s.counts[len(s.counts)-1]
	if i < len(s.counts) {
		n = s.counts[i]
	}
	urls := make([]string, n)
	for j := range urls {
		urls[j] = fmt.Sprintf("%s/v4/%d.js", rsrc, j)
	}
	return sc.MergeURLs(urls), nil
}

type errStage struct{ err error }

func (s errStage) Name() string { return "err" }

func (s errStage) Execute(context.Context, harvest.ScanContext) (harvest.ScanContext, error) {
	return harvest.ScanContext{}, s.err
}

type fakeRegistry struct {
	entries map[string]string
	err     error
}

func (r fakeRegistry) Snapshot(context.Context) (map[string]string, error) {
	return r.entries, r.err
}

// fakeProbe reports the registry missing for the first `missing` probes.
type fakeProbe struct {
	missing  int
	registry harvest.LoaderRegistry
	err      error
	calls    atomic.Int32
}

func (p *fakeProbe) Probe(context.Context) (harvest.LoaderRegistry, bool, error) {
	n := int(p.calls.Add(1))
	if p.err != nil {
		return nil, false, p.err
	}
	if n <= p.missing {
		return nil, false, nil
	}
	return p.registry, true, nil
}

type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]harvest.Response
	calls     []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (harvest.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	resp, ok := f.responses[url]
	if !ok {
		return harvest.Response{}, errors.New("connection refused")
	}
	return resp, nil
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeDocument struct {
	html string
	err  error
}

func (d fakeDocument) HTML(context.Context) (string, error) { return d.html, d.err }
