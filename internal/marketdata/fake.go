package marketdata

import (
	"context"
	"sync"

	"github.com/marketbridge/mcp-marketdata/internal/output"
)

// FakeClient is a canned-response Client for tests. Responses are keyed by
// request kind; unset kinds return QueryErr or an empty tabular dataset.
type FakeClient struct {
	mu sync.Mutex

	// Datasets maps request kinds to the dataset Query returns.
	Datasets map[RequestKind]*output.Dataset

	// QueryErr, when set, is returned by every Query call.
	QueryErr error

	// PingErr, when set, is returned by Ping.
	PingErr error

	// Requests records every validated request Query received.
	Requests []Request
}

// NewFakeClient returns a fake with no canned responses.
func NewFakeClient() *FakeClient {
	return &FakeClient{Datasets: make(map[RequestKind]*output.Dataset)}
}

// SetDataset registers the dataset returned for a request kind.
func (f *FakeClient) SetDataset(kind RequestKind, ds *output.Dataset) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Datasets == nil {
		f.Datasets = make(map[RequestKind]*output.Dataset)
	}
	f.Datasets[kind] = ds
}

// Query validates the request, records it, and returns the canned response.
func (f *FakeClient) Query(ctx context.Context, req Request) (*output.Dataset, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.Requests = append(f.Requests, req)

	if f.QueryErr != nil {
		return nil, f.QueryErr
	}
	if ds, ok := f.Datasets[req.Kind]; ok {
		return ds, nil
	}
	return output.NewTabularDataset(nil), nil
}

// Ping returns the configured ping error.
func (f *FakeClient) Ping(ctx context.Context) error {
	return f.PingErr
}

// LastRequest returns the most recent request Query received, or a zero
// request when none have been made.
func (f *FakeClient) LastRequest() Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Requests) == 0 {
		return Request{}
	}
	return f.Requests[len(f.Requests)-1]
}
