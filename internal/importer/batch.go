package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Request is one item of a batch import.
type Request struct {
	URL string `json:"url"`
	Options
}

// Outcome is the result of one batch item. Exactly one of Result and Err is set.
type Outcome struct {
	Index  int     `json:"index"`
	URL    string  `json:"url"`
	Result *Result `json:"result,omitempty"`
	Err    *Error  `json:"error,omitempty"`
}

// BatchResult splits a batch into successes and failures, each in request order.
type BatchResult struct {
	Succeeded []Outcome `json:"succeeded"`
	Failed    []Outcome `json:"failed"`
}

// ImportMany imports every request using at most Concurrency workers.
// Requests with the same URL and options are imported once and share the
// outcome, as are concurrent imports of the same key across batches.
// It never stops early: every request gets an outcome.
func (im *Importer) ImportMany(ctx context.Context, reqs []Request) *BatchResult {
	groups := make(map[string][]int)
	var order []string
	for i, r := range reqs {
		k := r.key()
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], i)
	}

	outcomes := make([]Outcome, len(reqs))
	var g errgroup.Group
	g.SetLimit(im.cfg.Concurrency)
	for _, k := range order {
		idx := groups[k]
		g.Go(func() error {
			o := im.importShared(ctx, k, reqs[idx[0]])
			for _, i := range idx {
				o.Index, o.URL = i, reqs[i].URL
				outcomes[i] = o
			}
			return nil
		})
	}
	_ = g.Wait()

	res := &BatchResult{Succeeded: []Outcome{}, Failed: []Outcome{}}
	for _, o := range outcomes {
		if o.Err != nil {
			res.Failed = append(res.Failed, o)
		} else {
			res.Succeeded = append(res.Succeeded, o)
		}
	}
	im.logger.Info("importer: batch done",
		slog.Int("succeeded", len(res.Succeeded)),
		slog.Int("failed", len(res.Failed)))
	return res
}

func (r Request) key() string {
	return fmt.Sprintf("%s\x00%s\x00%d\x00%s", r.Folder, r.Base, r.Reuse, r.URL)
}

func (im *Importer) importShared(ctx context.Context, key string, r Request) Outcome {
	v, err, _ := im.inflight.Do(key, func() (any, error) {
		return im.Import(ctx, r.URL, r.Options)
	})
	out := Outcome{URL: r.URL}
	if err != nil {
		var ierr *Error
		if !errors.As(err, &ierr) {
			ierr = fail(KindFetchFailed, "import failed", err)
		}
		out.Err = ierr
		return out
	}
	out.Result = v.(*Result)
	return out
}
