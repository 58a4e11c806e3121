package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

// Doer sends a single HTTP request. It must not follow redirects.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewHTTPClient returns a client that never follows redirects and whose
// dialer re-checks every connected address against the guard.
func NewHTTPClient(g *Guard) *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   g.Control,
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext
	return &http.Client{
		Transport: transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

type payload struct {
	data        []byte
	contentType string
	final       *url.URL
}

// fetch downloads raw, following at most MaxRedirects redirects by hand
// and validating every hop.
func (im *Importer) fetch(ctx context.Context, raw string) (*payload, *Error) {
	current := raw
	for hop := 0; ; hop++ {
		u, ferr := im.guard.CheckURL(ctx, current)
		if ferr != nil {
			if hop > 0 && ferr.Kind != KindFetchFailed {
				return nil, fail(KindDisallowedRedirect, "redirect to "+current+" rejected: "+ferr.Detail, ferr)
			}
			return nil, ferr
		}
		p, next, ferr := im.attempt(ctx, u)
		if ferr != nil {
			return nil, ferr
		}
		if next == "" {
			return p, nil
		}
		if hop >= im.cfg.MaxRedirects {
			return nil, fail(KindDisallowedRedirect, fmt.Sprintf("more than %d redirects", im.cfg.MaxRedirects), nil)
		}
		current = next
	}
}

// attempt performs one request under the per-attempt timeout. It returns
// either a payload or the absolute location of a redirect.
func (im *Importer) attempt(ctx context.Context, u *url.URL) (*payload, string, *Error) {
	ctx, cancel := context.WithTimeout(ctx, im.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", fail(KindInvalidURL, "cannot build request", err)
	}
	req.Header.Set("User-Agent", im.cfg.UserAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := im.doer.Do(req)
	if err != nil {
		detail := "request failed"
		if errors.Is(err, context.DeadlineExceeded) {
			detail = "request timed out"
		}
		return nil, "", fail(KindFetchFailed, detail, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		loc := resp.Header.Get("Location")
		if loc == "" {
			return nil, "", fail(KindFetchFailed, "redirect without location", nil)
		}
		next, err := u.Parse(loc)
		if err != nil {
			return nil, "", fail(KindDisallowedRedirect, "bad redirect location", err)
		}
		return nil, next.String(), nil
	case http.StatusOK:
	default:
		return nil, "", fail(KindFetchFailed, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	if resp.ContentLength > im.cfg.MaxBytes {
		return nil, "", fail(KindPayloadTooLarge, fmt.Sprintf("declared length %d exceeds %d", resp.ContentLength, im.cfg.MaxBytes), nil)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, im.cfg.MaxBytes+1))
	if err != nil {
		return nil, "", fail(KindFetchFailed, "read body", err)
	}
	if int64(len(data)) > im.cfg.MaxBytes {
		return nil, "", fail(KindPayloadTooLarge, fmt.Sprintf("body exceeds %d bytes", im.cfg.MaxBytes), nil)
	}
	if len(data) == 0 {
		return nil, "", fail(KindEmpty, "empty response body", nil)
	}
	return &payload{data: data, contentType: resp.Header.Get("Content-Type"), final: u}, "", nil
}
