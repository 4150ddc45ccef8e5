package transcription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

var (
	ErrFetchFailed = errors.New("audio fetch failed")
	ErrReadFailed  = errors.New("audio read failed")
	// ErrHostNotAllowed is a fetch failure raised before any request is sent.
	ErrHostNotAllowed = fmt.Errorf("%w: host not allowed", ErrFetchFailed)
)

type Audio struct {
	Data        []byte
	ContentType string
}

type FetchObserverFunc func(endpoint string, status int, duration time.Duration)

type FetcherOption func(*Fetcher)

// WithAllowedHosts restricts fetches to http(s) URLs on the given hosts.
// Ports are ignored. Without it any host is fetched.
func WithAllowedHosts(hosts ...string) FetcherOption {
	return func(f *Fetcher) {
		for _, host := range hosts {
			if host = strings.ToLower(strings.TrimSpace(host)); host != "" {
				f.allowedHosts = append(f.allowedHosts, host)
			}
		}
	}
}

// Fetcher downloads a pre-signed audio URL once, fully into memory.
type Fetcher struct {
	httpClient *resty.Client
	maxBytes   int64
	timeout    time.Duration
	observer   FetchObserverFunc

	allowedHosts []string
}

func NewFetcher(httpClient *http.Client, maxBytes int64, timeout time.Duration, observer FetchObserverFunc, opts ...FetcherOption) *Fetcher {
	rc := resty.New()
	if httpClient != nil {
		rc = resty.NewWithClient(httpClient)
	}
	f := &Fetcher{
		httpClient: rc.SetDebug(false),
		maxBytes:   maxBytes,
		timeout:    timeout,
		observer:   observer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	if len(f.allowedHosts) > 0 {
		// A redirect must not carry the fetch off the allowed hosts.
		f.httpClient.SetRedirectPolicy(resty.RedirectPolicyFunc(func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return errors.New("stopped after 10 redirects")
			}
			return f.checkURL(req.URL)
		}))
	}
	return f
}

func (f *Fetcher) checkURL(u *url.URL) error {
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrHostNotAllowed, u.Scheme)
	}
	if len(f.allowedHosts) == 0 {
		return nil
	}
	host := strings.ToLower(u.Hostname())
	for _, allowed := range f.allowedHosts {
		if host == allowed {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrHostNotAllowed, host)
}

func (f *Fetcher) Fetch(ctx context.Context, audioURL string) (Audio, error) {
	started := time.Now()
	statusCode := 0
	defer func() {
		if f.observer != nil {
			f.observer("audio_fetch", statusCode, time.Since(started))
		}
	}()

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	target, err := url.Parse(audioURL)
	if err != nil {
		return Audio{}, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if err := f.checkURL(target); err != nil {
		return Audio{}, err
	}

	res, err := f.httpClient.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(audioURL)
	if err != nil {
		return Audio{}, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	body := res.RawBody()
	defer func() { _ = body.Close() }()
	statusCode = res.StatusCode()

	if !res.IsSuccess() {
		snippet, _ := io.ReadAll(io.LimitReader(body, 512))
		return Audio{}, fmt.Errorf("%w: status %d: %s", ErrFetchFailed, res.StatusCode(), strings.TrimSpace(string(snippet)))
	}

	if f.maxBytes > 0 && res.RawResponse.ContentLength > f.maxBytes {
		return Audio{}, fmt.Errorf("%w: %d bytes exceeds limit of %d bytes", ErrReadFailed, res.RawResponse.ContentLength, f.maxBytes)
	}

	reader := io.Reader(body)
	if f.maxBytes > 0 {
		reader = io.LimitReader(body, f.maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return Audio{}, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return Audio{}, fmt.Errorf("%w: exceeds limit of %d bytes", ErrReadFailed, f.maxBytes)
	}
	if len(data) == 0 {
		return Audio{}, fmt.Errorf("%w: empty body", ErrReadFailed)
	}

	return Audio{Data: data, ContentType: res.Header().Get("Content-Type")}, nil
}

// audioMIMEType keeps the server's media type when it names audio, and
// falls back otherwise. Storage buckets often answer application/octet-stream.
func audioMIMEType(contentType, fallback string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return fallback
	}
	if strings.HasPrefix(mediaType, "audio/") || mediaType == "video/webm" {
		return mediaType
	}
	return fallback
}
