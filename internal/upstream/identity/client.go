package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const currentUserPath = "/auth/v1/user"

// ErrUnauthenticated is returned for every credential the identity service
// does not confirm, including when the service cannot be reached.
var ErrUnauthenticated = errors.New("unauthenticated")

type ObserverFunc func(endpoint string, status int, duration time.Duration)

type Option func(*Client)

type Client struct {
	httpClient *resty.Client
	transport  *http.Client
	publicKey  string
	timeout    time.Duration
	observer   ObserverFunc
}

// User is the subset of the identity service's user record we log.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func WithObserver(observer ObserverFunc) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

// WithHTTPClient makes resty wrap hc instead of a client of its own.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.transport = hc
	}
}

func New(baseURL, publicKey string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		publicKey: strings.TrimSpace(publicKey),
		timeout:   timeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	rc := resty.New()
	if c.transport != nil {
		rc = resty.NewWithClient(c.transport)
	}
	c.httpClient = rc.
		SetDebug(false).
		SetBaseURL(strings.TrimRight(strings.TrimSpace(baseURL), "/")).
		SetHeader("Accept", "application/json")
	return c
}

// Validate asks the identity service who owns token. Any answer other than
// a 2xx, and any transport failure, yields ErrUnauthenticated.
func (c *Client) Validate(ctx context.Context, token string) (User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return User{}, ErrUnauthenticated
	}

	started := time.Now()
	statusCode := 0
	defer func() {
		c.observe("identity_user", statusCode, time.Since(started))
	}()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	res, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+token).
		SetHeader("apikey", c.publicKey).
		Get(currentUserPath)
	if res != nil {
		statusCode = res.StatusCode()
	}
	if err != nil {
		return User{}, fmt.Errorf("%w: identity service unreachable: %v", ErrUnauthenticated, err)
	}
	if !res.IsSuccess() {
		return User{}, fmt.Errorf("%w: identity service answered %d", ErrUnauthenticated, res.StatusCode())
	}

	// Validity is the status alone; the profile is only for log context.
	var user User
	_ = json.Unmarshal(res.Body(), &user)
	return user, nil
}

func (c *Client) observe(endpoint string, status int, duration time.Duration) {
	if c.observer != nil {
		c.observer(endpoint, status, duration)
	}
}
