// Package names supplies display names for new colonists, either from a
// remote name service or from a built-in list.
package names

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/time/rate"
)

// ErrEmpty is returned when the service answers without any usable name.
var ErrEmpty = errors.New("name service returned no names")

// HTTPSource fetches names from a JSON endpoint. The endpoint receives the
// wanted count as ?count=n and answers either a bare array of strings or
// an object with a "names" array.
type HTTPSource struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	title      cases.Caser
}

// NewHTTPSource creates a source allowed rps requests per second.
func NewHTTPSource(baseURL string, rps float64) *HTTPSource {
	if rps <= 0 {
		rps = 1
	}
	return &HTTPSource{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		title:      cases.Title(language.Und),
	}
}

type namesResponse struct {
	Names []string `json:"names"`
}

// Fetch asks the service for n names.
func (s *HTTPSource) Fetch(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limited: %w", err)
	}

	u, err := url.Parse(s.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid name service url: %w", err)
	}
	q := u.Query()
	q.Set("count", strconv.Itoa(n))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("name service error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	raw, err := decodeNames(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	out := make([]string, 0, n)
	for _, name := range raw {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		out = append(out, s.title.String(name))
		if len(out) == n {
			break
		}
	}
	if len(out) == 0 {
		return nil, ErrEmpty
	}
	return out, nil
}

func decodeNames(body []byte) ([]string, error) {
	var list []string
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}
	var obj namesResponse
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, err
	}
	return obj.Names, nil
}

// Static hands out names from a fixed list, cycling when exhausted.
type Static struct {
	mu   sync.Mutex
	list []string
	next int
}

// DefaultNames is the built-in roster.
var DefaultNames = []string{
	"Ada", "Bruno", "Clara", "Dario", "Elena", "Fabio", "Greta", "Hugo",
	"Irene", "Jonas", "Kira", "Lucas", "Mara", "Nico", "Olga", "Pablo",
}

// NewStatic returns a Static source; an empty list uses DefaultNames.
func NewStatic(list ...string) *Static {
	if len(list) == 0 {
		list = DefaultNames
	}
	return &Static{list: list}
}

func (s *Static) Fetch(ctx context.Context, n int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		name := s.list[s.next%len(s.list)]
		if round := s.next / len(s.list); round > 0 {
			name = name + " " + strconv.Itoa(round+1)
		}
		out = append(out, name)
		s.next++
	}
	return out, nil
}

// Fallback tries Primary and answers from Secondary when it fails.
type Fallback struct {
	Primary   Source
	Secondary Source
	OnError   func(error)
}

// Source is anything that can produce names.
type Source interface {
	Fetch(ctx context.Context, n int) ([]string, error)
}

func (f Fallback) Fetch(ctx context.Context, n int) ([]string, error) {
	names, err := f.Primary.Fetch(ctx, n)
	if err == nil {
		return names, nil
	}
	if f.OnError != nil {
		f.OnError(err)
	}
	if ctx.Err() != nil {
		return nil, err
	}
	return f.Secondary.Fetch(ctx, n)
}
