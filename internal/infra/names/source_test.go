package names

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSourceAcceptsBothShapes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/list" {
			fmt.Fprint(w, `["ada lovelace", "", "bruno"]`)
			return
		}
		assert.Equal(t, "2", r.URL.Query().Get("count"))
		fmt.Fprint(w, `{"names":["clara","dario","elena"]}`)
	}))
	defer srv.Close()

	list, err := NewHTTPSource(srv.URL+"/list", 100).Fetch(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"Ada Lovelace", "Bruno"}, list)

	obj, err := NewHTTPSource(srv.URL+"/obj", 100).Fetch(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"Clara", "Dario"}, obj)
}

func TestHTTPSourceReportsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/empty" {
			fmt.Fprint(w, `[]`)
			return
		}
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPSource(srv.URL, 100).Fetch(context.Background(), 1)
	assert.ErrorContains(t, err, "status 503")

	_, err = NewHTTPSource(srv.URL+"/empty", 100).Fetch(context.Background(), 1)
	assert.True(t, errors.Is(err, ErrEmpty))
}

func TestHTTPSourceHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHTTPSource("http://127.0.0.1:1", 1).Fetch(ctx, 1)
	assert.Error(t, err)
}

func TestStaticCycles(t *testing.T) {
	s := NewStatic("a", "b")
	got, err := s.Fetch(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "a 2"}, got)
}

func TestFallbackUsesSecondary(t *testing.T) {
	var reported error
	f := Fallback{
		Primary:   NewHTTPSource("http://127.0.0.1:1", 100),
		Secondary: NewStatic("zoe"),
		OnError:   func(err error) { reported = err },
	}
	got, err := f.Fetch(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"zoe"}, got)
	assert.Error(t, reported)
}
