package lraclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagaflow/lra-coordinator/internal/lra"
)

func TestRoundRobinCyclesThroughPool(t *testing.T) {
	s := NewRoundRobin([]string{"a", "b", "c"})
	var seen []string
	for i := 0; i < 6; i++ {
		base, ok := s.Next()
		require.True(t, ok)
		seen = append(seen, base)
	}
	assert.Equal(t, []string{"a", "b", "c", "a", "b", "c"}, seen)
}

func TestRoundRobinEmptyPool(t *testing.T) {
	s := NewRoundRobin(nil)
	_, ok := s.Next()
	assert.False(t, ok)
}

func TestStickyStaysUntilDemoted(t *testing.T) {
	s := NewSticky([]string{"a", "b", "c"})
	b1, _ := s.Next()
	b2, _ := s.Next()
	assert.Equal(t, b1, b2)

	s.Demote()
	b3, _ := s.Next()
	assert.NotEqual(t, b1, b3)

	s.Reset()
	b4, _ := s.Next()
	assert.Equal(t, b1, b4)
}

func TestRejectingAlwaysFails(t *testing.T) {
	var s Selector = Rejecting{}
	_, ok := s.Next()
	assert.False(t, ok)
}

func TestSelectorForUnknownMethodFailsClosed(t *testing.T) {
	s := SelectorFor("nonsense-method", []string{"a"})
	assert.Equal(t, "rejecting", s.Name())
	_, ok := s.Next()
	assert.False(t, ok)
}

func TestSelectorForKnownMethods(t *testing.T) {
	assert.Equal(t, "round-robin", SelectorFor("round-robin", nil).Name())
	assert.Equal(t, "round-robin", SelectorFor("", nil).Name())
	assert.Equal(t, "sticky", SelectorFor("sticky", nil).Name())
}

func TestClientStartLRALoadBalances(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(server.URL + "/abc-uid"))
	}))
	defer server.Close()

	c := New(NewRoundRobin([]string{server.URL}), "1.0")
	id, err := c.StartLRA(context.Background(), "client-1")
	require.NoError(t, err)
	assert.Contains(t, id, "abc-uid")
}

func TestClientCloseLRAUsesPerLRAAffinity(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(Rejecting{}, "1.0") // CloseLRA must not consult the selector at all
	lraID := lra.BuildID(srv.URL, "uid-123")

	err := c.CloseLRA(context.Background(), lraID)
	require.NoError(t, err)
	assert.Contains(t, gotPath, "uid-123")
	assert.Contains(t, gotPath, "/close")
}

func TestClientListLRAs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"lraId":"` + srv.URL + `/u1","status":"Active"}]`))
	}))
	defer srv.Close()

	c := New(NewRoundRobin([]string{srv.URL}), "1.0")
	lras, err := c.ListLRAs(context.Background())
	require.NoError(t, err)
	require.Len(t, lras, 1)
	assert.Equal(t, lra.StatusActive, lras[0].Status)
}
