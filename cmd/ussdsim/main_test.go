package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type recorded struct {
	session string
	text    string
}

func fakeGateway(t *testing.T) (*httptest.Server, *[]recorded) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []recorded
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		text := r.PostForm.Get("text")
		mu.Lock()
		calls = append(calls, recorded{session: r.PostForm.Get("sessionId"), text: text})
		mu.Unlock()
		if strings.Count(text, "*") >= 1 {
			fmt.Fprint(w, "END done")
			return
		}
		fmt.Fprint(w, "CON menu")
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestSimulatorAccumulatesTextAndRenewsSession(t *testing.T) {
	srv, calls := fakeGateway(t)
	n := 0
	s := &simulator{
		client:      newClient(srv.URL, time.Second),
		phone:       "2348030000001",
		serviceCode: "*384#",
		newID: func() string {
			n++
			return fmt.Sprintf("sess-%d", n)
		},
	}

	var out bytes.Buffer
	if err := s.run(context.Background(), strings.NewReader("2\n500\n\nexit\n"), &out); err != nil {
		t.Fatalf("run: %v", err)
	}

	want := []recorded{{"sess-1", ""}, {"sess-1", "2"}, {"sess-1", "2*500"}, {"sess-2", ""}}
	if len(*calls) != len(want) {
		t.Fatalf("calls %+v", *calls)
	}
	for i, c := range *calls {
		if c != want[i] {
			t.Fatalf("call %d = %+v, want %+v", i, c, want[i])
		}
	}
	if !strings.Contains(out.String(), "session ended") {
		t.Fatalf("expected end marker in output: %s", out.String())
	}
}

func TestClientReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Admin-Key") != "k" {
			http.Error(w, "invalid admin key", http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"success":true}`)
	}))
	defer srv.Close()

	c := newClient(srv.URL, time.Second)
	if _, err := c.processDeposits(context.Background(), ""); err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected 401 error, got %v", err)
	}
	out, err := c.processDeposits(context.Background(), "k")
	if err != nil || !strings.Contains(out, "success") {
		t.Fatalf("unexpected result %q %v", out, err)
	}
}
