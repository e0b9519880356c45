package browser

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func dialFake(t *testing.T, chrome *fakeChrome) *CDP {
	t.Helper()
	srv := httptest.NewServer(chrome.handle(t))
	t.Cleanup(srv.Close)

	c, err := DialCDP(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"))
	if err != nil {
		t.Fatalf("DialCDP: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCDPCallMatchesResponses(t *testing.T) {
	c := dialFake(t, &fakeChrome{})

	raw, err := c.Call(context.Background(), "", "Target.createTarget", map[string]any{"url": "about:blank"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !strings.Contains(string(raw), `"T1"`) {
		t.Fatalf("result = %s", raw)
	}
}

func TestCDPErrorSurfaces(t *testing.T) {
	c := dialFake(t, &fakeChrome{})

	_, err := c.Call(context.Background(), "S1", "Browser.crash", nil)
	var cdpErr *CDPError
	if !errors.As(err, &cdpErr) {
		t.Fatalf("err = %v, want *CDPError", err)
	}
	if cdpErr.Code != -32601 {
		t.Fatalf("code = %d", cdpErr.Code)
	}
}

func TestCDPCallAfterClose(t *testing.T) {
	c := dialFake(t, &fakeChrome{})
	c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := c.Call(ctx, "", "Page.enable", nil); !errors.Is(err, ErrCDPClosed) {
		t.Fatalf("err = %v, want ErrCDPClosed", err)
	}
}
