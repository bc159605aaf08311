package serialmux

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	ggaLine = "$GPGGA,092750.000,3954.0600,N,00406.1200,E,1,8,1.03,61.7,M,55.2,M,,*76"
	rmcLine = "$GPRMC,092750.000,A,3954.0600,N,00406.1200,E,0.02,31.66,280511,,,A*43"
)

func receive(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case line := <-ch:
		return line
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for line")
		return ""
	}
}

func TestSerialMux_FanOut(t *testing.T) {
	t.Parallel()
	mux, port := NewMockSerialMux()

	id1, ch1 := mux.Subscribe()
	id2, ch2 := mux.Subscribe()
	defer mux.Unsubscribe(id2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mux.Monitor(ctx) }()

	port.Feed("\x00\x13"+ggaLine, "", rmcLine)

	assert.Equal(t, ggaLine, receive(t, ch1), "leading noise stripped")
	assert.Equal(t, rmcLine, receive(t, ch1), "blank lines skipped")
	assert.Equal(t, ggaLine, receive(t, ch2))

	mux.Unsubscribe(id1)
	_, ok := <-ch1
	assert.False(t, ok, "unsubscribe closes the channel")

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}

func TestSerialMux_MonitorEndsOnEOF(t *testing.T) {
	t.Parallel()
	mux, port := NewMockSerialMux()
	port.Feed(ggaLine)
	port.EOF()

	err := mux.Monitor(context.Background())
	assert.NoError(t, err)
}

func TestSerialMux_SlowSubscriberDoesNotBlock(t *testing.T) {
	t.Parallel()
	mux, port := NewMockSerialMux()
	_, slow := mux.Subscribe()
	_, fast := mux.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)

	for i := 0; i < subscriberBuffer+10; i++ {
		port.Feed(ggaLine)
		receive(t, fast)
	}
	assert.Len(t, slow, subscriberBuffer)
	require.Eventually(t, func() bool {
		return mux.Stats() == LineStats{Lines: subscriberBuffer + 10, Dropped: 10}
	}, time.Second, 5*time.Millisecond)
}

func TestSerialMux_SendCommand(t *testing.T) {
	t.Parallel()
	mux, port := NewMockSerialMux()

	require.NoError(t, mux.SendCommand("$PMTK220,1000*1F"))
	require.NoError(t, mux.SendCommand("$PMTK314,0,1,0,1,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0*28\r\n"))
	assert.Equal(t, []string{
		"$PMTK220,1000*1F",
		"$PMTK314,0,1,0,1,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0*28",
	}, port.Written())

	port.FailWrites(errors.New("unplugged"))
	assert.Error(t, mux.SendCommand("$PMTK101*32"))
}

func TestSerialMux_Close(t *testing.T) {
	t.Parallel()
	mux, port := NewMockSerialMux()
	_, ch := mux.Subscribe()

	require.NoError(t, mux.Close())
	_, ok := <-ch
	assert.False(t, ok)
	_, err := port.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrPortClosed)
}

func TestCleanLine(t *testing.T) {
	t.Parallel()
	const ais = "!AIVDM,1,1,,A,13u?etPv2;0n:dDPwUM1U1Cb069D,0*24"
	tests := []struct{ in, want string }{
		{ggaLine + "\r", ggaLine},
		{"  " + ggaLine, ggaLine},
		{"\xff\xfe" + rmcLine, rmcLine},
		{ais, ais},
		{"hello", "hello"},
		{"\r\n", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanLine(tt.in), "CleanLine(%q)", tt.in)
	}
}

func TestAdminRoutes(t *testing.T) {
	t.Parallel()
	mux, port := NewMockSerialMux()
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)

	t.Run("send command", func(t *testing.T) {
		form := url.Values{"command": {"$PMTK220,1000*1F"}}
		req := httptest.NewRequest(http.MethodPost, "/debug/serial-command", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.RemoteAddr = "127.0.0.1:5000"
		w := httptest.NewRecorder()
		httpMux.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Contains(t, port.Written(), "$PMTK220,1000*1F")
	})

	t.Run("missing command", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/debug/serial-command", nil)
		req.RemoteAddr = "127.0.0.1:5000"
		w := httptest.NewRecorder()
		httpMux.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("stats", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/debug/serial-stats", nil)
		req.RemoteAddr = "127.0.0.1:5000"
		w := httptest.NewRecorder()
		httpMux.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		var stats LineStats
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
		assert.False(t, stats.Disabled)
	})

	t.Run("nmea tail", func(t *testing.T) {
		srv := httptest.NewServer(httpMux)
		defer srv.Close()

		reqCtx, reqCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer reqCancel()
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, srv.URL+"/debug/nmea-tail", nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

		r := bufio.NewReader(resp.Body)
		ping, err := r.ReadString('\n')
		require.NoError(t, err)
		assert.Equal(t, ": ping\n", ping)

		port.Feed(rmcLine)
		for {
			line, err := r.ReadString('\n')
			require.NoError(t, err)
			if strings.HasPrefix(line, "data: ") {
				assert.Equal(t, "data: "+rmcLine+"\n", line)
				break
			}
		}
	})
}

func TestDisabledSerialMux(t *testing.T) {
	t.Parallel()
	d := NewDisabledSerialMux()
	assert.True(t, d.Disabled())

	id, ch := d.Subscribe()
	d.Unsubscribe(id)
	_, ok := <-ch
	assert.False(t, ok)

	_, ch = d.Subscribe()
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	_, ok = <-ch
	assert.False(t, ok)

	_, ch = d.Subscribe()
	_, ok = <-ch
	assert.False(t, ok, "subscribing after close returns a closed channel")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, d.Monitor(ctx), context.Canceled)
	assert.NoError(t, d.SendCommand("$PMTK101*32"))

	httpMux := http.NewServeMux()
	d.AttachAdminRoutes(httpMux)
	req := httptest.NewRequest(http.MethodGet, "/debug/serial-stats", nil)
	req.RemoteAddr = "127.0.0.1:5000"
	w := httptest.NewRecorder()
	httpMux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"lines":0,"dropped":0,"disabled":true}`, w.Body.String())
}
