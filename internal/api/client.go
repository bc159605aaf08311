package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/banshee-data/trail.report/internal/httputil"
	"github.com/banshee-data/trail.report/internal/tracking"
)

// Client talks to a running server. It backs the status, start, stop,
// pause, resume and discard subcommands.
type Client struct {
	base string
	http httputil.HTTPClient
}

// NewClient returns a Client for the server at base, such as
// http://localhost:8080. A nil hc sends requests over the network with
// httputil.DefaultTimeout.
func NewClient(base string, hc httputil.HTTPClient) *Client {
	if hc == nil {
		hc = httputil.NewStandardClient(nil)
	}
	return &Client{base: strings.TrimRight(base, "/"), http: hc}
}

func (c *Client) send(method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequest(method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

func (c *Client) get(path string, v interface{}) error {
	resp, err := c.send(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return httputil.DecodeJSON(resp, v)
}

func (c *Client) post(path string, body, v interface{}) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	resp, err := c.send(http.MethodPost, path, &buf)
	if err != nil {
		return err
	}
	return httputil.DecodeJSON(resp, v)
}

func (c *Client) Status() (TrackingStatus, error) {
	var st TrackingStatus
	err := c.get("/api/tracking", &st)
	return st, err
}

// Start begins a session, optionally against a reference route.
func (c *Client) Start(routeID *int) (tracking.State, error) {
	var st tracking.State
	err := c.post("/api/tracking/start", startRequest{RouteID: routeID}, &st)
	return st, err
}

// Stop completes the active session.
func (c *Client) Stop(name, notes string) (tracking.State, error) {
	var st tracking.State
	err := c.post("/api/tracking/stop", stopRequest{Name: name, Notes: notes}, &st)
	return st, err
}

func (c *Client) action(name string) (tracking.State, error) {
	var st tracking.State
	err := c.post("/api/tracking/"+name, nil, &st)
	return st, err
}

func (c *Client) Pause() (tracking.State, error)   { return c.action("pause") }
func (c *Client) Resume() (tracking.State, error)  { return c.action("resume") }
func (c *Client) Discard() (tracking.State, error) { return c.action("discard") }

// Sessions lists stored sessions without their points.
func (c *Client) Sessions(routeID *int) ([]SessionListItem, error) {
	path := "/api/sessions"
	if routeID != nil {
		path += "?" + url.Values{"route_id": {fmt.Sprint(*routeID)}}.Encode()
	}
	var items []SessionListItem
	err := c.get(path, &items)
	return items, err
}

// Export downloads a completed session in the given format and returns the
// encoded document.
func (c *Client) Export(sessionID, format string) ([]byte, error) {
	path := "/api/sessions/" + url.PathEscape(sessionID) + "/export?" + url.Values{"format": {format}}.Encode()
	resp, err := c.send(http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, httputil.DecodeJSON(resp, nil)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
