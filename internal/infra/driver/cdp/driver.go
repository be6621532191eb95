package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/vietddude/webtape/internal/infra/driver"
)

// executorProbe checks whether the executor bridge is installed in the page.
const executorProbe = `typeof window.__webtape === "object"`

// dispatchTemplate routes a directive through the in-page executor bridge.
// The bridge resolves locators and performs the interaction; this core never
// touches the DOM directly.
const dispatchTemplate = `window.__webtape.dispatch(%s)`

// Driver implements driver.TabDriver against a Chromium DevTools endpoint.
// Context handles are DevTools target IDs.
type Driver struct {
	cfg      Config
	bootJS   string
	mu       sync.Mutex
	conns    map[string]*conn
}

// New creates a CDP driver. bootJS is the executor bootstrap script injected
// into pages that don't carry the bridge yet.
func New(cfg Config, bootJS string) *Driver {
	return &Driver{
		cfg:    cfg,
		bootJS: bootJS,
		conns:  make(map[string]*conn),
	}
}

// connFor returns the cached page connection, dialing on first use.
func (d *Driver) connFor(ctx context.Context, contextID string) (*conn, error) {
	d.mu.Lock()
	c, ok := d.conns[contextID]
	d.mu.Unlock()
	if ok {
		return c, nil
	}

	c, err := dial(ctx, d.cfg.DebuggerURL, contextID)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.conns[contextID] = c
	d.mu.Unlock()
	return c, nil
}

// evaluate runs an expression in the page and returns its JSON value.
func (d *Driver) evaluate(ctx context.Context, contextID, expression string) (json.RawMessage, error) {
	c, err := d.connFor(ctx, contextID)
	if err != nil {
		return nil, err
	}
	result, err := c.call(ctx, "Runtime.evaluate", map[string]any{
		"expression":    expression,
		"returnByValue": true,
		"awaitPromise":  true,
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Result struct {
			Value json.RawMessage `json:"value"`
		} `json:"result"`
		ExceptionDetails *struct {
			Text string `json:"text"`
		} `json:"exceptionDetails"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse evaluate result: %w", err)
	}
	if parsed.ExceptionDetails != nil {
		return nil, fmt.Errorf("evaluate failed: %s", parsed.ExceptionDetails.Text)
	}
	return parsed.Result.Value, nil
}

// EnsureExecutor injects the executor bridge if the page doesn't have it.
func (d *Driver) EnsureExecutor(ctx context.Context, contextID string) (bool, error) {
	value, err := d.evaluate(ctx, contextID, executorProbe)
	if err != nil {
		return false, err
	}
	var present bool
	if err := json.Unmarshal(value, &present); err == nil && present {
		return true, nil
	}

	if _, err := d.evaluate(ctx, contextID, d.bootJS); err != nil {
		return false, fmt.Errorf("executor injection failed: %w", err)
	}

	// Verify the bridge took.
	value, err = d.evaluate(ctx, contextID, executorProbe)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := json.Unmarshal(value, &ok); err != nil {
		return false, nil
	}
	return ok, nil
}

// Send delivers a directive to the in-page executor and decodes its reply.
func (d *Driver) Send(ctx context.Context, contextID string, directive driver.Directive) (*driver.Response, error) {
	payload, err := json.Marshal(directive)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal directive: %w", err)
	}

	value, err := d.evaluate(ctx, contextID, fmt.Sprintf(dispatchTemplate, payload))
	if err != nil {
		return nil, err
	}

	var resp driver.Response
	if err := json.Unmarshal(value, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse executor response: %w", err)
	}
	return &resp, nil
}

// ContextInfo reads the page's current location and title.
func (d *Driver) ContextInfo(ctx context.Context, contextID string) (*driver.ContextInfo, error) {
	value, err := d.evaluate(ctx, contextID,
		`({url: location.href, title: document.title})`)
	if err != nil {
		return nil, err
	}
	var info driver.ContextInfo
	if err := json.Unmarshal(value, &info); err != nil {
		return nil, fmt.Errorf("failed to parse context info: %w", err)
	}
	return &info, nil
}

// Close drops all page connections.
func (d *Driver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, c := range d.conns {
		c.close()
		delete(d.conns, id)
	}
}
