package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gwillem/roarm/pkg/units"
)

// httpLink speaks to the firmware's WiFi interface: every command frame goes
// out as a GET to /js?json=<frame>, the reply body is the JSON answer.
type httpLink struct {
	host   string
	joints []units.JointName
	client *http.Client
}

func newHTTPLink(host string, joints []units.JointName) *httpLink {
	return &httpLink{
		host:   host,
		joints: joints,
		client: &http.Client{Timeout: 2 * time.Second},
	}
}

func (l *httpLink) Open(ctx context.Context) error {
	// HTTP is connectionless; liveness is established by the Ping that
	// follows in Manager.Connect.
	return ctx.Err()
}

func (l *httpLink) Close() error {
	l.client.CloseIdleConnections()
	return nil
}

func (l *httpLink) exchange(ctx context.Context, req request) ([]byte, error) {
	frame, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	u := fmt.Sprintf("http://%s/js?json=%s", l.host, url.QueryEscape(string(frame)))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("firmware returned %s", resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 64<<10))
}

func (l *httpLink) ReadJoints(ctx context.Context) (map[units.JointName]float64, error) {
	body, err := l.exchange(ctx, request{T: cmdFeedback})
	if err != nil {
		return nil, err
	}
	var fb feedback
	if err := json.Unmarshal(body, &fb); err != nil {
		return nil, fmt.Errorf("parse feedback: %w", err)
	}
	if fb.T != replyFeedback || len(fb.Angles) < len(l.joints) {
		return nil, fmt.Errorf("unexpected feedback frame: %s", body)
	}
	values := make(map[units.JointName]float64, len(l.joints))
	for i, name := range l.joints {
		values[name] = fb.Angles[i]
	}
	return values, nil
}

func (l *httpLink) WriteJoints(ctx context.Context, targets map[units.JointName]float64, p WriteParams) error {
	angles := make([]float64, len(l.joints))
	for i, name := range l.joints {
		v, ok := targets[name]
		if !ok {
			return fmt.Errorf("joint %s missing from batched write", name)
		}
		angles[i] = v
	}
	_, err := l.exchange(ctx, request{T: cmdJointsCtrl, Angles: angles, Spd: p.Speed, Acc: p.Acc})
	return err
}

func (l *httpLink) SetTorque(ctx context.Context, on bool) error {
	cmd := 0
	if on {
		cmd = 1
	}
	_, err := l.exchange(ctx, request{T: cmdTorqueSet, Cmd: &cmd})
	return err
}

func (l *httpLink) Ping(ctx context.Context) error {
	_, err := l.ReadJoints(ctx)
	return err
}
