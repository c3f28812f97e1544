package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.bug.st/serial"

	"github.com/gwillem/roarm/pkg/units"
)

// Vendor firmware command codes.
const (
	cmdFeedback   = 105 // request joint feedback
	cmdJointsCtrl = 122 // batched joint angle control
	cmdTorqueSet  = 210 // torque on/off

	replyFeedback = 1051
)

// request is one JSON command frame sent to the firmware.
type request struct {
	T      int       `json:"T"`
	Angles []float64 `json:"angles,omitempty"`
	Spd    int       `json:"spd,omitempty"`
	Acc    int       `json:"acc,omitempty"`
	Cmd    *int      `json:"cmd,omitempty"`
}

// feedback is the firmware's joint state reply, angles in degrees in wire
// order.
type feedback struct {
	T      int       `json:"T"`
	Angles []float64 `json:"angles"`
}

// serialLink speaks the firmware's JSON-lines protocol over a serial port.
type serialLink struct {
	path   string
	baud   int
	joints []units.JointName

	port   serial.Port
	reader *bufio.Reader
}

func newSerialLink(path string, baud int, joints []units.JointName) *serialLink {
	if baud <= 0 {
		baud = DefaultBaud
	}
	return &serialLink{path: path, baud: baud, joints: joints}
}

func (l *serialLink) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	port, err := serial.Open(l.path, &serial.Mode{BaudRate: l.baud})
	if err != nil {
		return fmt.Errorf("open %s: %w", l.path, err)
	}
	if err := port.SetReadTimeout(time.Second); err != nil {
		port.Close()
		return fmt.Errorf("set read timeout: %w", err)
	}
	l.port = port
	l.reader = bufio.NewReader(port)
	return nil
}

func (l *serialLink) Close() error {
	if l.port == nil {
		return nil
	}
	err := l.port.Close()
	l.port = nil
	l.reader = nil
	return err
}

func (l *serialLink) send(ctx context.Context, req request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.port == nil {
		return ErrNotConnected
	}
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if _, err := l.port.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// readFeedback scans reply lines until a feedback frame arrives. The
// firmware interleaves unsolicited status lines, which are skipped.
func (l *serialLink) readFeedback(ctx context.Context) (*feedback, error) {
	for attempts := 0; attempts < 8; attempts++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line, err := l.reader.ReadBytes('\n')
		if err != nil {
			return nil, fmt.Errorf("read frame: %w", err)
		}
		var fb feedback
		if err := json.Unmarshal(line, &fb); err != nil {
			continue
		}
		if fb.T == replyFeedback {
			return &fb, nil
		}
	}
	return nil, fmt.Errorf("no feedback frame in reply stream")
}

func (l *serialLink) ReadJoints(ctx context.Context) (map[units.JointName]float64, error) {
	if err := l.send(ctx, request{T: cmdFeedback}); err != nil {
		return nil, err
	}
	fb, err := l.readFeedback(ctx)
	if err != nil {
		return nil, err
	}
	if len(fb.Angles) < len(l.joints) {
		return nil, fmt.Errorf("feedback has %d angles, want %d", len(fb.Angles), len(l.joints))
	}
	values := make(map[units.JointName]float64, len(l.joints))
	for i, name := range l.joints {
		values[name] = fb.Angles[i]
	}
	return values, nil
}

func (l *serialLink) WriteJoints(ctx context.Context, targets map[units.JointName]float64, p WriteParams) error {
	angles := make([]float64, len(l.joints))
	for i, name := range l.joints {
		v, ok := targets[name]
		if !ok {
			return fmt.Errorf("joint %s missing from batched write", name)
		}
		angles[i] = v
	}
	return l.send(ctx, request{T: cmdJointsCtrl, Angles: angles, Spd: p.Speed, Acc: p.Acc})
}

func (l *serialLink) SetTorque(ctx context.Context, on bool) error {
	cmd := 0
	if on {
		cmd = 1
	}
	return l.send(ctx, request{T: cmdTorqueSet, Cmd: &cmd})
}

func (l *serialLink) Ping(ctx context.Context) error {
	_, err := l.ReadJoints(ctx)
	return err
}

// ListPorts enumerates serial devices for the setup flow.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
