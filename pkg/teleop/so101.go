package teleop

import (
	"context"
	"fmt"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"

	"github.com/gwillem/roarm/pkg/robot"
	"github.com/gwillem/roarm/pkg/units"
)

// SO101BaudRate is the Feetech STS3215 bus speed on an SO-101 arm.
const SO101BaudRate = 1_000_000

// ServoCalibration holds one servo's captured range of motion in raw
// encoder ticks, recorded during setup by moving the joint end to end.
type ServoCalibration struct {
	ID       int `json:"id"`
	RangeMin int `json:"range_min"`
	RangeMax int `json:"range_max"`
}

// Percent maps a raw tick reading onto [-100, 100] over the captured range.
func (c ServoCalibration) Percent(raw int) float64 {
	size := float64(c.RangeMax - c.RangeMin)
	if size == 0 {
		return 0
	}
	pct := (float64(raw-c.RangeMin)/size)*200 - 100
	if pct > 100 {
		return 100
	}
	if pct < -100 {
		return -100
	}
	return pct
}

// SO101Config configures an SO-101 leader arm.
type SO101Config struct {
	Port        string                               `json:"port"`
	Calibration map[units.JointName]ServoCalibration `json:"calibration"`
}

// SO101Leader reads a Feetech-servo SO-101 arm as the teleoperation leader.
// Its raw tick positions become symmetric-percentage actions, so a
// degrees-native follower can mirror it without knowing the leader's units.
type SO101Leader struct {
	cfg   SO101Config
	bus   *feetech.Bus
	group *feetech.ServoGroup
}

// SO101ConfigFromArm builds an SO101Config from an arm config whose joint
// specs carry captured raw servo ranges. Servo IDs follow the SO-101 daisy
// chain convention: the base servo is ID 1 and each joint up the arm
// increments by one.
func SO101ConfigFromArm(arm robot.ArmConfig) SO101Config {
	cfg := SO101Config{
		Port:        arm.Port,
		Calibration: make(map[units.JointName]ServoCalibration, len(arm.Joints)),
	}
	for i, spec := range arm.Joints {
		cfg.Calibration[spec.Name] = ServoCalibration{
			ID:       i + 1,
			RangeMin: int(spec.Min),
			RangeMax: int(spec.Max),
		}
	}
	return cfg
}

// NewSO101Leader builds a leader for the given port and servo calibration.
func NewSO101Leader(cfg SO101Config) (*SO101Leader, error) {
	if cfg.Port == "" {
		return nil, fmt.Errorf("so101 leader: port required")
	}
	if len(cfg.Calibration) == 0 {
		return nil, fmt.Errorf("so101 leader: servo calibration required")
	}
	return &SO101Leader{cfg: cfg}, nil
}

func (l *SO101Leader) Connect(ctx context.Context) error {
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     l.cfg.Port,
		BaudRate: SO101BaudRate,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return fmt.Errorf("open servo bus: %w", err)
	}

	ids := make([]int, 0, len(l.cfg.Calibration))
	for _, name := range robot.AllJoints() {
		if cal, ok := l.cfg.Calibration[name]; ok {
			ids = append(ids, cal.ID)
		}
	}
	l.bus = bus
	l.group = feetech.NewServoGroupByIDs(bus, ids...)
	return nil
}

func (l *SO101Leader) ReleaseTorque(ctx context.Context) error {
	return l.group.DisableAll(ctx)
}

func (l *SO101Leader) RestoreTorque(ctx context.Context) error {
	return l.group.EnableAll(ctx)
}

// Action sync-reads all servo positions and converts each to a percentage
// over its captured range.
func (l *SO101Leader) Action(ctx context.Context) (robot.Action, error) {
	raw, err := l.group.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("read servo positions: %w", err)
	}

	act := make(robot.Action, len(l.cfg.Calibration))
	for name, cal := range l.cfg.Calibration {
		pos, ok := raw[cal.ID]
		if !ok {
			return nil, fmt.Errorf("servo %d (%s) missing from sync read", cal.ID, name)
		}
		act[string(name)+".pos"] = cal.Percent(pos)
	}
	return act, nil
}

func (l *SO101Leader) Close() error {
	if l.bus == nil {
		return nil
	}
	return l.bus.Close()
}
