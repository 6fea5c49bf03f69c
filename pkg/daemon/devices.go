package daemon

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/curtain/pkg/config"
	"github.com/charlie0129/curtain/pkg/motion"
	"github.com/charlie0129/curtain/pkg/motor"
)

type device struct {
	ctrl *Controller
	port io.Closer
}

// deviceSet keeps devices in configuration order. The first device is the
// one served by the legacy /state and /set_pos endpoints.
type deviceSet struct {
	list   []*device
	byName map[string]*device
}

func newDeviceSet() *deviceSet {
	return &deviceSet{byName: map[string]*device{}}
}

func (s *deviceSet) add(d *device) {
	s.list = append(s.list, d)
	s.byName[d.ctrl.Name()] = d
}

func (s *deviceSet) get(name string) (*Controller, bool) {
	d, ok := s.byName[name]
	if !ok {
		return nil, false
	}
	return d.ctrl, true
}

func (s *deviceSet) first() (*Controller, bool) {
	if len(s.list) == 0 {
		return nil, false
	}
	return s.list[0].ctrl, true
}

func (s *deviceSet) controllers() []*Controller {
	ret := make([]*Controller, 0, len(s.list))
	for _, d := range s.list {
		ret = append(ret, d.ctrl)
	}
	return ret
}

func (s *deviceSet) close() {
	for _, d := range s.list {
		if d.port == nil {
			continue
		}
		if err := d.port.Close(); err != nil {
			logrus.WithField("device", d.ctrl.Name()).Errorf("failed to close serial port: %v", err)
		}
	}
}

// openDevice opens the serial port of dc and builds its controller. Both
// a bad calibration and an unopenable port are fatal to the daemon.
func openDevice(conf *config.Config, dc config.DeviceConfig, store PositionStore) (*device, error) {
	conv, err := motion.NewConverter(dc.StepsPerMm, dc.ActuatedHeightMm)
	if err != nil {
		return nil, &config.Error{Field: dc.Name, Reason: err.Error()}
	}

	port, err := motor.Open(dc.Port, dc.BaudRate, dc.PollInterval())
	if err != nil {
		return nil, err
	}

	ch := motor.NewChannel(dc.Name, port, dc.AckTimeout(), dc.PollInterval())
	ctrl := NewController(dc.Name, ch, store, conv, ControllerOptions{
		MaxBurst:     dc.MaxBurst,
		Reverse:      dc.ReverseDirection,
		TickInterval: conf.TickInterval(),
		Hub:          sseHub,
	})

	return &device{ctrl: ctrl, port: ch}, nil
}
