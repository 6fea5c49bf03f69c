package daemon

import (
	"context"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/curtain/pkg/config"
	"github.com/charlie0129/curtain/pkg/types"
)

var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type scheduledMove struct {
	config.ScheduleConfig
	id cron.EntryID
}

// Schedules moves devices to fixed positions at cron times.
type Schedules struct {
	cron  *cron.Cron
	moves []scheduledMove
}

// NewSchedules registers every configured schedule. lookup resolves device
// names to their controllers.
func NewSchedules(cfgs []config.ScheduleConfig, lookup func(name string) (*Controller, bool)) (*Schedules, error) {
	s := &Schedules{
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithLogger(cron.PrintfLogger(logrus.StandardLogger())),
			cron.WithChain(cron.Recover(cron.PrintfLogger(logrus.StandardLogger()))),
		),
	}

	for i, sc := range cfgs {
		ctrl, ok := lookup(sc.Device)
		if !ok {
			return nil, pkgerrors.Errorf("schedule %d refers to unknown device %s", i, sc.Device)
		}

		sc := sc
		id, err := s.cron.AddFunc(sc.Cron, func() {
			runScheduledMove(ctrl, sc)
		})
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "invalid cron expression %q in schedule %d", sc.Cron, i)
		}

		s.moves = append(s.moves, scheduledMove{ScheduleConfig: sc, id: id})
	}

	return s, nil
}

func (s *Schedules) Start() {
	if len(s.moves) == 0 {
		return
	}
	s.cron.Start()
	logrus.Infof("%d schedule(s) started", len(s.moves))
}

// Stop stops the scheduler. The returned context is done once running jobs
// have finished.
func (s *Schedules) Stop() context.Context {
	return s.cron.Stop()
}

// Entries lists the configured schedules with their next run.
func (s *Schedules) Entries() []types.ScheduleEntry {
	ret := make([]types.ScheduleEntry, 0, len(s.moves))
	now := time.Now()

	for _, m := range s.moves {
		e := s.cron.Entry(m.id)
		next := e.Next
		if next.IsZero() && e.Schedule != nil {
			// not started yet
			next = e.Schedule.Next(now)
		}
		ret = append(ret, types.ScheduleEntry{
			Device:   m.Device,
			Cron:     m.Cron,
			Position: m.Position,
			Next:     next,
			Prev:     e.Prev,
		})
	}

	return ret
}

func runScheduledMove(ctrl *Controller, sc config.ScheduleConfig) {
	logger := logrus.WithFields(logrus.Fields{
		"device":   sc.Device,
		"cron":     sc.Cron,
		"position": sc.Position,
	})

	if !ctrl.Ready() {
		logger.Warn("device is not ready yet, it will move once it is")
	}

	if err := ctrl.SetTargetPercent(sc.Position); err != nil {
		logger.Errorf("scheduled move failed: %v", err)
		return
	}

	logger.Info("scheduled move started")
}
