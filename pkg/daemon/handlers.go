package daemon

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/curtain/pkg/motion"
	"github.com/charlie0129/curtain/pkg/types"
	"github.com/charlie0129/curtain/pkg/version"
)

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}

func getConfig(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, conf)
}

func getDevices(c *gin.Context) {
	ret := make([]types.DeviceState, 0, len(devices.list))
	for _, ctrl := range devices.controllers() {
		ret = append(ret, ctrl.State())
	}
	c.IndentedJSON(http.StatusOK, ret)
}

// lookupDevice writes a 404 and returns false if the device does not exist.
func lookupDevice(c *gin.Context) (*Controller, bool) {
	name := c.Param("name")
	ctrl, ok := devices.get(name)
	if !ok {
		err := fmt.Errorf("device %s not found", name)
		c.IndentedJSON(http.StatusNotFound, err.Error())
		_ = c.AbortWithError(http.StatusNotFound, err)
		return nil, false
	}
	return ctrl, true
}

func getDevice(c *gin.Context) {
	ctrl, ok := lookupDevice(c)
	if !ok {
		return
	}
	c.IndentedJSON(http.StatusOK, ctrl.State())
}

func setTarget(c *gin.Context) {
	ctrl, ok := lookupDevice(c)
	if !ok {
		return
	}

	var p float64
	if err := c.BindJSON(&p); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if !applyTarget(c, ctrl, p) {
		return
	}

	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("moving %s to %g%%, currently at %.0f%%", ctrl.Name(), p, ctrl.CurrentPercent()))
}

// applyTarget sets the target of ctrl and writes a 400 for out-of-range
// values.
func applyTarget(c *gin.Context, ctrl *Controller, p float64) bool {
	if err := ctrl.SetTargetPercent(p); err != nil {
		status := http.StatusInternalServerError
		var verr *motion.ValidationError
		if errors.As(err, &verr) {
			status = http.StatusBadRequest
		}
		c.IndentedJSON(status, err.Error())
		_ = c.AbortWithError(status, err)
		return false
	}
	return true
}

func stopDevice(c *gin.Context) {
	ctrl, ok := lookupDevice(c)
	if !ok {
		return
	}

	ctrl.Stop()

	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("stopped %s at %.0f%%", ctrl.Name(), ctrl.CurrentPercent()))
}

func getPositions(c *gin.Context) {
	records, err := store.Snapshot()
	if err != nil {
		logrus.Errorf("getPositions failed: %v", err)
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, records)
}

func getSchedules(c *gin.Context) {
	if schedules == nil {
		c.IndentedJSON(http.StatusOK, []types.ScheduleEntry{})
		return
	}
	c.IndentedJSON(http.StatusOK, schedules.Entries())
}

func streamEvents(c *gin.Context) {
	ch := sseHub.Subscribe()
	defer sseHub.Unsubscribe(ch)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	// let clients see the response before the first event
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, string(ev.Data))
			return true
		}
	})
}

func legacyDevice(c *gin.Context) (*Controller, bool) {
	ctrl, ok := devices.first()
	if !ok {
		err := errors.New("no device configured")
		c.IndentedJSON(http.StatusNotFound, err.Error())
		_ = c.AbortWithError(http.StatusNotFound, err)
		return nil, false
	}
	return ctrl, true
}

func getLegacyState(c *gin.Context) {
	ctrl, ok := legacyDevice(c)
	if !ok {
		return
	}
	st := ctrl.State()
	c.JSON(http.StatusOK, types.LegacyState{
		CurrentPos: st.CurrentPos,
		TargetPos:  st.TargetPos,
		State:      ctrl.MotionState().LegacyCode(),
	})
}

func setLegacyPos(c *gin.Context) {
	ctrl, ok := legacyDevice(c)
	if !ok {
		return
	}

	var body types.LegacyTarget
	if err := c.BindJSON(&body); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}
	if body.TargetPos == nil {
		err := errors.New("target_pos is required")
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if !applyTarget(c, ctrl, *body.TargetPos) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"target_pos": *body.TargetPos})
}

func setLegacyPosParam(c *gin.Context) {
	ctrl, ok := legacyDevice(c)
	if !ok {
		return
	}

	p, err := strconv.ParseFloat(c.Param("pos"), 64)
	if err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if !applyTarget(c, ctrl, p) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"target_pos": p})
}
