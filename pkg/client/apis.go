package client

import (
	"encoding/json"
	"net/url"
	"strconv"

	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/curtain/pkg/config"
	"github.com/charlie0129/curtain/pkg/position"
	"github.com/charlie0129/curtain/pkg/types"
)

func devicePath(name string) string {
	return "/devices/" + url.PathEscape(name)
}

func (c *Client) GetDevices() ([]types.DeviceState, error) {
	ret, err := c.Get("/devices")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get devices")
	}

	var states []types.DeviceState
	if err := json.Unmarshal([]byte(ret), &states); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal devices")
	}
	return states, nil
}

func (c *Client) GetDevice(name string) (*types.DeviceState, error) {
	ret, err := c.Get(devicePath(name))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get device %s", name)
	}

	var st types.DeviceState
	if err := json.Unmarshal([]byte(ret), &st); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal device %s", name)
	}
	return &st, nil
}

func (c *Client) SetTarget(name string, percent float64) (string, error) {
	ret, err := c.Put(devicePath(name)+"/target", strconv.FormatFloat(percent, 'f', -1, 64))
	if err != nil {
		return "", err
	}
	return parseStringResponse(ret), nil
}

func (c *Client) Stop(name string) (string, error) {
	ret, err := c.Put(devicePath(name)+"/stop", "")
	if err != nil {
		return "", err
	}
	return parseStringResponse(ret), nil
}

func (c *Client) GetPositions() (map[string]position.Record, error) {
	ret, err := c.Get("/positions")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get persisted positions")
	}

	var records map[string]position.Record
	if err := json.Unmarshal([]byte(ret), &records); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal persisted positions")
	}
	return records, nil
}

func (c *Client) GetSchedules() ([]types.ScheduleEntry, error) {
	ret, err := c.Get("/schedules")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get schedules")
	}

	var entries []types.ScheduleEntry
	if err := json.Unmarshal([]byte(ret), &entries); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal schedules")
	}
	return entries, nil
}

func (c *Client) GetConfig() (*config.Config, error) {
	ret, err := c.Get("/config")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get config")
	}

	var conf config.Config
	if err := json.Unmarshal([]byte(ret), &conf); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal config")
	}
	return &conf, nil
}

func (c *Client) GetVersion() (string, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get version")
	}
	return parseStringResponse(ret), nil
}

// parseStringResponse decodes a JSON string body, falling back to the raw
// body if it is not one.
func parseStringResponse(ret string) string {
	var s string
	if err := json.Unmarshal([]byte(ret), &s); err != nil {
		return ret
	}
	return s
}
