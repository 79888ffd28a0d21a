package remote

import (
	"encoding/json"
	"fmt"
	"math"

	"pasqually/keys"
	"pasqually/puppet"
)

// Events sent to the server.
const (
	EventConnect       = "onConnect"
	EventKeyPress      = puppet.EventKeyPress
	EventShowPlay      = "showPlay"
	EventShowPause     = "showPause"
	EventShowStop      = "showStop"
	EventMirroredMode  = "onMirroredMode"
	EventRetroMode     = "onRetroMode"
	EventHeadNodInvert = "onHeadNodInverted"
	EventTTSSubmit     = "onWebTTSSubmit"
)

// Events pushed by the server.
const (
	EventMovementInfo = "movementInfo"
	EventGamepadKey   = "gamepadKeyEvent"
	EventSystemInfo   = "systemInfo"
	EventShowList     = "showListLoaded"
)

// Connect is the onConnect greeting.
type Connect struct {
	Data string `json:"data"`
}

// SystemInfo is the server's periodic health report.
type SystemInfo struct {
	CPU         float64 `json:"cpu"`
	RAM         float64 `json:"ram"`
	Disk        float64 `json:"disk"`
	Temperature float64 `json:"temperature"`
	WifiSignal  float64 `json:"wifi_signal"`
}

// DecodeMovements parses movementInfo: [[key, note], ...].
func DecodeMovements(data json.RawMessage) ([]puppet.Movement, error) {
	var raw [][]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("movementInfo: %w", err)
	}
	out := make([]puppet.Movement, 0, len(raw))
	for i, pair := range raw {
		key, n, err := decodePair(pair)
		if err != nil {
			return nil, fmt.Errorf("movementInfo entry %d: %w", i, err)
		}
		out = append(out, puppet.Movement{Key: key, Note: n})
	}
	return out, nil
}

// DecodeKeyEvent parses gamepadKeyEvent: [key, val]. The key may also be a
// numeric key code, which is converted to its character.
func DecodeKeyEvent(data json.RawMessage) (key string, val int, err error) {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return "", 0, fmt.Errorf("gamepadKeyEvent: %w", err)
	}
	if len(pair) == 2 {
		var code int
		if json.Unmarshal(pair[0], &code) == nil {
			k, ok := keys.FromCode(code)
			if !ok {
				return "", 0, fmt.Errorf("gamepadKeyEvent: key code %d has no character", code)
			}
			pair[0], _ = json.Marshal(k)
		}
	}
	key, val, err = decodePair(pair)
	if err != nil {
		return "", 0, fmt.Errorf("gamepadKeyEvent: %w", err)
	}
	return key, val, nil
}

// DecodeSystemInfo parses systemInfo.
func DecodeSystemInfo(data json.RawMessage) (SystemInfo, error) {
	var info SystemInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return SystemInfo{}, fmt.Errorf("systemInfo: %w", err)
	}
	return info, nil
}

// DecodeShowList parses showListLoaded: ["name", ...].
func DecodeShowList(data json.RawMessage) ([]string, error) {
	var shows []string
	if err := json.Unmarshal(data, &shows); err != nil {
		return nil, fmt.Errorf("showListLoaded: %w", err)
	}
	return shows, nil
}

func decodePair(pair []json.RawMessage) (string, int, error) {
	if len(pair) != 2 {
		return "", 0, fmt.Errorf("want 2 elements, got %d", len(pair))
	}
	var key string
	if err := json.Unmarshal(pair[0], &key); err != nil {
		return "", 0, fmt.Errorf("key: %w", err)
	}
	var n float64
	if err := json.Unmarshal(pair[1], &n); err != nil {
		return "", 0, fmt.Errorf("value: %w", err)
	}
	if n != math.Trunc(n) {
		return "", 0, fmt.Errorf("value %v is not an integer", n)
	}
	return key, int(n), nil
}
