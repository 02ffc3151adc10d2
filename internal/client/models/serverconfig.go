package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ServerConfigKey is the metadata key holding the device's ServerConfig.
const ServerConfigKey = "server_config"

// FrequencyKind distinguishes a disabled periodic sync from an interval.
type FrequencyKind int

const (
	FrequencyNever FrequencyKind = iota
	FrequencyEvery
)

// SyncFrequency is the periodic sync cadence. The zero value is Never.
type SyncFrequency struct {
	Kind    FrequencyKind
	Minutes int
}

func Never() SyncFrequency {
	return SyncFrequency{Kind: FrequencyNever}
}

// Every returns an interval frequency. Non-positive minutes yield Never.
func Every(minutes int) SyncFrequency {
	if minutes <= 0 {
		return Never()
	}
	return SyncFrequency{Kind: FrequencyEvery, Minutes: minutes}
}

func (f SyncFrequency) IsNever() bool {
	return f.Kind != FrequencyEvery || f.Minutes <= 0
}

// Interval is zero for Never.
func (f SyncFrequency) Interval() time.Duration {
	if f.IsNever() {
		return 0
	}
	return time.Duration(f.Minutes) * time.Minute
}

func (f SyncFrequency) String() string {
	if f.IsNever() {
		return "never"
	}
	return strconv.Itoa(f.Minutes)
}

// ParseSyncFrequency accepts "never" or a positive number of minutes.
func ParseSyncFrequency(s string) (SyncFrequency, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "never" || s == "" {
		return Never(), nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return SyncFrequency{}, fmt.Errorf("invalid sync frequency %q", s)
	}
	return Every(n), nil
}

func (f SyncFrequency) MarshalJSON() ([]byte, error) {
	if f.IsNever() {
		return json.Marshal("never")
	}
	return json.Marshal(f.Minutes)
}

func (f *SyncFrequency) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case string:
		parsed, err := ParseSyncFrequency(value)
		if err != nil {
			return err
		}
		*f = parsed
	case float64:
		*f = Every(int(value))
	case nil:
		*f = Never()
	default:
		return errors.New("invalid sync frequency")
	}
	return nil
}

// ServerConfig is the device singleton describing the sync target. The
// password is sealed with the local vault key.
type ServerConfig struct {
	Server             string        `json:"server"`
	User               string        `json:"user"`
	PasswordCiphertext []byte        `json:"passwordCiphertext"`
	PasswordIV         []byte        `json:"passwordIv"`
	Frequency          SyncFrequency `json:"syncFrequencyMinutes"`
}

// Usable reports whether enough is configured to attempt a login.
func (c ServerConfig) Usable() bool {
	return c.Server != "" && c.User != "" && len(c.PasswordCiphertext) > 0 && len(c.PasswordIV) > 0
}

// Equal compares by value.
func (c ServerConfig) Equal(o ServerConfig) bool {
	return c.Server == o.Server &&
		c.User == o.User &&
		bytes.Equal(c.PasswordCiphertext, o.PasswordCiphertext) &&
		bytes.Equal(c.PasswordIV, o.PasswordIV) &&
		c.Frequency == o.Frequency
}
