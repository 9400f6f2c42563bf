package checkdef

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultInterval applies to checks that do not configure one.
const DefaultInterval = 300 * time.Second

// Definition describes a monitoring check. Fields without a dedicated member are
// kept in Extra so they can be forwarded with the notification payload.
type Definition struct {
	Name              string                 `yaml:"name,omitempty" json:"name,omitempty"`
	Interval          int                    `yaml:"interval,omitempty" json:"interval,omitempty"`
	Command           string                 `yaml:"command,omitempty" json:"command,omitempty"`
	Page              bool                   `yaml:"page,omitempty" json:"page,omitempty"`
	Team              string                 `yaml:"team,omitempty" json:"team,omitempty"`
	NotificationEmail interface{}            `yaml:"notification_email,omitempty" json:"notification_email,omitempty"`
	IRCChannels       interface{}            `yaml:"irc_channels,omitempty" json:"irc_channels,omitempty"`
	Runbook           string                 `yaml:"runbook,omitempty" json:"runbook,omitempty"`
	Tip               string                 `yaml:"tip,omitempty" json:"tip,omitempty"`
	Extra             map[string]interface{} `yaml:",inline" json:"-"`
}

// IntervalOrDefault returns the configured interval, or DefaultInterval when unset.
func (d Definition) IntervalOrDefault() time.Duration {
	if d.Interval <= 0 {
		return DefaultInterval
	}
	return time.Duration(d.Interval) * time.Second
}

// Fields flattens the definition into a map, extra fields included.
func (d Definition) Fields() (map[string]interface{}, error) {
	fields := make(map[string]interface{}, len(d.Extra)+9)
	for k, v := range d.Extra {
		fields[k] = v
	}
	known, err := json.Marshal(definitionAlias(d))
	if err != nil {
		return nil, fmt.Errorf("encode check %s: %w", d.Name, err)
	}
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, fmt.Errorf("decode check %s: %w", d.Name, err)
	}
	return fields, nil
}

type definitionAlias Definition

var knownFields = []string{
	"name", "interval", "command", "page", "team",
	"notification_email", "irc_channels", "runbook", "tip",
}

// UnmarshalJSON decodes known fields into their members and keeps the rest in Extra.
func (d *Definition) UnmarshalJSON(data []byte) error {
	var alias definitionAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	var all map[string]interface{}
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, name := range knownFields {
		delete(all, name)
	}
	if len(all) > 0 {
		alias.Extra = all
	}
	*d = Definition(alias)
	return nil
}
