package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Member is one team entry: either "@name" or {"@name": "Department"}.
type Member struct {
	Name       string
	Department string
}

func (m *Member) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var name string
		if err := json.Unmarshal(b, &name); err != nil {
			return err
		}
		*m = Member{Name: strings.TrimSpace(name)}
		return nil
	}

	var obj map[string]string
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("team member must be \"@name\" or {\"@name\": \"department\"}: %w", err)
	}
	if len(obj) != 1 {
		return fmt.Errorf("team member object must have exactly one key, got %d", len(obj))
	}
	for name, dept := range obj {
		*m = Member{Name: strings.TrimSpace(name), Department: strings.TrimSpace(dept)}
	}
	return nil
}

func (m Member) MarshalJSON() ([]byte, error) {
	if m.Department == "" {
		return json.Marshal(m.Name)
	}
	return json.Marshal(map[string]string{m.Name: m.Department})
}
