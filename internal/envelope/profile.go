package envelope

import (
	"encoding/json"
	"fmt"
)

// Profile names a protocol profile the output conforms to. Data fields are
// flattened next to "name" when serialized.
type Profile struct {
	Name string
	Data map[string]any
}

// DeterminismProfile records that results depend on the file system.
func DeterminismProfile() Profile {
	return Profile{
		Name: "_determinism",
		Data: map[string]any{"depends_on": []string{"file_system"}},
	}
}

// StreamingProfile marks output framed as head, middle and tail lines.
func StreamingProfile() Profile {
	return Profile{Name: "streaming"}
}

func (p Profile) MarshalJSON() ([]byte, error) {
	fields := make(map[string]any, len(p.Data)+1)
	for k, v := range p.Data {
		fields[k] = v
	}
	fields["name"] = p.Name
	return json.Marshal(fields)
}

func (p *Profile) UnmarshalJSON(data []byte) error {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	name, ok := fields["name"].(string)
	if !ok {
		return fmt.Errorf("profile is missing a name")
	}
	delete(fields, "name")
	p.Name = name
	p.Data = nil
	if len(fields) > 0 {
		p.Data = fields
	}
	return nil
}
