// Package memberfields copies group member field values from a source group
// into the matching fields of target groups.
//
// A person who is a member of both the source group and a target group, and
// whose target membership carries the comment "Auto Insert", gets the source
// field values written into the target group's own field ids.
package memberfields

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// Mapping describes which source fields are copied to which target fields.
type Mapping struct {
	SourceGroupID int

	// SourceFields maps source field ids to field names.
	SourceFields map[int]string

	// Targets maps a target group id to its field ids by field name.
	Targets map[int]map[string]string
}

// mappingFile is the on-disk layout:
//
//	source_group_id: 462
//	source_fields:
//	  - id: 1017
//	    name: schulklasse
//	targets:
//	  - group_id: 496
//	    fields:
//	      schulklasse: 1378
type mappingFile struct {
	SourceGroupID int `mapstructure:"source_group_id"`
	SourceFields  []struct {
		ID   int    `mapstructure:"id"`
		Name string `mapstructure:"name"`
	} `mapstructure:"source_fields"`
	Targets []struct {
		GroupID int               `mapstructure:"group_id"`
		Fields  map[string]string `mapstructure:"fields"`
	} `mapstructure:"targets"`
}

// LoadMapping reads and validates a mapping file. The format is taken from
// the file extension (yaml, json, toml).
func LoadMapping(path string) (*Mapping, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read mapping %s: %w", path, err)
	}

	var file mappingFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("decode mapping %s: %w", path, err)
	}

	m := &Mapping{
		SourceGroupID: file.SourceGroupID,
		SourceFields:  make(map[int]string, len(file.SourceFields)),
		Targets:       make(map[int]map[string]string, len(file.Targets)),
	}
	for _, f := range file.SourceFields {
		if _, dup := m.SourceFields[f.ID]; dup {
			return nil, fmt.Errorf("mapping %s: source field %d listed twice", path, f.ID)
		}
		m.SourceFields[f.ID] = normalizeName(f.Name)
	}
	for _, t := range file.Targets {
		if _, dup := m.Targets[t.GroupID]; dup {
			return nil, fmt.Errorf("mapping %s: target group %d listed twice", path, t.GroupID)
		}
		fields := make(map[string]string, len(t.Fields))
		for name, id := range t.Fields {
			fields[normalizeName(name)] = strings.TrimSpace(id)
		}
		m.Targets[t.GroupID] = fields
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("mapping %s: %w", path, err)
	}
	return m, nil
}

// Field names are matched case-insensitively; viper lowercases map keys.
func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Validate checks that every target field refers to a known source field.
func (m *Mapping) Validate() error {
	var errs []error

	if m.SourceGroupID <= 0 {
		errs = append(errs, errors.New("source group id must be positive"))
	}
	if len(m.SourceFields) == 0 {
		errs = append(errs, errors.New("no source fields"))
	}
	if len(m.Targets) == 0 {
		errs = append(errs, errors.New("no target groups"))
	}

	known := make(map[string]bool, len(m.SourceFields))
	for id, name := range m.SourceFields {
		if name == "" {
			errs = append(errs, fmt.Errorf("source field %d has no name", id))
		}
		known[name] = true
	}

	for _, groupID := range m.TargetGroupIDs() {
		if groupID == m.SourceGroupID {
			errs = append(errs, fmt.Errorf("target group %d is the source group", groupID))
		}
		for name, fieldID := range m.Targets[groupID] {
			if !known[name] {
				errs = append(errs, fmt.Errorf("target group %d: unknown field %q", groupID, name))
			}
			if fieldID == "" {
				errs = append(errs, fmt.Errorf("target group %d: field %q has no id", groupID, name))
			}
		}
	}

	return errors.Join(errs...)
}

// TargetGroupIDs returns the target group ids in ascending order.
func (m *Mapping) TargetGroupIDs() []int {
	ids := make([]int, 0, len(m.Targets))
	for id := range m.Targets {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
