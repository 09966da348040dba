package memberfields

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/churchtools-client/pkg/client"
)

const (
	// AutoInsertComment marks target memberships that should be synced.
	AutoInsertComment = "Auto Insert"

	// UpdatedComment replaces AutoInsertComment once a membership was synced.
	UpdatedComment = "Updated over API"
)

// MemberClient is the part of *client.Client the syncer needs.
type MemberClient interface {
	GetGroupMembers(ctx context.Context, groupID int, q client.MembersQuery) ([]client.GroupMember, error)
	UpdateGroupMember(ctx context.Context, groupID, personID int, fields map[string]any) (*client.GroupMember, error)
}

// Syncer runs one sync pass over a Mapping.
type Syncer struct {
	client  MemberClient
	mapping *Mapping
	logger  zerolog.Logger

	// DryRun logs the planned updates without sending them.
	DryRun bool
}

// Failure is a membership that could not be updated.
type Failure struct {
	GroupID  int
	PersonID int
	Err      error
}

// Report summarizes a sync pass.
type Report struct {
	Groups   int
	Updated  int
	Planned  int
	Missing  int // auto-inserted persons not in the source group
	Failures []Failure
}

// Err joins all failures, or returns nil.
func (r Report) Err() error {
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, fmt.Errorf("group %d person %d: %w", f.GroupID, f.PersonID, f.Err))
	}
	return errors.Join(errs...)
}

// NewSyncer creates a Syncer.
func NewSyncer(c MemberClient, mapping *Mapping, logger zerolog.Logger) *Syncer {
	return &Syncer{
		client:  c,
		mapping: mapping,
		logger:  logger.With().Str("component", "memberfields").Logger(),
	}
}

// AutoInsertPersonIDs returns the persons of groupID whose membership
// comment is AutoInsertComment.
func (s *Syncer) AutoInsertPersonIDs(ctx context.Context, groupID int) ([]int, error) {
	members, err := s.client.GetGroupMembers(ctx, groupID, client.MembersQuery{})
	if err != nil {
		return nil, err
	}

	var ids []int
	for _, m := range members {
		if m.Comment == AutoInsertComment {
			ids = append(ids, m.PersonID)
		}
	}
	return ids, nil
}

// BuildFields maps the member's source field values onto the target field
// ids. Fields unknown to the mapping are skipped.
func (s *Syncer) BuildFields(member client.GroupMember, targetFieldIDs map[string]string) map[string]any {
	fields := make(map[string]any)
	for _, f := range member.Fields {
		name, ok := s.mapping.SourceFields[f.ID]
		if !ok {
			continue
		}
		targetID, ok := targetFieldIDs[name]
		if !ok {
			continue
		}
		if len(f.Value) == 0 {
			fields[targetID] = nil
			continue
		}
		fields[targetID] = json.RawMessage(f.Value)
	}
	return fields
}

// Run fetches the source group once and updates every auto-inserted member
// of each target group. Update failures are collected in the report; a
// failed member listing aborts the run.
func (s *Syncer) Run(ctx context.Context) (Report, error) {
	var report Report

	sourceMembers, err := s.client.GetGroupMembers(ctx, s.mapping.SourceGroupID, client.MembersQuery{})
	if err != nil {
		return report, fmt.Errorf("load source group %d: %w", s.mapping.SourceGroupID, err)
	}
	source := make(map[int]client.GroupMember, len(sourceMembers))
	for _, m := range sourceMembers {
		source[m.PersonID] = m
	}
	s.logger.Info().
		Int("group_id", s.mapping.SourceGroupID).
		Int("members", len(source)).
		Msg("Loaded source group")

	for _, groupID := range s.mapping.TargetGroupIDs() {
		personIDs, err := s.AutoInsertPersonIDs(ctx, groupID)
		if err != nil {
			return report, fmt.Errorf("load target group %d: %w", groupID, err)
		}
		report.Groups++

		for _, personID := range personIDs {
			member, ok := source[personID]
			if !ok {
				report.Missing++
				s.logger.Warn().
					Int("group_id", groupID).
					Int("person_id", personID).
					Msg("Auto inserted person is not in the source group")
				continue
			}

			if err := s.update(ctx, groupID, member); err != nil {
				if ctx.Err() != nil {
					return report, ctx.Err()
				}
				report.Failures = append(report.Failures, Failure{GroupID: groupID, PersonID: personID, Err: err})
				s.logger.Error().Err(err).
					Int("group_id", groupID).
					Int("person_id", personID).
					Msg("Failed to update member")
				continue
			}
			if s.DryRun {
				report.Planned++
			} else {
				report.Updated++
			}
		}
	}

	s.logger.Info().
		Int("groups", report.Groups).
		Int("updated", report.Updated).
		Int("planned", report.Planned).
		Int("failed", len(report.Failures)).
		Msg("Member field sync finished")

	return report, nil
}

func (s *Syncer) update(ctx context.Context, groupID int, member client.GroupMember) error {
	fields := s.BuildFields(member, s.mapping.Targets[groupID])

	name := ""
	if member.Person != nil {
		name = member.Person.Title
	}
	event := s.logger.Info().
		Int("group_id", groupID).
		Int("person_id", member.PersonID).
		Str("person", name).
		Int("fields", len(fields))

	if s.DryRun {
		event.Msg("Would update member (dry run)")
		return nil
	}
	event.Msg("Updating member")

	_, err := s.client.UpdateGroupMember(ctx, groupID, member.PersonID, map[string]any{
		"comment": UpdatedComment,
		"fields":  fields,
	})
	return err
}
