package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"

	"github.com/Sternrassler/churchtools-client/pkg/pagination"
)

// GroupsQuery filters GetGroups. Zero values are omitted.
type GroupsQuery struct {
	Query        string
	IDs          []int
	GroupTypeIDs []int
	Limit        int
}

func (q GroupsQuery) values() url.Values {
	v := url.Values{}
	if q.Query != "" {
		v.Set("query", q.Query)
	}
	intParams(v, "ids[]", q.IDs)
	intParams(v, "group_type_ids[]", q.GroupTypeIDs)
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

// GetGroups returns all groups matching q, across all pages.
func (c *Client) GetGroups(ctx context.Context, q GroupsQuery) ([]Group, error) {
	result, err := c.list(ctx, "/api/groups", q.values())
	if err != nil {
		return nil, fmt.Errorf("get groups: %w", err)
	}
	return pagination.DecodeItems[Group](result)
}

// GetGroup returns a single group.
func (c *Client) GetGroup(ctx context.Context, groupID int) (*Group, error) {
	result, err := c.list(ctx, groupPath(groupID), nil)
	if err != nil {
		return nil, fmt.Errorf("get group %d: %w", groupID, err)
	}
	return pagination.DecodeObject[Group](result)
}

// GetGroupHierarchies returns all group hierarchies keyed by group id.
func (c *Client) GetGroupHierarchies(ctx context.Context) (map[int]GroupHierarchy, error) {
	result, err := c.list(ctx, "/api/groups/hierarchies", nil)
	if err != nil {
		return nil, fmt.Errorf("get group hierarchies: %w", err)
	}
	items, err := pagination.DecodeItems[GroupHierarchy](result)
	if err != nil {
		return nil, err
	}

	out := make(map[int]GroupHierarchy, len(items))
	for _, h := range items {
		out[h.GroupID] = h
	}
	return out, nil
}

// GetGroupStatistics returns the member statistics of a group.
func (c *Client) GetGroupStatistics(ctx context.Context, groupID int) (map[string]any, error) {
	result, err := c.list(ctx, groupPath(groupID)+"/statistics", nil)
	if err != nil {
		return nil, fmt.Errorf("get group %d statistics: %w", groupID, err)
	}
	var stats map[string]any
	if err := result.Decode(&stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// CreateGroupRequest is the body of CreateGroup. Pointer fields are optional.
type CreateGroupRequest struct {
	Name            string `json:"name"`
	GroupStatusID   int    `json:"groupStatusId"`
	GroupTypeID     int    `json:"groupTypeId"`
	CampusID        *int   `json:"campusId,omitempty"`
	SuperiorGroupID *int   `json:"superiorGroupId,omitempty"`
	// Force creates the group even if one with the same name exists.
	Force *bool `json:"force,omitempty"`
}

// CreateGroup creates a group and returns it.
func (c *Client) CreateGroup(ctx context.Context, req CreateGroupRequest) (*Group, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("create group: name is required")
	}
	env, err := c.send(ctx, http.MethodPost, "/api/groups", req, http.StatusCreated)
	if err != nil {
		return nil, fmt.Errorf("create group %q: %w", req.Name, err)
	}
	var group Group
	if err := decodeData(env, &group); err != nil {
		return nil, err
	}
	return &group, nil
}

// UpdateGroup patches the given fields of a group.
func (c *Client) UpdateGroup(ctx context.Context, groupID int, fields map[string]any) (*Group, error) {
	env, err := c.send(ctx, http.MethodPatch, groupPath(groupID), fields, http.StatusOK)
	if err != nil {
		return nil, fmt.Errorf("update group %d: %w", groupID, err)
	}
	var group Group
	if err := decodeData(env, &group); err != nil {
		return nil, err
	}
	return &group, nil
}

// DeleteGroup deletes a group.
func (c *Client) DeleteGroup(ctx context.Context, groupID int) error {
	if _, err := c.send(ctx, http.MethodDelete, groupPath(groupID), nil, http.StatusNoContent); err != nil {
		return fmt.Errorf("delete group %d: %w", groupID, err)
	}
	return nil
}

// GetGroupTypes returns all group types keyed by id.
func (c *Client) GetGroupTypes(ctx context.Context) (map[int]GroupType, error) {
	result, err := c.list(ctx, "/api/group/grouptypes", nil)
	if err != nil {
		return nil, fmt.Errorf("get group types: %w", err)
	}
	return groupTypesByID(result)
}

// GetGroupType returns a single group type.
func (c *Client) GetGroupType(ctx context.Context, groupTypeID int) (*GroupType, error) {
	result, err := c.list(ctx, "/api/group/grouptypes/"+strconv.Itoa(groupTypeID), nil)
	if err != nil {
		return nil, fmt.Errorf("get group type %d: %w", groupTypeID, err)
	}
	types, err := groupTypesByID(result)
	if err != nil {
		return nil, err
	}
	gt, ok := types[groupTypeID]
	if !ok {
		return nil, fmt.Errorf("get group type %d: %w", groupTypeID, ErrNotFound)
	}
	return &gt, nil
}

func groupTypesByID(result pagination.Result) (map[int]GroupType, error) {
	items, err := pagination.DecodeItems[GroupType](result)
	if err != nil {
		return nil, err
	}
	out := make(map[int]GroupType, len(items))
	for _, gt := range items {
		out[gt.ID] = gt
	}
	return out, nil
}

// GetGroupPermissions returns the current user's permissions for a group.
func (c *Client) GetGroupPermissions(ctx context.Context, groupID int) (map[string]any, error) {
	result, err := c.list(ctx, "/api/permissions/internal/groups/"+strconv.Itoa(groupID), nil)
	if err != nil {
		return nil, fmt.Errorf("get group %d permissions: %w", groupID, err)
	}
	var perms map[string]any
	if err := result.Decode(&perms); err != nil {
		return nil, err
	}
	return perms, nil
}

// MembersQuery filters GetGroupMembers.
type MembersQuery struct {
	RoleIDs   []int
	PersonIDs []int
}

// GetGroupMembers returns all members of a group, across all pages.
func (c *Client) GetGroupMembers(ctx context.Context, groupID int, q MembersQuery) ([]GroupMember, error) {
	params := url.Values{}
	intParams(params, "role_ids[]", q.RoleIDs)
	intParams(params, "person_id[]", q.PersonIDs)

	result, err := c.list(ctx, groupPath(groupID)+"/members", params)
	if err != nil {
		return nil, fmt.Errorf("get group %d members: %w", groupID, err)
	}
	return pagination.DecodeItems[GroupMember](result)
}

// GetGroupMemberFields returns the member field definitions of a group.
func (c *Client) GetGroupMemberFields(ctx context.Context, groupID int) ([]MemberFieldDefinition, error) {
	result, err := c.list(ctx, groupPath(groupID)+"/memberfields", nil)
	if err != nil {
		return nil, fmt.Errorf("get group %d member fields: %w", groupID, err)
	}
	return pagination.DecodeItems[MemberFieldDefinition](result)
}

// GroupsMembersQuery filters GetGroupsMembers. GroupTypeRoleIDs and PersonIDs
// are applied to the result because the endpoint does not support them.
type GroupsMembersQuery struct {
	GroupIDs         []int
	WithDeleted      bool
	GroupTypeRoleIDs []int
	PersonIDs        []int
}

// GetGroupsMembers looks up memberships across groups.
func (c *Client) GetGroupsMembers(ctx context.Context, q GroupsMembersQuery) ([]GroupMember, error) {
	params := url.Values{}
	intParams(params, "ids[]", q.GroupIDs)
	params.Set("with_deleted", strconv.FormatBool(q.WithDeleted))

	result, err := c.list(ctx, "/api/groups/members", params)
	if err != nil {
		return nil, fmt.Errorf("get groups members: %w", err)
	}
	members, err := pagination.DecodeItems[GroupMember](result)
	if err != nil {
		return nil, err
	}

	filtered := members[:0]
	for _, m := range members {
		if len(q.GroupTypeRoleIDs) > 0 && !slices.Contains(q.GroupTypeRoleIDs, m.GroupTypeRoleID) {
			continue
		}
		if len(q.PersonIDs) > 0 && !slices.Contains(q.PersonIDs, m.PersonID) {
			continue
		}
		filtered = append(filtered, m)
	}
	return filtered, nil
}

// AddMemberRequest is the body of AddGroupMember. Zero values are omitted.
type AddMemberRequest struct {
	GroupTypeRoleID   int            `json:"groupTypeRoleId,omitempty"`
	GroupMemberStatus string         `json:"group_member_status,omitempty"`
	Fields            map[string]any `json:"fields,omitempty"`
}

// AddGroupMember adds a person to a group and returns the membership.
func (c *Client) AddGroupMember(ctx context.Context, groupID, personID int, req AddMemberRequest) (*GroupMember, error) {
	env, err := c.send(ctx, http.MethodPut, memberPath(groupID, personID), req, http.StatusOK)
	if err != nil {
		return nil, fmt.Errorf("add person %d to group %d: %w", personID, groupID, err)
	}
	if env == nil {
		return nil, fmt.Errorf("add person %d to group %d: %w: empty response", personID, groupID, pagination.ErrMalformedEnvelope)
	}

	// The endpoint answers with a list holding the new membership.
	var members []GroupMember
	if err := decodeData(env, &members); err != nil {
		var member GroupMember
		if objErr := decodeData(env, &member); objErr != nil {
			return nil, err
		}
		return &member, nil
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("add person %d to group %d: %w: no member returned", personID, groupID, pagination.ErrMalformedEnvelope)
	}
	return &members[0], nil
}

// UpdateGroupMember patches the given fields of a membership.
func (c *Client) UpdateGroupMember(ctx context.Context, groupID, personID int, fields map[string]any) (*GroupMember, error) {
	env, err := c.send(ctx, http.MethodPatch, memberPath(groupID, personID), fields, http.StatusOK)
	if err != nil {
		return nil, fmt.Errorf("update person %d in group %d: %w", personID, groupID, err)
	}
	var member GroupMember
	if err := decodeData(env, &member); err != nil {
		return nil, err
	}
	return &member, nil
}

// RemoveGroupMember removes a person from a group.
func (c *Client) RemoveGroupMember(ctx context.Context, groupID, personID int) error {
	if _, err := c.send(ctx, http.MethodDelete, memberPath(groupID, personID), nil, http.StatusNoContent); err != nil {
		return fmt.Errorf("remove person %d from group %d: %w", personID, groupID, err)
	}
	return nil
}

// GetGroupRoles returns the roles of a group.
func (c *Client) GetGroupRoles(ctx context.Context, groupID int) ([]GroupRole, error) {
	result, err := c.list(ctx, groupPath(groupID)+"/roles", nil)
	if err != nil {
		return nil, fmt.Errorf("get group %d roles: %w", groupID, err)
	}
	return pagination.DecodeItems[GroupRole](result)
}

// AddParentGroup makes parentID a parent of groupID.
func (c *Client) AddParentGroup(ctx context.Context, groupID, parentID int) error {
	path := fmt.Sprintf("%s/parents/%d", groupPath(groupID), parentID)
	if _, err := c.send(ctx, http.MethodPut, path, nil, http.StatusCreated); err != nil {
		return fmt.Errorf("add parent %d to group %d: %w", parentID, groupID, err)
	}
	return nil
}

// RemoveParentGroup removes parentID from the parents of groupID.
func (c *Client) RemoveParentGroup(ctx context.Context, groupID, parentID int) error {
	path := fmt.Sprintf("%s/parents/%d", groupPath(groupID), parentID)
	if _, err := c.send(ctx, http.MethodDelete, path, nil, http.StatusNoContent); err != nil {
		return fmt.Errorf("remove parent %d from group %d: %w", parentID, groupID, err)
	}
	return nil
}

func groupPath(groupID int) string {
	return "/api/groups/" + strconv.Itoa(groupID)
}

func memberPath(groupID, personID int) string {
	return fmt.Sprintf("/api/groups/%d/members/%d", groupID, personID)
}
