package client

import "encoding/json"

// Group is a ChurchTools group. Only commonly used fields are typed;
// the complete payload is kept in Raw.
type Group struct {
	ID          int             `json:"id"`
	GUID        string          `json:"guid,omitempty"`
	Name        string          `json:"name"`
	Information json.RawMessage `json:"information,omitempty"`
	Raw         json.RawMessage `json:"-"`
}

// UnmarshalJSON keeps the raw payload alongside the typed fields.
func (g *Group) UnmarshalJSON(data []byte) error {
	type plain Group
	if err := json.Unmarshal(data, (*plain)(g)); err != nil {
		return err
	}
	g.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// GroupHierarchy lists the parents and children of a group.
type GroupHierarchy struct {
	GroupID  int   `json:"groupId"`
	Parents  []int `json:"parents"`
	Children []int `json:"children"`
}

// GroupType describes a kind of group (e.g. small group, service team).
type GroupType struct {
	ID             int    `json:"id"`
	Name           string `json:"name"`
	NameTranslated string `json:"nameTranslated,omitempty"`
	Shorty         string `json:"shorty,omitempty"`
	Description    string `json:"description,omitempty"`
	SortKey        int    `json:"sortKey,omitempty"`
}

// PersonRef is the short person representation embedded in member lists.
type PersonRef struct {
	Title            string `json:"title"`
	DomainType       string `json:"domainType,omitempty"`
	DomainIdentifier string `json:"domainIdentifier,omitempty"`
}

// MemberField is one group member field value.
type MemberField struct {
	ID    int             `json:"id"`
	Name  string          `json:"name,omitempty"`
	Value json.RawMessage `json:"value"`
}

// GroupMember is a person's membership in a group.
type GroupMember struct {
	PersonID          int           `json:"personId"`
	GroupID           int           `json:"groupId,omitempty"`
	GroupTypeRoleID   int           `json:"groupTypeRoleId,omitempty"`
	GroupMemberStatus string        `json:"groupMemberStatus,omitempty"`
	Comment           string        `json:"comment,omitempty"`
	Deleted           bool          `json:"deleted,omitempty"`
	MemberStartDate   string        `json:"memberStartDate,omitempty"`
	Person            *PersonRef    `json:"person,omitempty"`
	Fields            []MemberField `json:"fields,omitempty"`
}

// MemberFieldDefinition describes a field members of a group can fill in.
type MemberFieldDefinition struct {
	Type  string          `json:"type"`
	Field json.RawMessage `json:"field"`
}

// GroupRole is a role available in a group.
type GroupRole struct {
	ID              int    `json:"id"`
	GroupTypeRoleID int    `json:"groupTypeRoleId"`
	GroupID         int    `json:"groupId"`
	IsActive        bool   `json:"isActive"`
	Name            string `json:"name,omitempty"`
}

// Tag is a label attached to songs or persons.
type Tag struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// SongCategory groups songs, e.g. a songbook.
type SongCategory struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// File is a downloadable attachment.
type File struct {
	ID      int    `json:"id,omitempty"`
	Name    string `json:"name"`
	FileURL string `json:"fileUrl"`
}

// Arrangement is one version of a song with its attachments.
type Arrangement struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	IsDefault bool   `json:"isDefault"`
	Key       string `json:"keyOfArrangement,omitempty"`
	Files     []File `json:"files"`
}

// Song is a song from the ChurchTools song database.
type Song struct {
	ID           int           `json:"id"`
	Name         string        `json:"name"`
	Author       string        `json:"author,omitempty"`
	CCLI         string        `json:"ccli,omitempty"`
	Category     SongCategory  `json:"category"`
	Arrangements []Arrangement `json:"arrangements"`
}
