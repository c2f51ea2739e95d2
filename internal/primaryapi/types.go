package primaryapi

import (
	"bytes"
	"encoding/json"
	"strings"
)

// FlexID accepts an identifier encoded either as a JSON number or a string.
type FlexID string

func (f *FlexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexID(n.String())
	return nil
}

func (f FlexID) String() string { return string(f) }

// Genres tolerates a list of names, a single comma separated string, or a
// list of {"nome"|"name": ...} objects.
type Genres []string

func (g *Genres) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*g = nil
		return nil
	}

	var s string
	if json.Unmarshal(b, &s) == nil {
		var out []string
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*g = out
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		// unknown shape: treat as no data
		*g = nil
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		var name string
		if json.Unmarshal(r, &name) == nil {
			if name = strings.TrimSpace(name); name != "" {
				out = append(out, name)
			}
			continue
		}
		var obj struct {
			Nome string `json:"nome"`
			Name string `json:"name"`
		}
		if json.Unmarshal(r, &obj) == nil {
			if obj.Nome != "" {
				out = append(out, obj.Nome)
			} else if obj.Name != "" {
				out = append(out, obj.Name)
			}
		}
	}
	*g = out
	return nil
}

// Record is one raw catalog entry from the primary source. Different
// endpoints use different field names for the same data.
type Record struct {
	ID        FlexID `json:"id,omitempty"`
	PostsID   FlexID `json:"posts_id,omitempty"`
	Titulo    string `json:"titulo,omitempty"`
	PostTitle string `json:"postTitle,omitempty"`
	CoverURL  string `json:"cover_url,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Generos   Genres `json:"generos,omitempty"`
}

// SourceID returns the record's numeric identifier, preferring id over posts_id.
func (r Record) SourceID() string {
	if r.ID != "" {
		return r.ID.String()
	}
	return r.PostsID.String()
}

// Title returns the display title, preferring titulo over postTitle.
func (r Record) Title() string {
	if r.Titulo != "" {
		return r.Titulo
	}
	return r.PostTitle
}

// Image returns the best poster URL on the record.
func (r Record) Image() string {
	if r.CoverURL != "" {
		return r.CoverURL
	}
	return r.Thumbnail
}

// Valid reports whether the record carries an identifier at all.
func (r Record) Valid() bool {
	return r.SourceID() != ""
}

// SearchParams are the query parameters of the search endpoint.
type SearchParams struct {
	Name string `url:"name"`
	Page int    `url:"page,omitempty"`
}
