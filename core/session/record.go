// Package session implements the gateway's session state: the credential
// cookies, the durable per-client store and the reconciler that keeps one
// authoritative current-user value consistent across both.
package session

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/NguetchuissiBrunel/xccm-gateway/core/user"
)

var ErrMalformedRecord = errors.New("malformed user record")

// Record is the serialized user identity carried in the currentUser cookie
// and mirrored under the currentUser key of the durable store.
type Record struct {
	ID       string            `json:"id"`
	Name     string            `json:"name,omitempty"`
	Email    string            `json:"email,omitempty"`
	Role     string            `json:"role"`
	PhotoURL string            `json:"photo_url,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

func RecordFromUser(usr user.User) Record {
	return Record{
		ID:       usr.ID,
		Name:     usr.Name,
		Email:    usr.Email,
		Role:     user.NormalizeRole(usr.Role),
		PhotoURL: usr.PhotoURL,
		Extra:    usr.Extra,
	}
}

// ParseRecord decodes a JSON user record. A record without an ID is as good
// as no record; it parses but certifies nothing.
func ParseRecord(raw string) (*Record, error) {
	rec := new(Record)
	if err := json.Unmarshal([]byte(raw), rec); err != nil {
		return nil, errors.Wrap(ErrMalformedRecord, err.Error())
	}
	if rec.ID == "" {
		return nil, ErrMalformedRecord
	}
	rec.Role = user.NormalizeRole(rec.Role)
	return rec, nil
}

func (r Record) Encode() string {
	b, err := json.Marshal(r)
	if err != nil {
		return "" // unreachable for this shape; keep callers total
	}
	return string(b)
}

// SameIdentity reports whether two records certify the same subject with the
// same role.
func (r Record) SameIdentity(o Record) bool {
	return r.ID == o.ID && user.NormalizeRole(r.Role) == user.NormalizeRole(o.Role)
}
