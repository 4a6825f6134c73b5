package com

import "github.com/rs/xid"

// Uid is a sortable globally-unique session identifier.
type Uid struct {
	xid.ID
}

var NilUid = Uid{xid.NilID()}

func NewUid() Uid { return Uid{xid.New()} }

func (u Uid) IsEmpty() bool { return u.IsNil() }

// Short is the log-friendly form of the id:
// the first and the last three characters.
func (u Uid) Short() string {
	s := u.String()
	return s[:3] + "." + s[len(s)-3:]
}
