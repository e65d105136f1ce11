package store

import (
	"fmt"
	"strings"
)

// Key layout. Canonical message documents live under msg:<id>; everything
// else is an index row whose value is the message id, so history scans are
// one prefix iteration and read-state updates rewrite a single row.
//
//	msg:<id>                          canonical message JSON
//	pair:<lo>:<hi>:<ts20>-<seq6>      direct-message index, lo/hi sorted
//	user:<id>:<ts20>-<seq6>           per-user index (sender and receiver)
//	channel:<id>:msg:<ts20>-<seq6>    channel message index
//	channel:<id>:meta                 channel JSON
//	profile:<id>                      profile JSON

func msgKey(id string) []byte { return []byte("msg:" + id) }

// pairPrefix returns the shared prefix for both directions of a pair.
// Participant ids are ordered so A->B and B->A land under one prefix.
func pairPrefix(a, b string) string {
	lo, hi := a, b
	if strings.Compare(lo, hi) > 0 {
		lo, hi = hi, lo
	}
	return "pair:" + lo + ":" + hi + ":"
}

func pairKey(a, b string, ts int64, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d-%06d", pairPrefix(a, b), ts, seq))
}

func userPrefix(id string) string { return "user:" + id + ":" }

func userKey(id string, ts int64, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d-%06d", userPrefix(id), ts, seq))
}

func channelMsgPrefix(id string) string { return "channel:" + id + ":msg:" }

func channelMsgKey(id string, ts int64, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d-%06d", channelMsgPrefix(id), ts, seq))
}

func channelMetaKey(id string) []byte { return []byte("channel:" + id + ":meta") }

func profileKey(id string) []byte { return []byte("profile:" + id) }
