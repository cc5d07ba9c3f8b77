package social

import "strconv"

// PairKey identifies the one interaction record of an unordered pair of users
// within a group scope. An empty GroupID is the pair's global scope.
type PairKey struct {
	Low     string
	High    string
	GroupID string
}

// NewPairKey orders a and b so that (a, b) and (b, a) yield the same key.
func NewPairKey(a, b, groupID string) PairKey {
	if b < a {
		a, b = b, a
	}
	return PairKey{Low: a, High: b, GroupID: groupID}
}

// String renders the key with each id length-prefixed, as "5:alice|3:bob"
// or "5:alice|3:bob#4:club". Ids may contain the separators, so the lengths
// keep distinct keys distinct.
func (k PairKey) String() string {
	s := field(k.Low) + "|" + field(k.High)
	if k.GroupID != "" {
		s += "#" + field(k.GroupID)
	}
	return s
}

func field(id string) string {
	return strconv.Itoa(len(id)) + ":" + id
}

// Involves reports whether userID is one of the pair.
func (k PairKey) Involves(userID string) bool {
	return k.Low == userID || k.High == userID
}
