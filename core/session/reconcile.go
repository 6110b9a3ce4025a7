package session

// Writes lists the repairs a reconciliation pass must apply to bring the
// cookie and the durable store back in agreement.
type Writes struct {
	SetCookie bool // synthesize or overwrite the cookie from the resolved record
	SetStore  bool // mirror the resolved record into the durable store
	Desync    bool // both layers held records and they disagreed
}

// Resolve merges the two persisted copies of the user into one resolved
// record. The durable store wins ties: legacy write paths update it without
// going through cookie issuance, so a disagreeing cookie is the stale one.
//
// Resolve is pure; callers apply the returned Writes.
func Resolve(cookieRec, storeRec *Record) (*Record, Writes) {
	switch {
	case cookieRec == nil && storeRec == nil:
		return nil, Writes{}
	case storeRec == nil:
		// cookie is the only copy: mirror it so store-only consumers catch up
		return cookieRec, Writes{SetStore: true}
	case cookieRec == nil:
		// store-without-cookie signals a stale cookie layer: re-derive it
		return storeRec, Writes{SetCookie: true}
	}
	if !cookieRec.SameIdentity(*storeRec) {
		return storeRec, Writes{SetCookie: true, Desync: true}
	}
	return storeRec, Writes{}
}
