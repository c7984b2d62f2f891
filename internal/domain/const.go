package domain

// activity types
const (
	ActivityConnect    = "connect"
	ActivityDisconnect = "disconnect"
	ActivityAccept     = "accept"
	ActivityDefine     = "define"
)

const (
	// ReplayIdentities is how many recently active identities are replayed on join.
	ReplayIdentities = 5
	// ReplayUtterances is how many accept/define entries are replayed per identity.
	ReplayUtterances = 11
)
