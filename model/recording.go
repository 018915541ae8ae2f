package model

// CallType distinguishes the direction of a recorded call.
type CallType string

const (
	CallIncoming CallType = "INCOMING"
	CallOutgoing CallType = "OUTGOING"
)

// Recording describes one call recording extracted from a mailbox container,
// prior to publication. MessageID is the dedup key against the ledger; all
// other fields carry header values verbatim.
type Recording struct {
	MessageID  string
	FileName   string
	FromNumber string
	ToNumber   string
	// Duration is the normalized "M:SS" string, empty when no duration
	// expression was found in the message.
	Duration string
	CallType CallType
	// DateTime is the original Date header, kept opaque.
	DateTime string
}
