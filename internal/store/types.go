package store

// LocalOrigin is the origin_repo value for messages authored on this node.
// Pulled copies carry the owner/name of the repository they came from.
const LocalOrigin = "local"

// Message is a board message. ID is assigned once at creation and carried
// unchanged through every replica; Timestamp is an RFC 3339 UTC string so
// rows sort chronologically with a plain string compare.
type Message struct {
	ID         string
	Content    string
	Timestamp  string
	OriginRepo string
	CommitHash string // empty until the mirror commit lands
}

// Stats summarizes the local store for the stats command.
type Stats struct {
	TotalMessages  int
	Last24hCount   int
	FirstTimestamp string
	LastTimestamp  string
}
