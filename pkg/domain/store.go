package domain

// Collection names a family of documents held by a StateStore.
type Collection string

const (
	CollectionContacts      Collection = "contacts"
	CollectionConversations Collection = "conversations"
	CollectionIngest        Collection = "ingest"
)

// IngestCursor is the durable dedup window of the ingestion pipeline.
// IDs are ordered oldest first.
type IngestCursor struct {
	IDs []string `json:"ids"`
}
