package storage

// Storage is implemented by every backend: the file store, DynamoDB and Postgres.
// Callers take the narrower AccountStore, LedgerStore or LedgerReader where they can.
type Storage interface {
	AccountStore
	LedgerStore
}
