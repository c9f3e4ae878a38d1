package badger

import (
	"github.com/poiesic/semindex/core"
)

// Key prefixes for different data types
const (
	recordPrefix      = "emb:"
	entityIndexPrefix = "embent:"
	jobIndexPrefix    = "embjob:"
)

// sep separates variable-length key segments. Entity ids may contain ':'
// but never NUL, so prefix scans cannot match a neighbouring entity.
const sep = "\x00"

// makeRecordKey generates a key for an embedding record by ID.
func makeRecordKey(id string) []byte {
	return []byte(recordPrefix + id)
}

// makeEntityIndexKey generates a composite key for the entity index.
// Format: prefix type NUL entityID NUL id
func makeEntityIndexKey(entityType core.EntityType, entityID, id string) []byte {
	return []byte(entityIndexPrefix + string(entityType) + sep + entityID + sep + id)
}

// makeEntityIndexPrefix generates a partial key matching every chunk of an entity.
func makeEntityIndexPrefix(entityType core.EntityType, entityID string) []byte {
	return []byte(entityIndexPrefix + string(entityType) + sep + entityID + sep)
}

// makeJobIndexKey generates a composite key for the parent job index.
// Format: prefix jobID NUL id
func makeJobIndexKey(jobID, id string) []byte {
	return []byte(jobIndexPrefix + jobID + sep + id)
}

// makeJobIndexPrefix generates a partial key matching every record owned by a job.
func makeJobIndexPrefix(jobID string) []byte {
	return []byte(jobIndexPrefix + jobID + sep)
}
