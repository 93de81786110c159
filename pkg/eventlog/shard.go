package eventlog

import "path/filepath"

// logSuffix is the file extension for per-entity event logs.
const logSuffix = ".jsonl"

// ShardedPath derives the on-disk path for an entity's log:
// <root>/<id[0:2]>/<id[2:4]>/<id>.jsonl. Two-level prefix sharding keeps
// per-directory entry counts bounded at scale. Identifiers shorter than four
// characters collapse into fewer levels.
func ShardedPath(root, id string) string {
	switch {
	case len(id) >= 4:
		return filepath.Join(root, id[0:2], id[2:4], id+logSuffix)
	case len(id) >= 2:
		return filepath.Join(root, id[0:2], id+logSuffix)
	default:
		return filepath.Join(root, id+logSuffix)
	}
}
