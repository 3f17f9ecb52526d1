// Package store provides blob storage backends for cache tiers.
//
// A [Store] is the narrow key-value contract every tier satisfies: stat,
// get, put, list. Two backends exist, selected by the tier URL scheme:
//
//	s3://bucket/prefix   S3-compatible object storage (MinIO client)
//	file:///path         local filesystem rooted at path
//
// Writes are atomic at the key level. The filesystem backend writes to a
// temporary file and renames it into place so a concurrent reader never
// observes a partial blob; object stores give the same guarantee natively.
//
// Example usage:
//
//	st, err := store.Open("s3://kiln-artifacts/deps-noble", cfg)
//	if err != nil {
//	    return err
//	}
//
//	info, err := st.Stat(ctx, "noble-amd64/zlib/1.3.1/zlib-1.3.1.tar.gz")
//	if errors.Is(err, store.ErrNotFound) {
//	    // cache miss
//	}
package store
