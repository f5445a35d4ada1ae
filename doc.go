// Package sparsevec provides an embedded sparse vector search index for Go.
//
// Sparse vectors carry explicit (dimension, weight) pairs instead of a
// dense array, which makes them a natural fit for learned lexical models
// such as SPLADE or classic TF-IDF style weighting. The index answers
// dot-product top-k queries over a vector storage collaborator and keeps
// an inverted index (dimension to posting list) as its acceleration
// structure.
//
// # Quick Start
//
//	ctx := context.Background()
//	store := vectorstore.NewMemory()
//
//	idx, _ := sparsevec.Open(ctx, store)
//
//	vec, _ := sparse.New([]core.DimID{1, 5, 42}, []float32{0.5, 1.2, 0.7})
//	_ = idx.InsertOrUpdate(ctx, 0, vec)
//
//	_ = idx.BuildIndexWithProgress(ctx, nil)
//
//	results, _ := idx.Search(ctx, query, 10, nil)
//	for _, r := range results {
//	    fmt.Println(r.Offset, r.Score)
//	}
//
// # Index Variants
//
// Three index variants sit behind one interface:
//
//   - RAM: mutable, updates apply to posting lists immediately.
//   - Compact: immutable flattened postings, loadable from disk.
//   - Mmap: the same sealed layout served zero-copy from a memory map.
//
//	idx, _ := sparsevec.Open(ctx, store,
//	    sparsevec.WithIndexType(inverted.IndexTypeMmap),
//	    sparsevec.WithPath("./index"),
//	)
//
// Immutable variants accept writes too: mutations are written through to
// storage, the touched points are marked pending, and searches re-score
// pending points against current storage until the next build. Search
// results are therefore always current regardless of variant.
//
// # Search Modes
//
// Small collections are scored by a full scan over storage; once the
// available vector count reaches the configured threshold the inverted
// index takes over. Both paths return identical results, so callers
// never observe the switch.
//
// # Persistence and Offload
//
// Sealed variants persist postings plus a config record under the
// configured path and are reloaded on Open. A persisted index can also
// be copied to any BlobStore (local disk, memory, MinIO, S3) with
// OffloadTo and fetched back with RestoreFrom.
package sparsevec
