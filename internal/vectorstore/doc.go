// Package vectorstore provides durable storage of document chunks and
// cosine-similarity search over their embeddings.
//
// Two interchangeable backends implement the Store interface:
//
//   - JSONStore: a flat JSON-array file with read-modify-atomic-replace
//     discipline. Concurrent readers see either the old or the new complete
//     file, never a partial one.
//   - PostgresStore: a chunks table with a pgvector embedding column and a
//     cosine-distance index. Upserts run in a single transaction.
//
// Both backends produce identical rankings for the same data: descending
// cosine similarity, ties broken by ascending chunk id. The backend is
// selected once at startup via NewStore.
package vectorstore
