// Package memory maintains a persistent index over the note corpus and
// conversation transcripts and answers ranked retrieval queries that blend
// vector similarity with lexical overlap.
//
// Invariants:
// - A file's chunk set is always replaced whole, inside one transaction.
// - Transcript files only grow; the sync engine never diffs or prunes them.
// - Queries from non-main sessions do not surface long-term note chunks.
// - Embedding resolution never fails; without a provider search degrades to
//   lexical scoring.
//
// Usage:
//
//	svc, _ := memory.NewService(memory.Config{Workspace: "/workspace", DBPath: "/data/index.db", Enabled: true})
//	defer svc.Close()
//	hits, _ := svc.Search(ctx, "quarterly revenue", memory.SearchOptions{})
//	_ = hits
package memory
