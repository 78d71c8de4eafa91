// Package embedder maps term bags into a latent-semantic vector space.
//
// A Model is trained once per baseline index from the postings of a
// temporary term index, persisted as term and document vectors, and then
// queried by summing the vectors of the query terms and ranking documents
// by cosine similarity.
//
// # Basic Usage
//
//	model, err := embedder.Train(ctx, tempIndex, "content", 300)
//	if err != nil {
//	    return err
//	}
//	if err := model.Save(ctx, tx, indexID); err != nil {
//	    return err
//	}
//
//	matches, err := model.Search(ctx, []string{"null", "order"})
//
// # Caching
//
// Query embeddings are cached in an LRU keyed by the SHA-256 of the term
// bag, so repeated constraint queries skip the vector sum.
package embedder
