// Package retrieval turns a question into ordered, citation-tagged context
// fragments drawn from the legal-article index.
//
// A retrieval embeds the query and takes the top-K nearest articles. Each
// hit is widened to its positional neighbors (Expand). The union is fetched,
// sorted into document order and deduplicated by text (Assemble).
// Similarity scores only pick the seed articles; the output follows the
// source document.
package retrieval
