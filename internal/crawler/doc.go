// Package crawler defines the domain types, collaborator contracts and error
// taxonomy shared by the crawl pipeline: the page store, embedding service,
// vector store, tokenizer, fetcher and out-of-band error sink.
package crawler
