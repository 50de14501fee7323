// Package llm holds the provider-neutral pieces of talking to a model
// endpoint: endpoint descriptors, transcript messages, the Client contract and
// the projection of a transcript into the message list a provider receives.
package llm
