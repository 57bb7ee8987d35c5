package github

// NewStoreWithClientForTest exposes newStoreWithClient.
var NewStoreWithClientForTest = newStoreWithClient
