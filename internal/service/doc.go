// Package service contains the claim use cases that sit between the HTTP
// layer and the stores.
//
// SummaryService answers "how many pending offers does this task have and
// which is cheapest". ClaimService creates and accepts claims, applying
// every status change through the store's guarded writes and publishing a
// task update once the change is committed.
//
// Services receive their dependencies through constructor injection and
// never depend on a concrete store implementation.
package service
