// Package mocks provides shared test doubles.
//
// MockClaimStore is an in-memory store.ClaimStore that applies the same
// status-guarded transitions as the PostgreSQL store, so sweeper and service
// tests exercise real state changes. Every method can also be overridden
// through its function field.
//
//	claims := mocks.NewMockClaimStore()
//	claims.AddTask(taskID)
//	claims.Put(&domain.Claim{...})
//	claims.ExpireClaimsFn = func(...) (int64, error) { return 0, errBoom }
package mocks
