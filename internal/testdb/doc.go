// Package testdb provides PostgreSQL helpers for integration tests: it
// connects to the database named by DATABASE_URL (or TFP_TEST_DB_URL),
// applies the embedded migrations, inserts fixtures and truncates tables
// between tests. Tests that need a database call GetTestDBWithT, which
// skips the test when no database is configured.
package testdb
