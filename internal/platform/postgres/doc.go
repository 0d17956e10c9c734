// Package postgres implements the storage interfaces of internal/store on
// PostgreSQL. Queries are built with bun over the pgx database/sql driver,
// schema changes are goose migrations embedded from the migrations
// directory, and the realtime notify transport rides on LISTEN/NOTIFY.
package postgres
