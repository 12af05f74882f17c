// Package postgres implements the store using pgx/v5 with raw SQL.
// Claims use UPDATE ... WHERE id IN (SELECT ... FOR UPDATE SKIP LOCKED) so
// concurrent workers never receive the same row. Schema changes ship as
// embedded SQL migrations.
package postgres
