// Package postgres archives terminal alerts in PostgreSQL. Each alert is
// stored as one row holding its full JSON record.
package postgres
