package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestIsUniqueViolation(t *testing.T) {
	pgxDup := &pgconn.PgError{Code: "23505", ConstraintName: "uq_people_email"}
	pqDup := &pq.Error{Code: "23505", Constraint: "uq_users_username"}

	tests := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{"nil error", nil, "uq_people_email", false},
		{"pgx duplicate, matching constraint", pgxDup, "uq_people_email", true},
		{"pgx duplicate, any constraint", pgxDup, "", true},
		{"pgx duplicate, other constraint", pgxDup, "uq_users_username", false},
		{"pgx duplicate, wrapped", fmt.Errorf("create person: %w", pgxDup), "uq_people_email", true},
		{"pgx other sqlstate", &pgconn.PgError{Code: "23503", ConstraintName: "uq_people_email"}, "uq_people_email", false},
		{"pq duplicate, matching constraint", pqDup, "uq_users_username", true},
		{"pq duplicate, other constraint", pqDup, "uq_people_email", false},
		{"sqlite message", errors.New("UNIQUE constraint failed: people.email"), "uq_people_email", true},
		{"unrelated error", errors.New("connection refused"), "uq_people_email", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsUniqueViolation(tc.err, tc.constraint); got != tc.want {
				t.Fatalf("IsUniqueViolation(%v, %q) = %v, want %v", tc.err, tc.constraint, got, tc.want)
			}
		})
	}
}
