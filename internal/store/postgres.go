package store

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres bundles the pgx-backed store implementations over one pool.
type Postgres struct {
	Users       *PostgresUserStore
	Messages    *PostgresMessageStore
	Groups      *PostgresGroupStore
	Memberships *PostgresMembershipStore
}

// NewPostgres wires all stores to the shared pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{
		Users:       &PostgresUserStore{pool: pool},
		Messages:    &PostgresMessageStore{pool: pool},
		Groups:      &PostgresGroupStore{pool: pool},
		Memberships: &PostgresMembershipStore{pool: pool},
	}
}
