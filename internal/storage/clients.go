package storage

import (
	"context"
	"fmt"
)

// FindOrCreateClient resolves a client by normalized phone. The name and
// e-mail of an existing client are refreshed when new values are given.
func (s *PostgresStorage) FindOrCreateClient(ctx context.Context, name, phone, email string) (Client, error) {
	const operation = "storage.FindOrCreateClient"

	const query = `
        INSERT INTO clients (name, phone, email)
        VALUES ($1, $2, $3)
        ON CONFLICT (phone) DO UPDATE SET
            name = COALESCE(NULLIF(EXCLUDED.name, ''), clients.name),
            email = COALESCE(NULLIF(EXCLUDED.email, ''), clients.email)
        RETURNING id, name, phone, email, created_at
    `

	var client Client
	if err := s.db.GetContext(ctx, &client, query, name, phone, email); err != nil {
		return Client{}, fmt.Errorf("%s: %w", operation, err)
	}
	return client, nil
}
