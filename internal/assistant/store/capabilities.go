package store

import (
	"context"
	"fmt"
)

// Grant gives user permission to perform action on recordType.  Either
// recordType or action may be "*" to grant a wildcard.  Granting an existing
// capability is a no-op.
func (s *Store) Grant(ctx context.Context, user, recordType, action string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO capabilities (user, record_type, action)
		VALUES (?, ?, ?)
		ON CONFLICT (user, record_type, action) DO NOTHING
	`, user, recordType, action)
	if err != nil {
		return fmt.Errorf("grant capability: %w", err)
	}
	return nil
}

// Revoke removes a previously granted capability.  Revoking a capability
// that was never granted is a no-op; wildcard grants must be revoked as the
// wildcard they were granted as.
func (s *Store) Revoke(ctx context.Context, user, recordType, action string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM capabilities WHERE user = ? AND record_type = ? AND action = ?
	`, user, recordType, action)
	if err != nil {
		return fmt.Errorf("revoke capability: %w", err)
	}
	return nil
}

// HasPermission reports whether user may perform action on recordType,
// honoring "*" wildcards on either axis.
func (s *Store) HasPermission(ctx context.Context, user, recordType, action string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM capabilities
		WHERE user = ?
		  AND record_type IN (?, '*')
		  AND action IN (?, '*')
	`, user, recordType, action).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check capability: %w", err)
	}
	return n > 0, nil
}
