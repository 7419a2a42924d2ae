package database_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/clover/pkg/database"
)

func TestIsUniqueViolation(t *testing.T) {
	violation := &pq.Error{Code: "23505", Constraint: "threads_pair_key"}
	wrapped := fmt.Errorf("insert thread: %w", violation)

	assert.True(t, database.IsUniqueViolation(wrapped))
	assert.True(t, database.IsUniqueViolation(wrapped, "threads_pair_key"))
	assert.False(t, database.IsUniqueViolation(wrapped, "access_requests_one_pending_idx"))
	assert.False(t, database.IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, database.IsUniqueViolation(errors.New("duplicate")))
	assert.False(t, database.IsUniqueViolation(nil))
}
