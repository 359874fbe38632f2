package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterBuiltins(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, RegisterBuiltins(r))

	expected := []string{
		"analyze_schema",
		"backup_database_full",
		"drop_table",
		"execute_migration",
		"execute_query",
		"optimize_indexes",
		"restore_backup",
	}
	assert.Equal(t, expected, r.List())

	t.Run("double registration fails on duplicates", func(t *testing.T) {
		err := RegisterBuiltins(r)
		assert.Error(t, err)
	})

	t.Run("destructive builtins are gated", func(t *testing.T) {
		for _, name := range []string{"restore_backup", "execute_migration", "drop_table"} {
			def := r.Get(name)
			require.NotNil(t, def)
			assert.True(t, def.RequiresApproval, "tool: %s", name)
		}
	})
}

func TestBuiltinHandlers(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, RegisterBuiltins(r))

	t.Run("analyze_schema", func(t *testing.T) {
		result, err := r.Execute(context.Background(), "analyze_schema",
			map[string]interface{}{"database": "orders", "schema": "public"}, nil)
		require.NoError(t, err)
		assert.EqualValues(t, 12, result["tables"])
	})

	t.Run("execute_query rejects empty query", func(t *testing.T) {
		_, err := r.Execute(context.Background(), "execute_query",
			map[string]interface{}{"query": ""}, nil)
		assert.Error(t, err)
	})

	t.Run("backup ids are unique", func(t *testing.T) {
		params := map[string]interface{}{"database": "orders"}

		first, err := r.Execute(context.Background(), "backup_database_full", params, nil)
		require.NoError(t, err)
		second, err := r.Execute(context.Background(), "backup_database_full", params, nil)
		require.NoError(t, err)

		firstID, _ := first["backup_id"].(string)
		secondID, _ := second["backup_id"].(string)
		assert.True(t, strings.HasPrefix(firstID, "bak_"))
		assert.NotEqual(t, firstID, secondID)
	})

	t.Run("migration dry run is not applied", func(t *testing.T) {
		result, err := r.Execute(context.Background(), "execute_migration",
			map[string]interface{}{"sql": "ALTER TABLE users ADD COLUMN age integer", "dry_run": true}, nil)
		require.NoError(t, err)
		assert.Equal(t, false, result["applied"])
		assert.NotEmpty(t, result["rollback_script"])
	})
}
