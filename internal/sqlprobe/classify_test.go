package sqlprobe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifier_DatabaseErrors(t *testing.T) {
	c, err := NewClassifier(DefaultLibrary())
	require.NoError(t, err)

	positives := []string{
		"You have an error in your SQL syntax; check the manual that corresponds to your MySQL server",
		"Warning: mysql_fetch_array() expects parameter 1",
		"PostgreSQL query failed: ERROR: syntax error at or near",
		"Npgsql.PostgresException",
		"Microsoft OLE DB Provider for SQL Server",
		"com.microsoft.sqlserver.jdbc.SQLServerException: SQLServer JDBC Driver",
		"System.Data.SqlClient.SqlException: Unclosed quotation mark",
		"ORA-01756: Oracle error quoted string not properly terminated",
		"warning: OCI_EXECUTE(): ora_parse",
	}
	for _, p := range positives {
		assert.True(t, c.HasDatabaseError(p), p)
	}

	negatives := []string{"Invalid username or password", "<html><body>Welcome</body></html>", ""}
	for _, n := range negatives {
		assert.False(t, c.HasDatabaseError(n), n)
	}
}

func TestClassifier_AuthBypass(t *testing.T) {
	c, err := NewClassifier(DefaultLibrary())
	require.NoError(t, err)

	tests := []struct {
		name     string
		finalURL string
		text     string
		want     bool
	}{
		{"redirected quietly", "https://a.test/home", "Dashboard", true},
		{"same page", "https://a.test/login", "Dashboard", false},
		{"redirected with failure text", "https://a.test/error", "Login FAILED", false},
		{"incorrect marker", "https://a.test/x", "Incorrect password", false},
		{"no location", "", "Dashboard", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.IsAuthBypass("https://a.test/login", tt.finalURL, tt.text))
		})
	}
}

func TestClassifier_Extract(t *testing.T) {
	c, err := NewClassifier(DefaultLibrary())
	require.NoError(t, err)

	assert.Equal(t, "alice:s3cr3t", c.Extract("alice:s3cr3t bob:hunter2"))
	assert.Equal(t, "", c.Extract("nothing to see here"))
}
