package sqlutil

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToSqlStringOrNull(t *testing.T) {
	assert.Equal(t, sql.NullString{}, ToSqlStringOrNull(""))
	assert.Equal(t, sql.NullString{String: "orange", Valid: true}, ToSqlStringOrNull("orange"))
}

func TestFromSqlString(t *testing.T) {
	assert.Equal(t, "purple", FromSqlString(sql.NullString{String: "purple", Valid: true}, ""))
	assert.Equal(t, "", FromSqlString(sql.NullString{}, ""))
	assert.Equal(t, "", FromSqlString(ToSqlStringOrNull(""), ""), "empty survives a NULL round trip")
}
