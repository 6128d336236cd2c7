package mssql

import (
	"fmt"
	"strings"
)

// quoteName returns a bracketed identifier, the equivalent of QUOTENAME().
func quoteName(identifier string) string {
	escaped := strings.ReplaceAll(identifier, "]", "]]")
	return fmt.Sprintf("[%s]", escaped)
}

// mapSQLServerType maps SQL Server type names to the names used by the
// Firebird catalog so matchers see one vocabulary.
func mapSQLServerType(sqlServerType string, maxLength int) string {
	sqlServerType = strings.ToUpper(sqlServerType)

	switch sqlServerType {
	case "TINYINT", "SMALLINT":
		return "SMALLINT"
	case "INT":
		return "INTEGER"
	case "BIGINT":
		return "BIGINT"
	case "DECIMAL", "NUMERIC", "MONEY", "SMALLMONEY":
		return "NUMERIC"
	case "FLOAT":
		return "DOUBLE PRECISION"
	case "REAL":
		return "FLOAT"
	case "CHAR", "NCHAR":
		return fmt.Sprintf("CHAR(%d)", maxLength)
	case "VARCHAR", "NVARCHAR":
		if maxLength < 0 {
			return "BLOB"
		}
		return fmt.Sprintf("VARCHAR(%d)", maxLength)
	case "TEXT", "NTEXT", "IMAGE", "BINARY", "VARBINARY":
		return "BLOB"
	case "DATE":
		return "DATE"
	case "TIME":
		return "TIME"
	case "DATETIME", "DATETIME2", "SMALLDATETIME", "DATETIMEOFFSET":
		return "TIMESTAMP"
	case "BIT":
		return "BOOLEAN"
	default:
		return sqlServerType
	}
}

// isStringType returns true if the type is a character type in SQL Server.
func isStringType(sqlType string) bool {
	switch strings.ToUpper(sqlType) {
	case "CHAR", "NCHAR", "VARCHAR", "NVARCHAR":
		return true
	}
	return false
}
