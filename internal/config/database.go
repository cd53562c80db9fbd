package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"

	"sqlcase/internal/sqlutil"
)

const (
	defaultMySQLPort    = 3306
	defaultPostgresPort = 5432
)

// EffectivePort returns the configured port, or the client's default when unset.
func (d *DatabaseConfig) EffectivePort(dialect sqlutil.Dialect) int {
	if d.Port != 0 {
		return d.Port
	}
	if dialect == sqlutil.Postgres {
		return defaultPostgresPort
	}
	return defaultMySQLPort
}

// DSN returns the data source name for the given client dialect.
// If ConnectionString is set it is used as the base; otherwise the DSN is
// built from discrete fields.
func (d *DatabaseConfig) DSN(dialect sqlutil.Dialect) (string, error) {
	if dialect == sqlutil.Postgres {
		return d.postgresDSN()
	}
	return d.mysqlDSN()
}

func (d *DatabaseConfig) mysqlDSN() (string, error) {
	var cfg *mysql.Config
	if dsn := strings.TrimSpace(d.ConnectionString); dsn != "" {
		parsed, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", fmt.Errorf("database.dsn is invalid: %w", err)
		}
		cfg = parsed
	} else {
		cfg = mysql.NewConfig()
		cfg.User = d.User
		cfg.Passwd = d.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(d.Host, strconv.Itoa(d.EffectivePort(sqlutil.MySQL)))
		cfg.DBName = d.Database
	}

	// Temporal columns must arrive as time.Time so key rewriting treats them
	// as opaque values.
	cfg.ParseTime = true

	if cfg.TLSConfig == "" {
		if param := mysqlTLSParam(d.TLSMode); param != "" {
			cfg.TLSConfig = param
		}
	}

	return cfg.FormatDSN(), nil
}

func (d *DatabaseConfig) postgresDSN() (string, error) {
	if dsn := strings.TrimSpace(d.ConnectionString); dsn != "" {
		return dsn, nil
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.EffectivePort(sqlutil.Postgres))),
		Path:   "/" + d.Database,
	}
	if d.User != "" {
		if d.Password != "" {
			u.User = url.UserPassword(d.User, d.Password)
		} else {
			u.User = url.User(d.User)
		}
	}
	if mode := postgresSSLMode(d.TLSMode); mode != "" {
		q := url.Values{}
		q.Set("sslmode", mode)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// mysqlTLSParam maps a TLS mode to the go-sql-driver/mysql "tls" parameter.
func mysqlTLSParam(mode string) string {
	switch mode {
	case "off":
		return "false"
	case "skip-verify":
		return "skip-verify"
	case "verify-ca", "verify-full":
		return "true"
	default:
		return ""
	}
}

// postgresSSLMode maps a TLS mode to the libpq-style sslmode parameter.
func postgresSSLMode(mode string) string {
	switch mode {
	case "off":
		return "disable"
	case "skip-verify":
		return "require"
	case "verify-ca":
		return "verify-ca"
	case "verify-full":
		return "verify-full"
	default:
		return ""
	}
}
