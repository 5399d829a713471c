package repository

import (
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"github.com/opensource-finance/quantra/internal/domain"
)

// postgresDSN builds a lib/pq key/value connection string.
func postgresDSN(cfg domain.RepositoryConfig) string {
	host := cfg.PostgresHost
	if host == "" {
		host = "localhost"
	}
	port := cfg.PostgresPort
	if port == 0 {
		port = 5432
	}
	dbname := cfg.PostgresDB
	if dbname == "" {
		dbname = "quantra"
	}
	sslmode := cfg.PostgresSSLMode
	if sslmode == "" {
		sslmode = "disable"
	}

	pairs := []string{
		"host=" + quoteConnValue(host),
		fmt.Sprintf("port=%d", port),
		"dbname=" + quoteConnValue(dbname),
		"sslmode=" + quoteConnValue(sslmode),
	}
	if cfg.PostgresUser != "" {
		pairs = append(pairs, "user="+quoteConnValue(cfg.PostgresUser))
	}
	if cfg.PostgresPassword != "" {
		pairs = append(pairs, "password="+quoteConnValue(cfg.PostgresPassword))
	}
	return strings.Join(pairs, " ")
}

// quoteConnValue single-quotes values containing spaces or quotes.
func quoteConnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}
