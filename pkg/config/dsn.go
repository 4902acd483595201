package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// resolveDSN keeps an explicit DSN. Otherwise it assembles a postgres URL from
// the discrete host, user and name settings, which must then all be present.
func (db *DBConfig) resolveDSN() error {
	if strings.TrimSpace(db.DSN) != "" {
		return nil
	}

	var missing []string
	for _, part := range []struct{ env, value string }{
		{EnvDBHost, db.LegacyHost},
		{EnvDBUser, db.LegacyUser},
		{EnvDBName, db.LegacyName},
	} {
		if strings.TrimSpace(part.value) == "" {
			missing = append(missing, part.env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	dsn := url.URL{
		Scheme: "postgres",
		User:   url.User(db.LegacyUser),
		Host:   net.JoinHostPort(db.LegacyHost, strconv.Itoa(db.LegacyPort)),
		Path:   "/" + db.LegacyName,
	}
	if db.LegacyPassword != "" {
		dsn.User = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}
	if db.LegacySSLMode != "" {
		dsn.RawQuery = url.Values{"sslmode": {db.LegacySSLMode}}.Encode()
	}
	db.DSN = dsn.String()
	return nil
}
